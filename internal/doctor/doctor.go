// Package doctor runs deterministic environment checks so operators can see
// why a run would fail before connecting anything.
package doctor

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/evertext/everbot/internal/account"
	"github.com/evertext/everbot/internal/config"
	"github.com/evertext/everbot/internal/trigger"
)

// Status classifies one finding.
type Status string

const (
	// StatusPass indicates the check succeeded.
	StatusPass Status = "pass"
	// StatusWarn indicates a degraded but runnable condition.
	StatusWarn Status = "warn"
	// StatusFail indicates a condition that blocks running.
	StatusFail Status = "fail"
)

// Finding is the outcome of one check.
type Finding struct {
	Name   string
	Status Status
	Detail string
}

// Report is the full set of findings from one doctor pass.
type Report struct {
	Findings []Finding
}

// Healthy reports whether no finding failed.
func (r Report) Healthy() bool {
	for _, finding := range r.Findings {
		if finding.Status == StatusFail {
			return false
		}
	}
	return true
}

// Run executes every check against the loaded configuration.
func Run(cfg *config.Config) Report {
	report := Report{}
	add := func(name string, status Status, detail string) {
		report.Findings = append(report.Findings, Finding{Name: name, Status: status, Detail: detail})
	}

	if cfg == nil {
		add("config", StatusFail, "configuration could not be loaded")
		return report
	}
	add("config", StatusPass, "configuration loaded")

	checkEndpoint(cfg, add)
	checkCookie(cfg, add)
	checkMode(cfg, add)
	checkRoster(cfg, add)

	return report
}

func checkEndpoint(cfg *config.Config, add func(string, Status, string)) {
	parsed, err := url.Parse(cfg.Endpoint)
	if err != nil {
		add("endpoint", StatusFail, fmt.Sprintf("endpoint is not a URL: %v", err))
		return
	}
	if parsed.Scheme != "ws" && parsed.Scheme != "wss" {
		add("endpoint", StatusFail, fmt.Sprintf("endpoint scheme %q is not ws or wss", parsed.Scheme))
		return
	}
	add("endpoint", StatusPass, cfg.Endpoint)
}

func checkCookie(cfg *config.Config, add func(string, Status, string)) {
	if _, err := cfg.SessionCookie(); err != nil {
		add("cookie", StatusFail, err.Error())
		return
	}
	add("cookie", StatusPass, "session cookie resolved")
}

func checkMode(cfg *config.Config, add func(string, Status, string)) {
	if _, err := trigger.ParseMode(cfg.DefaultMode); err != nil {
		add("default_mode", StatusFail, fmt.Sprintf("default_mode %q: %v", cfg.DefaultMode, err))
		return
	}
	add("default_mode", StatusPass, cfg.DefaultMode)
}

func checkRoster(cfg *config.Config, add func(string, Status, string)) {
	roster, err := account.LoadRoster(cfg.AccountsPath)
	if err != nil {
		add("roster", StatusFail, err.Error())
		return
	}
	if len(roster.Accounts) == 0 {
		add("roster", StatusWarn, "roster has no accounts")
		return
	}
	add("roster", StatusPass, fmt.Sprintf("%d account(s)", len(roster.Accounts)))

	source := account.EnvKeySource{}
	missing := []string{}
	for _, acct := range roster.Accounts {
		code, err := source.Code(acct)
		if err != nil {
			add("codes", StatusFail, fmt.Sprintf("account %q: %v", acct.Name, err))
			return
		}
		if strings.TrimSpace(code) == "" {
			missing = append(missing, acct.Name)
		}
	}
	if len(missing) > 0 {
		add("codes", StatusWarn, "accounts without access codes: "+strings.Join(missing, ", "))
		return
	}
	add("codes", StatusPass, "all accounts have access codes")
}
