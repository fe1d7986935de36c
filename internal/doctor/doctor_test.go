package doctor

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/evertext/everbot/internal/account"
	"github.com/evertext/everbot/internal/config"
)

func writeRoster(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "accounts.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write roster: %v", err)
	}
	return path
}

func healthyConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Endpoint:         config.DefaultEndpoint,
		Cookie:           "cookie-123",
		AccountsPath:     writeRoster(t, "[[accounts]]\nname = \"alpha\"\ncode = \"c1\"\n"),
		DefaultMode:      "daily",
		SupervisorTick:   5 * time.Second,
		ActivityTimeout:  180 * time.Second,
		SettleDelay:      1500 * time.Millisecond,
		HandshakeTimeout: 10 * time.Second,
	}
}

func findingFor(t *testing.T, report Report, name string) Finding {
	t.Helper()
	for _, finding := range report.Findings {
		if finding.Name == name {
			return finding
		}
	}
	t.Fatalf("no finding named %q in %+v", name, report.Findings)
	return Finding{}
}

func TestRunHealthyConfig(t *testing.T) {
	report := Run(healthyConfig(t))
	if !report.Healthy() {
		t.Fatalf("report unhealthy: %+v", report.Findings)
	}
	for _, name := range []string{"config", "endpoint", "cookie", "default_mode", "roster", "codes"} {
		if finding := findingFor(t, report, name); finding.Status != StatusPass {
			t.Fatalf("%s = %s (%s), want pass", name, finding.Status, finding.Detail)
		}
	}
}

func TestRunNilConfig(t *testing.T) {
	report := Run(nil)
	if report.Healthy() {
		t.Fatal("nil config should be unhealthy")
	}
	if finding := findingFor(t, report, "config"); finding.Status != StatusFail {
		t.Fatalf("config = %s, want fail", finding.Status)
	}
}

func TestRunBadEndpoint(t *testing.T) {
	cfg := healthyConfig(t)
	cfg.Endpoint = "https://example.test/socket.io/"

	report := Run(cfg)
	if report.Healthy() {
		t.Fatal("https endpoint should fail")
	}
	finding := findingFor(t, report, "endpoint")
	if finding.Status != StatusFail || !strings.Contains(finding.Detail, "ws") {
		t.Fatalf("endpoint finding = %+v", finding)
	}
}

func TestRunMissingCookie(t *testing.T) {
	cfg := healthyConfig(t)
	cfg.Cookie = ""

	report := Run(cfg)
	if finding := findingFor(t, report, "cookie"); finding.Status != StatusFail {
		t.Fatalf("cookie = %s, want fail", finding.Status)
	}
}

func TestRunBadMode(t *testing.T) {
	cfg := healthyConfig(t)
	cfg.DefaultMode = "weekly"

	report := Run(cfg)
	if finding := findingFor(t, report, "default_mode"); finding.Status != StatusFail {
		t.Fatalf("default_mode = %s, want fail", finding.Status)
	}
}

func TestRunMissingRoster(t *testing.T) {
	cfg := healthyConfig(t)
	cfg.AccountsPath = filepath.Join(t.TempDir(), "absent.toml")

	report := Run(cfg)
	if finding := findingFor(t, report, "roster"); finding.Status != StatusFail {
		t.Fatalf("roster = %s, want fail", finding.Status)
	}
}

func TestRunEmptyRosterWarns(t *testing.T) {
	cfg := healthyConfig(t)
	cfg.AccountsPath = writeRoster(t, "")

	report := Run(cfg)
	if !report.Healthy() {
		t.Fatalf("warnings should not fail the report: %+v", report.Findings)
	}
	if finding := findingFor(t, report, "roster"); finding.Status != StatusWarn {
		t.Fatalf("roster = %s, want warn", finding.Status)
	}
}

func TestRunAccountWithoutCodeWarns(t *testing.T) {
	cfg := healthyConfig(t)
	cfg.AccountsPath = writeRoster(t, `
[[accounts]]
name = "alpha"
code = "c1"

[[accounts]]
name = "bravo"
`)

	report := Run(cfg)
	if !report.Healthy() {
		t.Fatalf("missing code should warn, not fail: %+v", report.Findings)
	}
	finding := findingFor(t, report, "codes")
	if finding.Status != StatusWarn || !strings.Contains(finding.Detail, "bravo") {
		t.Fatalf("codes finding = %+v", finding)
	}
}

func TestRunEncryptedCodeWithoutKeyFails(t *testing.T) {
	t.Setenv(account.KeyEnvVar, "")
	cfg := healthyConfig(t)
	cfg.AccountsPath = writeRoster(t, `
[[accounts]]
name = "alpha"
encrypted_code = "c2VhbGVk"
`)

	report := Run(cfg)
	if report.Healthy() {
		t.Fatal("locked code without key should fail")
	}
	if finding := findingFor(t, report, "codes"); finding.Status != StatusFail {
		t.Fatalf("codes = %s, want fail", finding.Status)
	}
}
