package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/evertext/everbot/internal/account"
	"github.com/evertext/everbot/internal/config"
	"github.com/evertext/everbot/internal/events"
	"github.com/evertext/everbot/internal/locks"
	"github.com/evertext/everbot/internal/session"
	"github.com/evertext/everbot/internal/trigger"
)

func newRunCommand(cfg *config.Config, logger *log.Logger) *cobra.Command {
	var (
		accountName string
		modeFlag    string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Drive sessions for roster accounts",
		Long: "Connects to the game server and drives each session autonomously. " +
			"With --account a single roster entry runs; otherwise every account runs in turn.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			mode, err := resolveMode(modeFlag, cfg)
			if err != nil {
				return err
			}

			cookie, err := cfg.SessionCookie()
			if err != nil {
				return fmt.Errorf("resolve session cookie: %w", err)
			}

			roster, err := account.LoadRoster(cfg.AccountsPath)
			if err != nil {
				return fmt.Errorf("load roster: %w", err)
			}
			accounts, err := selectAccounts(roster, accountName)
			if err != nil {
				return err
			}

			leases, err := newLeaseManager()
			if err != nil {
				return err
			}

			bus := events.New()
			bus.SubscribeAll(printProgress)

			source := account.EnvKeySource{}
			failures := 0
			for _, acct := range accounts {
				code, err := source.Code(acct)
				if err != nil {
					return fmt.Errorf("resolve access code for %q: %w", acct.Name, err)
				}

				release, err := leases.Acquire(cmd.Context(), acct.Name)
				if errors.Is(err, locks.ErrHeld) {
					logger.Warn("account busy in another process, skipping", "account", acct.Name)
					fmt.Fprintf(os.Stdout, "%s: skipped, session lease held elsewhere\n", acct.Name)
					failures++
					continue
				}
				if err != nil {
					return fmt.Errorf("acquire session lease for %q: %w", acct.Name, err)
				}

				outcome := session.Run(cmd.Context(), session.Params{
					Account:          acct,
					Mode:             mode,
					Code:             code,
					Endpoint:         cfg.Endpoint,
					Cookie:           cookie,
					Timings:          timingsFromConfig(cfg),
					HandshakeTimeout: cfg.HandshakeTimeout,
					Logger:           logger.With("account", acct.Name),
					Bus:              bus,
				})

				if err := release(); err != nil {
					logger.Warn("release session lease", "account", acct.Name, "err", err)
				}

				fmt.Fprintf(os.Stdout, "%s: %s\n", acct.Name, outcome)
				if !outcome.Success() {
					failures++
				}
			}

			if failures > 0 {
				return fmt.Errorf("%d of %d session(s) did not complete", failures, len(accounts))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&accountName, "account", "a", "", "roster account to run (default: all)")
	cmd.Flags().StringVarP(&modeFlag, "mode", "m", "", "run mode: daily or handout (default from config)")
	return cmd
}

func resolveMode(flag string, cfg *config.Config) (trigger.Mode, error) {
	value := flag
	if value == "" {
		value = cfg.DefaultMode
	}
	mode, err := trigger.ParseMode(value)
	if err != nil {
		return "", fmt.Errorf("resolve run mode: %w", err)
	}
	return mode, nil
}

func selectAccounts(roster *account.Roster, name string) ([]account.Account, error) {
	if name == "" {
		if len(roster.Accounts) == 0 {
			return nil, fmt.Errorf("roster has no accounts")
		}
		return roster.Accounts, nil
	}
	acct, ok := roster.Find(name)
	if !ok {
		return nil, fmt.Errorf("account %q not in roster", name)
	}
	return []account.Account{acct}, nil
}

func newLeaseManager() (*locks.Manager, error) {
	leasePath, err := locks.DefaultLeasePath()
	if err != nil {
		return nil, fmt.Errorf("resolve lease path: %w", err)
	}
	store, err := locks.NewFileStore(leasePath)
	if err != nil {
		return nil, fmt.Errorf("open lease store: %w", err)
	}
	manager, err := locks.NewManager(store, locks.ManagerConfig{})
	if err != nil {
		return nil, fmt.Errorf("init lease manager: %w", err)
	}
	return manager, nil
}

func timingsFromConfig(cfg *config.Config) session.Timings {
	timings := session.DefaultTimings()
	timings.SupervisorTick = cfg.SupervisorTick
	timings.ActivityTimeout = cfg.ActivityTimeout
	timings.SettleDelay = cfg.SettleDelay
	return timings
}

// printProgress renders the human-readable session trace on stdout.
func printProgress(event events.Event) {
	switch event.Type {
	case events.EventTypeTriggerFired:
		fmt.Fprintf(os.Stdout, "[%s] prompt: %v\n", event.Account, event.Payload)
	case events.EventTypeCommandSent:
		fmt.Fprintf(os.Stdout, "[%s] sent: %v\n", event.Account, event.Payload)
	case events.EventTypePhaseTransition:
		fmt.Fprintf(os.Stdout, "[%s] phase: %v\n", event.Account, event.Payload)
	case events.EventTypeSessionOutcome:
		fmt.Fprintf(os.Stdout, "[%s] outcome: %v\n", event.Account, event.Payload)
	}
}
