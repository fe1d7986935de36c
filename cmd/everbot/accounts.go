package main

import (
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/evertext/everbot/internal/account"
	"github.com/evertext/everbot/internal/config"
)

// gcmNonceSize matches the standard AES-GCM nonce length used by the
// account code sealing format.
const gcmNonceSize = 12

func newAccountsCommand(cfg *config.Config, logger *log.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Inspect and maintain the account roster",
	}
	cmd.AddCommand(newAccountsListCommand(cfg), newAccountsSealCommand(logger))
	return cmd
}

func newAccountsListCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List roster accounts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			roster, err := account.LoadRoster(cfg.AccountsPath)
			if err != nil {
				return fmt.Errorf("load roster: %w", err)
			}

			source := account.EnvKeySource{}
			for _, acct := range roster.Accounts {
				target := strings.TrimSpace(acct.TargetServer)
				if target == "" {
					target = "Default"
				}
				codeState := "missing"
				if code, err := source.Code(acct); err == nil && strings.TrimSpace(code) != "" {
					codeState = "present"
				} else if err != nil {
					codeState = "locked"
				}
				fmt.Fprintf(os.Stdout, "%s\tserver=%s\tcode=%s\n", acct.Name, target, codeState)
			}
			return nil
		},
	}
}

func newAccountsSealCommand(logger *log.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "seal <code>",
		Short: "Encrypt an access code for storage in the roster file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			passphrase := strings.TrimSpace(os.Getenv(account.KeyEnvVar))
			if passphrase == "" {
				return errors.New(account.KeyEnvVar + " must be set to seal codes")
			}

			nonce := make([]byte, gcmNonceSize)
			if _, err := rand.Read(nonce); err != nil {
				return fmt.Errorf("generate nonce: %w", err)
			}
			sealed, err := account.Encrypt(args[0], passphrase, nonce)
			if err != nil {
				return fmt.Errorf("seal code: %w", err)
			}

			logger.Info("sealed access code")
			fmt.Fprintf(os.Stdout, "encrypted_code = %q\n", sealed)
			return nil
		},
	}
}
