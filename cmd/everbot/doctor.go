package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/evertext/everbot/internal/config"
	"github.com/evertext/everbot/internal/doctor"
)

func newDoctorCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check the environment before running sessions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			report := doctor.Run(cfg)
			for _, finding := range report.Findings {
				fmt.Fprintf(os.Stdout, "%-4s %-12s %s\n", finding.Status, finding.Name, finding.Detail)
			}
			if !report.Healthy() {
				return errors.New("environment is not ready")
			}
			return nil
		},
	}
}
