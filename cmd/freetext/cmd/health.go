package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Run the engine health probe",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			defer setupLogging(cfg)()

			engine, err := openEngine(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = engine.Close() }()

			if err := engine.CheckHealth(cmd.Context()); err != nil {
				return fmt.Errorf("engine degraded: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
}
