package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newResetCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete and rebuild the index",
		Long: `Delete the on-disk index and re-initialize an empty one.

All indexed documents are lost. Requires --force.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force {
				return fmt.Errorf("refusing to delete the index without --force")
			}

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

			if err := engine.DeleteDirectory(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Index at %s deleted and rebuilt\n", cfg.Index.Path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Confirm deletion of all indexed data")

	return cmd
}
