package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ephemerchat/ephemer/internal/config"
)

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Delete expired sessions once and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(paths.Config)
			if err != nil {
				return err
			}

			sessions, _, closeStore, err := openStores(cfg, log)
			if err != nil {
				return err
			}
			defer closeStore()

			removed, err := sessions.SweepExpired(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("removed %d expired session(s)\n", removed)
			return nil
		},
	}
}
