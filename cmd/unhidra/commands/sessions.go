package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"unhidra/internal/domain"
)

func sessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect or reset sessions",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show <peer>",
		Short: "Print the session phase with a peer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()
			u, err := unlock(ctx)
			if err != nil {
				return err
			}
			defer u.Close()

			phase, err := u.Sessions.Phase(ctx, domain.DeviceID(args[0]))
			if err != nil {
				return err
			}
			fmt.Printf("%s: %s\n", args[0], phase)
			return nil
		},
	}, &cobra.Command{
		Use:   "reset <peer>",
		Short: "Delete the session with a peer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()
			u, err := unlock(ctx)
			if err != nil {
				return err
			}
			defer u.Close()

			if err := u.Sessions.Reset(ctx, domain.DeviceID(args[0])); err != nil {
				return err
			}
			fmt.Printf("Session with %s reset.\n", args[0])
			return nil
		},
	})
	return cmd
}
