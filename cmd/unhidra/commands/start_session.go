package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"unhidra/internal/domain"
)

// startSessionCmd runs the handshake against a peer's published bundle and
// stores the new session.
func startSessionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start-session <peer>",
		Short: "Establish a secure session with a peer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()
			u, err := unlock(ctx)
			if err != nil {
				return err
			}
			defer u.Close()

			peer := domain.DeviceID(args[0])
			if err := u.Sessions.Connect(ctx, peer); err != nil {
				return fmt.Errorf("starting session with %q: %w", peer, err)
			}
			fmt.Printf("Session created with %s.\n", peer)
			return nil
		},
	}
}
