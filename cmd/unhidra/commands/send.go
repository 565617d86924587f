package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"unhidra/internal/domain"
)

// send <peer> <message>: encrypt and send a message to <peer>.
func sendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send <peer> <message>",
		Short: "Encrypt and send a message to a peer",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()
			u, err := unlock(ctx)
			if err != nil {
				return err
			}
			defer u.Close()

			if err := u.Messages.SendMessage(ctx, domain.DeviceID(args[0]), []byte(args[1])); err != nil {
				return err
			}
			fmt.Println("sent")
			return nil
		},
	}
}
