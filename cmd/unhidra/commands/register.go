package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func registerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "register",
		Short: "Generate pre-keys if needed and publish them to the relay",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()
			u, err := unlock(ctx)
			if err != nil {
				return err
			}
			defer u.Close()

			report, err := u.PreKeys.Maintain(ctx, time.Now())
			if err != nil {
				return err
			}
			if report.Rotated {
				log.Infof("Generated a signed pre-key and %d one-time pre-keys", report.Replenished)
			}
			id, err := u.PreKeys.Publish(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Registered %s with the relay (bundle %s)\n", u.Device, id)
			return nil
		},
	}
}
