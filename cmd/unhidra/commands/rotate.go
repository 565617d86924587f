package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func rotateCmd() *cobra.Command {
	var publish bool
	cmd := &cobra.Command{
		Use:   "rotate",
		Short: "Rotate and retire signed pre-keys and replenish one-time pre-keys",
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
			fmt.Printf("rotated=%v retired=%d replenished=%d\n",
				report.Rotated, len(report.Retired), report.Replenished)

			changed := report.Rotated || report.Replenished > 0
			if !publish || !changed {
				return nil
			}
			id, err := u.PreKeys.Publish(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Published bundle %s\n", id)
			return nil
		},
	}
	cmd.Flags().BoolVar(&publish, "publish", true, "publish when anything changed")
	return cmd
}
