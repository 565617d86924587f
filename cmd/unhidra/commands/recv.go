package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// recv: fetch and decrypt queued messages.
func recvCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "recv",
		Short: "Fetch and decrypt your queued messages",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()
			u, err := unlock(ctx)
			if err != nil {
				return err
			}
			defer u.Close()

			msgs, err := u.Messages.ReceiveMessages(ctx, limit)
			for _, m := range msgs {
				ts := time.Unix(m.Timestamp, 0).Format(time.DateTime)
				fmt.Printf("%s [%s] %s\n", ts, m.From, string(m.Plaintext))
			}
			return err
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of messages to fetch (0 for all)")
	return cmd
}
