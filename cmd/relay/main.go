package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"unhidra/internal/app"
	"unhidra/internal/registry"
	"unhidra/internal/relay"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		cfgPath       string
		listen        string
		metricsListen string
		maxQueue      int
		debugLevel    string
	)
	cmd := &cobra.Command{
		Use:          "relay",
		Short:        "Serve the pre-key registry and message mailbox over HTTP",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("listen") {
				cfg.Relay.Listen = listen
			}
			if flags.Changed("metrics") {
				cfg.Relay.MetricsListen = metricsListen
			}
			if flags.Changed("max-queue") {
				cfg.Relay.MaxQueue = maxQueue
			}
			if flags.Changed("debuglevel") {
				cfg.Log.DebugLevel = debugLevel
			}

			logs, err := app.NewLogBackend(cfg.Log.LogFile, cfg.Log.DebugLevel, os.Stdout)
			if err != nil {
				return err
			}
			defer logs.Close()
			logs.UseLoggers()
			log := logs.Logger("RELY")

			mailbox := relay.NewMemoryMailbox()
			mailbox.MaxQueue = cfg.Relay.MaxQueue
			srv, err := relay.NewServer(relay.ServerConfig{
				Registry: registry.NewMemoryRegistry(),
				Mailbox:  mailbox,
				Log:      log,
			})
			if err != nil {
				return err
			}

			err = srv.Run(cmd.Context(), cfg.Relay.Listen, cfg.Relay.MetricsListen)
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			log.Info("Relay stopped")
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&cfgPath, "config", "", "config file (default <home>/unhidra.conf)")
	f.StringVar(&listen, "listen", "", "API listen address")
	f.StringVar(&metricsListen, "metrics", "", "Prometheus listen address (empty disables)")
	f.IntVar(&maxQueue, "max-queue", 0, "per-device queue bound (0 for unbounded)")
	f.StringVar(&debugLevel, "debuglevel", "", "log level or subsys=level list")
	return cmd
}
