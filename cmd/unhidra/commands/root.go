package commands

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/decred/slog"
	"github.com/spf13/cobra"

	"unhidra/internal/app"
)

// EnvPassphrase may hold the passphrase instead of -p.
const EnvPassphrase = "UNHIDRA_PASSPHRASE"

var (
	cfgPath    string
	home       string
	passphrase string
	relayURL   string
	device     string
	debugLevel string
	timeout    time.Duration

	cfg  app.Config
	wire *app.Wire
	log  = slog.Disabled
)

var errNoPassphrase = errors.New("passphrase required (-p or " + EnvPassphrase + ")")

func requirePassphrase() (string, error) {
	if passphrase != "" {
		return passphrase, nil
	}
	if v := os.Getenv(EnvPassphrase); v != "" {
		return v, nil
	}
	return "", errNoPassphrase
}

// unlock decrypts the identity and builds the full service graph. The
// caller closes the result.
func unlock(ctx context.Context) (*app.Unlocked, error) {
	p, err := requirePassphrase()
	if err != nil {
		return nil, err
	}
	return wire.Unlock(ctx, p)
}

func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), timeout)
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return rootCmd().ExecuteContext(ctx)
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "unhidra",
		Short:         "End-to-end encrypted messaging CLI",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			if flags.Changed("home") {
				os.Setenv(app.EnvHome, home)
			}
			var err error
			cfg, err = app.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			if flags.Changed("relay") {
				cfg.Relay.URL = relayURL
			}
			if flags.Changed("device") {
				cfg.Device = device
			}
			if flags.Changed("debuglevel") {
				cfg.Log.DebugLevel = debugLevel
			}
			if err := os.MkdirAll(cfg.Home, 0o700); err != nil {
				return err
			}

			logs, err := app.NewLogBackend(cfg.Log.LogFile, cfg.Log.DebugLevel, os.Stderr)
			if err != nil {
				return err
			}
			logs.UseLoggers()
			log = logs.Logger("UCLI")
			wire = app.NewWire(cfg, logs, nil)
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if wire != nil && wire.Logs != nil {
				return wire.Logs.Close()
			}
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&cfgPath, "config", "", "config file (default <home>/unhidra.conf)")
	pf.StringVar(&home, "home", "", "data directory (default ~/.unhidra)")
	pf.StringVarP(&passphrase, "passphrase", "p", "", "passphrase protecting the identity and sessions")
	pf.StringVar(&relayURL, "relay", "", "relay base URL (e.g. http://127.0.0.1:8080)")
	pf.StringVar(&device, "device", "", "this device's id")
	pf.StringVar(&debugLevel, "debuglevel", "", "log level or subsys=level list")
	pf.DurationVar(&timeout, "timeout", 30*time.Second, "timeout for relay operations")

	root.AddCommand(
		initCmd(),
		fingerprintCmd(),
		registerCmd(),
		rotateCmd(),
		startSessionCmd(),
		sendCmd(),
		recvCmd(),
		sessionsCmd(),
	)
	return root
}
