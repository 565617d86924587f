package commands

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"unhidra/internal/app"
)

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Generate identity keys and store them securely",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := requirePassphrase()
			if err != nil {
				return err
			}
			if cfg.Device == "" {
				return fmt.Errorf("device id required (--device)")
			}
			wire.Identity.Overwrite = force
			_, fp, err := wire.Identity.GenerateIdentity(p)
			if err != nil {
				return err
			}

			// Keep the device id and relay for later commands.
			path := cfgPath
			if path == "" {
				path = filepath.Join(cfg.Home, app.ConfigFilename)
			}
			if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
				if err := app.WriteConfig(path, cfg); err != nil {
					return err
				}
				log.Infof("Wrote config to %s", path)
			}
			fmt.Printf("Identity created for %s.\nFingerprint: %s\n", cfg.Device, fp)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "replace an existing identity")
	return cmd
}
