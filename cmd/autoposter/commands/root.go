// Package commands implements the autoposter command line.
package commands

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/blackmichael/bsky-autoposter/internal/app"
	"github.com/blackmichael/bsky-autoposter/internal/config"
)

var (
	configPath string
	wire       *app.Wire
)

// Execute runs the root command.
func Execute() error {
	root := &cobra.Command{
		Use:          "autoposter",
		Short:        "Share blog posts on Bluesky",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			wire, err = app.NewWire(cfg, os.Stderr)
			return err
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if wire == nil {
				return nil
			}
			return wire.Close()
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default autoposter.yaml in . or /etc/bsky-autoposter)")

	root.AddCommand(postCmd(), testConnectionCmd(), logsCmd())
	return root.Execute()
}
