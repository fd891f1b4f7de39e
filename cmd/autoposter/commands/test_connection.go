package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func testConnectionCmd() *cobra.Command {
	var handle, password string

	cmd := &cobra.Command{
		Use:   "test-connection",
		Short: "Log in to Bluesky with the configured or given credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := wire.Publisher.TestConnection(cmd.Context(), handle, password); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Connection successful")
			return nil
		},
	}

	cmd.Flags().StringVar(&handle, "handle", "", "Bluesky handle (default from config)")
	cmd.Flags().StringVar(&password, "password", "", "app password (default from config)")
	return cmd
}
