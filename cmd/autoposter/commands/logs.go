package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func logsCmd() *cobra.Command {
	var clear bool

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print or clear the activity log",
		RunE: func(cmd *cobra.Command, args []string) error {
			if clear {
				if err := wire.ActivityLog.Clear(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Log cleared")
				return nil
			}

			b, err := wire.ActivityLog.Read()
			if err != nil {
				return err
			}
			if len(b) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No log entries found.")
				return nil
			}
			_, err = cmd.OutOrStdout().Write(b)
			return err
		},
	}

	cmd.Flags().BoolVar(&clear, "clear", false, "truncate the log instead of printing it")
	return cmd
}
