package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ginja-dev/ginja/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		detailed, _ := cmd.Flags().GetBool("detailed")
		if detailed {
			fmt.Fprintln(cmd.OutOrStdout(), version.Detailed())
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), version.Short())
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().Bool("detailed", false, "show detailed build information")
}
