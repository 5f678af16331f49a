package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// version is overridden by the release build via -ldflags -X.
var version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the match-engine version",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("%s version: %s\n", app, version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
