package main

import (
	"github.com/spf13/cobra"

	"github.com/usrz/devws/internal/ui"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		ui.PrintInfo("devws %s", version)
		ui.PrintDim("commit: %s", commit)
		ui.PrintDim("built:  %s", date)
	},
}
