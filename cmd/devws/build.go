package main

import (
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/usrz/devws/internal/buildkit"
	"github.com/usrz/devws/internal/config"
	"github.com/usrz/devws/internal/ui"
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build every target once",
	RunE:  runBuild,
}

func runBuild(cmd *cobra.Command, args []string) error {
	cfgPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadProjectConfig(cfgPath)
	if err != nil {
		ui.PrintError("Failed to load %s: %v", cfgPath, err)
		return err
	}

	kit := buildkit.NewKit(log.Default())
	for _, target := range cfg.Targets {
		ui.PrintInfo("Building %s...", target.Name)
		if err := kit.Build(cmd.Context(), target); err != nil {
			ui.PrintError("Build of %s failed", target.Name)
			return err
		}
		ui.PrintSuccess("%s built", target.Name)
	}
	return nil
}
