package main

import (
	"os"

	"github.com/spf13/cobra"

	"chronicle/internal/config"
)

var configPath string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "chronicle",
		Short:        "Narrative memory for interactive fiction",
		SilenceUsage: true,
	}
	root.Version = version
	root.SetVersionTemplate("{{.Version}}\n")
	root.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath, "Path to the project config")

	root.AddCommand(initCmd())
	root.AddCommand(newCmd())
	root.AddCommand(recordCmd())
	root.AddCommand(contextCmd())
	root.AddCommand(statsCmd())
	root.AddCommand(retireCmd())
	root.AddCommand(sweepCmd())
	root.AddCommand(auditCmd())
	root.AddCommand(sessionsCmd())
	root.AddCommand(charactersCmd())
	root.AddCommand(eventsCmd())
	root.AddCommand(packsCmd())
	root.AddCommand(dumpCmd())
	root.AddCommand(restoreCmd())
	root.AddCommand(sqlCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(versionCmd())
	return root
}
