package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "timewright",
		Short: "Branching campaign timelines for game masters",
	}
	root.Version = version
	root.SetVersionTemplate("{{.Version}}\n")
	root.AddCommand(initCmd())
	root.AddCommand(continuityCmd())
	root.AddCommand(eventCmd())
	root.AddCommand(stateCmd())
	root.AddCommand(sessionCmd())
	root.AddCommand(driftCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(versionCmd())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
