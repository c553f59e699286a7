// Command mindsim runs the need-driven goal/plan lifecycle engine against a
// scripted environment and serves an observation API.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:           "mindsim",
		Short:         "Need-driven goal and plan lifecycle engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var configPath string
	var verbose bool
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "mindsim.yaml", "path to config file")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	root.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
		slog.SetDefault(logger)
	}

	root.AddCommand(newRunCmd(&configPath))
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	})

	if err := root.Execute(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}
