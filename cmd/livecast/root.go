package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"livecast/internal/config"
	logx "livecast/pkg/logx"
)

var version = "dev"

var cfgPath string

var rootCmd = &cobra.Command{
	Use:           "livecast",
	Short:         "Scheduled live broadcast lifecycle daemon",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "livecast:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Version = version
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "./config.yaml", "path to config (json or yaml)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(broadcastsCmd)
}

func loadConfig() (*config.Config, error) {
	return config.NewManager(cfgPath, logx.NewConsole("WARN")).Load()
}
