// Package cmd implements the throwbridge CLI using cobra.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/throwbridge/throwbridge/internal/config"
)

const version = "0.1.0"
const logo = "🎯"

var cfgFile string

// rootCmd is the base command.
var rootCmd = &cobra.Command{
	Use:   "throwbridge",
	Short: logo + " throwbridge — Control Host to Item Service bridge",
	Long:  logo + " throwbridge — keeps a control surface's item and trigger lists in sync with a throwing app and forwards its actions",
}

// Execute runs the root command and exits on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Version = version
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Config file (default ~/.throwbridge/config.json)")

	rootCmd.AddCommand(onboardCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(logsCmd)
}

// configPath resolves the --config flag.
func configPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.ConfigPath()
}
