// Package cmd implements the smartops CLI using cobra.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	configx "github.com/tanpawarit/smartops-bi/pkg/config"
	logx "github.com/tanpawarit/smartops-bi/pkg/logger"
)

const version = "0.1.0"

var (
	envFile string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:               "smartops",
	Short:             "SmartOps BI assistant",
	Long:              "SmartOps answers business questions in natural language by querying the operations database.",
	SilenceUsage:      true,
	PersistentPreRunE: setup,
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
	rootCmd.PersistentFlags().StringVar(&envFile, "env", "", "path to .env file (defaults to $ENV_FILE, then ./.env)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "debug logging")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(statsCmd)
}

// setup reloads configuration once flags are known and re-initializes the
// logger with it.
func setup(_ *cobra.Command, _ []string) error {
	configx.SetEnvFile(envFile)

	logCfg, err := configx.New[logx.Config]("LOG")
	if err != nil {
		return fmt.Errorf("load log config: %w", err)
	}
	if debug {
		logCfg.Debug = true
	}
	logx.Init(*logCfg)
	return nil
}
