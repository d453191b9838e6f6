package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jingkaihe/rescue/pkg/logger"
	"github.com/jingkaihe/rescue/pkg/presenter"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func init() {
	// Environment variables
	viper.SetEnvPrefix("RESCUE")
	viper.AutomaticEnv()

	// Config file support
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("$HOME/.rescue")
	viper.AddConfigPath(".")

	// Load config file if it exists (ignore errors if it doesn't)
	_ = viper.ReadInConfig()
}

var rootCmd = &cobra.Command{
	Use:   "rescue",
	Short: "Run operations with automated error recovery",
	Long: `Rescue wraps fallible shell operations and, when one fails, drives a
tiered diagnostic cascade: a fast triage model first, a research-augmented
model second, and escalation to a human operator when both are exhausted.
Every failure leaves a persisted JSON audit record.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := logger.Init(viper.GetString("log_level"), viper.GetString("log_format")); err != nil {
			return err
		}
		presenter.SetQuiet(viper.GetBool("quiet"))
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
		os.Exit(1)
	},
}

// bindFlags binds each named flag to the viper key of the same name.
func bindFlags(flags *pflag.FlagSet, keys map[string]string) {
	for flagName, viperKey := range keys {
		viper.BindPFlag(viperKey, flags.Lookup(flagName))
	}
}

func main() {
	// Global flags
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "Log format (text, json)")
	rootCmd.PersistentFlags().Bool("quiet", false, "Suppress non-essential output")

	bindFlags(rootCmd.PersistentFlags(), map[string]string{
		"log-level":  "log_level",
		"log-format": "log_format",
		"quiet":      "quiet",
	})

	// Subcommands
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(diagnoseCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
