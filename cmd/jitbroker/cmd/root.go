// Package cmd provides the CLI commands for the JIT groups broker.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jitgroups/broker/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "jitbroker",
	Short: "jitbroker - Just-in-Time access broker",
	Long: `jitbroker evaluates a declarative policy, enforces access-control and
constraint predicates, collects peer approvals for multi-party requests,
and provisions the time-bound directory-group membership and resource-IAM
bindings a JIT group confers.

Configuration:
  Config is loaded from jitbroker.yaml in the current directory,
  $HOME/.jitbroker/, or /etc/jitbroker/.

  Environment variables can override config values with the JITBROKER_
  prefix. Example: JITBROKER_DIRECTORY_DOMAIN=example.com

Commands:
  policy validate       Parse and validate a policy document
  reconcile             Reconcile a JIT group's IAM bindings
  provisioned-groups     List provisioned JIT groups in an environment
  version                Print version information`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./jitbroker.yaml)")
	rootCmd.PersistentFlags().Bool("dev", false, "enable development defaults (in-memory backend, ephemeral signing key)")
}

func initConfig() {
	config.InitViper(cfgFile)
}

// loadConfig reads and validates the broker config, applying --dev if set.
func loadConfig(cmd *cobra.Command) (*config.BrokerConfig, error) {
	cfg, err := config.LoadConfigRaw()
	if err != nil {
		return nil, err
	}
	if dev, _ := cmd.Flags().GetBool("dev"); dev {
		cfg.DevMode = true
	}
	cfg.SetDevDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}
