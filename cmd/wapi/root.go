package main

import (
	"github.com/spf13/cobra"

	"github.com/Bossianity/Project-WAPi/internal/util"
)

// cfg is the configuration of the running command, filled in before any
// subcommand runs.
var cfg Config

var rootFlags struct {
	debug    bool
	stateDir string
	policy   string
}

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:           AppName,
	Short:         "WhatsApp property-management assistant",
	Long:          "Answers WhatsApp enquiries about rental properties, runs guided sell/rent flows, outreach campaigns and appointment booking.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		loadDotEnv()
		initializeLogger(rootFlags.debug || util.ParseBoolEnv("WAPI_DEBUG", false))
		c := loadEnvironmentConfig()
		applyRootFlags(cmd, &c)
		c.resolve()
		cfg = c
	},
}

func init() {
	RootCmd.PersistentFlags().BoolVar(&rootFlags.debug, "debug", false, "Debug logging (overrides $WAPI_DEBUG)")
	RootCmd.PersistentFlags().StringVar(&rootFlags.stateDir, "state-dir", "", "State directory (default: $WAPI_STATE_DIR or $XDG_STATE_HOME/wapi)")
	RootCmd.PersistentFlags().StringVar(&rootFlags.policy, "policy", "", "Policy YAML overriding the built-in one (overrides $WAPI_POLICY_FILE)")
}

func applyRootFlags(cmd *cobra.Command, c *Config) {
	flags := cmd.Flags()
	if flags.Changed("debug") {
		c.Debug = rootFlags.debug
	}
	if flags.Changed("state-dir") {
		c.StateDir = rootFlags.stateDir
	}
	if flags.Changed("policy") {
		c.PolicyFile = rootFlags.policy
	}
}
