package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Bossianity/Project-WAPi/internal/whapi"
)

var webhookCmd = &cobra.Command{
	Use:   "webhook",
	Short: "Manage the Whapi.Cloud webhook",
}

var webhookSetCmd = &cobra.Command{
	Use:   "set [url]",
	Short: "Point the gateway's message webhook at url (default: $BOT_URL)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		url := cfg.BotURL
		if len(args) == 1 {
			url = args[0]
		}
		if url == "" {
			return fmt.Errorf("no URL given and BOT_URL is not set")
		}
		client, err := whapi.NewClient(buildWhapiOptions(cfg)...)
		if err != nil {
			return err
		}
		if err := client.SetWebhook(cmd.Context(), url); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "webhook set to %s\n", url)
		return nil
	},
}

func init() {
	webhookCmd.AddCommand(webhookSetCmd)
	RootCmd.AddCommand(webhookCmd)
}
