package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Bossianity/Project-WAPi/internal/lockfile"
	"github.com/Bossianity/Project-WAPi/internal/outreach"
	"github.com/Bossianity/Project-WAPi/internal/util"
)

var outreachAdmin string

var outreachCmd = &cobra.Command{
	Use:   "outreach [sheet-id-or-url]",
	Short: "Run an outreach campaign in the foreground",
	Long:  "Sends the campaign template to every pending contact of the sheet and prints the summary. Without an argument DEFAULT_OUTREACH_SHEET_ID is used.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		spec := cfg.DefaultOutreachSheet
		if len(args) == 1 {
			spec = args[0]
		}
		if spec == "" {
			return errors.New("no sheet given and DEFAULT_OUTREACH_SHEET_ID is not set")
		}
		sheetID := util.ExtractSheetID(spec)
		if !util.LooksLikeSheetID(sheetID) {
			return fmt.Errorf("%q is not a Google Sheet ID or URL", spec)
		}

		ctx := cmd.Context()
		if cfg.Provider == "whatsmeow" {
			// The whatsmeow device store cannot be shared with a running server.
			lock, err := lockfile.AcquireLock(cfg.StateDir)
			if err != nil {
				return err
			}
			defer lock.Release()
		}
		g := openGoogle(ctx, cfg)
		if g.sheets == nil {
			return errors.New("Google Sheets access is not configured")
		}
		prov, err := openProvider(ctx, cfg)
		if err != nil {
			return err
		}
		if err := prov.svc.Start(ctx); err != nil {
			return err
		}
		defer prov.svc.Stop()

		runner := outreach.NewRunner(g.sheets, prov.svc, buildOutreachOptions(cfg, loadLocation(cfg.DisplayTimezone))...)
		sum := runner.Run(ctx, sheetID, outreachAdmin)
		fmt.Fprintln(cmd.OutOrStdout(), sum.Message())
		if sum.Aborted != "" {
			return errors.New("campaign aborted")
		}
		return nil
	},
}

func init() {
	outreachCmd.Flags().StringVar(&outreachAdmin, "admin", "", "Also send the summary to this WhatsApp number")
	RootCmd.AddCommand(outreachCmd)
}
