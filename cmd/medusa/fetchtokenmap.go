package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spotify/medusa-go/internal/report"
)

var fetchTokenMapCmd = &cobra.Command{
	Use:   "fetch-tokenmap",
	Short: "Print a backup's token map",
	RunE:  runFetchTokenMap,
}

func init() {
	fetchTokenMapCmd.Flags().String("backup-name", "", "Backup name (required)")
	fetchTokenMapCmd.Flags().String("dest", "", "Write the token map here instead of stdout")
	_ = fetchTokenMapCmd.MarkFlagRequired("backup-name")
}

func runFetchTokenMap(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	driver, err := buildDriver(ctx, cfg)
	if err != nil {
		return err
	}

	name, _ := cmd.Flags().GetString("backup-name")
	dest, _ := cmd.Flags().GetString("dest")

	tm, err := report.FetchTokenMap(ctx, driver, cfg.Storage.FQDN, name)
	if err != nil {
		return fmt.Errorf("fetch-tokenmap %s: %w", name, err)
	}

	printer := &report.TokenMapPrinter{}
	return printer.Print(tm, dest)
}
