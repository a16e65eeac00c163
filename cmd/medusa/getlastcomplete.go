package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spotify/medusa-go/internal/report"
)

var getLastCompleteClusterBackupCmd = &cobra.Command{
	Use:   "get-last-complete-cluster-backup",
	Short: "Print the name of the newest backup complete on every node",
	RunE:  runGetLastCompleteClusterBackup,
}

func runGetLastCompleteClusterBackup(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	driver, err := buildDriver(ctx, cfg)
	if err != nil {
		return err
	}

	name, ok, err := report.GetLastCompleteClusterBackup(ctx, driver)
	if err != nil {
		return fmt.Errorf("get-last-complete-cluster-backup: %w", err)
	}
	if !ok {
		return fmt.Errorf("no complete cluster backup found")
	}
	fmt.Println(name)
	return nil
}
