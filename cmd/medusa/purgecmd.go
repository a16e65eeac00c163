package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/spotify/medusa-go/internal/purge"
)

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Retire old backups per max_backup_age/max_backup_count in the configuration file",
	RunE:  runPurge,
}

func init() {
	purgeCmd.Flags().Bool("noop", false, "Print the purge plan without deleting anything")
}

func runPurge(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	driver, err := buildDriver(ctx, cfg)
	if err != nil {
		return err
	}

	if cfg.Storage.MaxBackupAge <= 0 && cfg.Storage.MaxBackupCount <= 0 {
		return fmt.Errorf("purge: neither max_backup_age nor max_backup_count is configured")
	}

	planner := &purge.Planner{Driver: driver}
	var plan purge.Plan
	switch {
	case cfg.Storage.MaxBackupAge > 0:
		maxAge := time.Duration(cfg.Storage.MaxBackupAge) * 24 * time.Hour
		plan, err = planner.PlanByAge(ctx, cfg.Storage.FQDN, maxAge, time.Now())
	default:
		plan, err = planner.PlanByCount(ctx, cfg.Storage.FQDN, cfg.Storage.MaxBackupCount)
	}
	if err != nil {
		return fmt.Errorf("plan purge: %w", err)
	}

	fmt.Print(plan.Summary())

	noop, _ := cmd.Flags().GetBool("noop")
	if noop || len(plan.Delete) == 0 {
		return nil
	}

	purger := &purge.Purger{Driver: driver}
	result, err := purger.Execute(ctx, plan)
	if err != nil {
		return fmt.Errorf("execute purge: %w", err)
	}
	fmt.Printf("purge deleted %d backup(s), %d object(s)\n", len(result.BackupsDeleted), result.ObjectsDeleted)
	return nil
}
