package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/spotify/medusa-go/internal/backupengine"
	"github.com/spotify/medusa-go/internal/cassandra"
	"github.com/spotify/medusa-go/internal/types"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Take a snapshot of this node and upload it to storage",
	RunE:  runBackup,
}

func init() {
	backupCmd.Flags().String("backup-name", "", "Backup name (defaults to the current unix timestamp)")
	backupCmd.Flags().Duration("stagger", 0, "Stagger budget before starting (e.g. 5m)")
	backupCmd.Flags().String("mode", "differential", "Backup mode: full or differential/incremental")
}

func runBackup(cmd *cobra.Command, args []string) error {
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
	if name == "" {
		name = backupengine.DefaultBackupName(time.Now())
	}
	stagger, _ := cmd.Flags().GetDuration("stagger")
	modeFlag, _ := cmd.Flags().GetString("mode")

	mode := types.ModeIncremental
	if strings.EqualFold(modeFlag, "full") {
		mode = types.ModeFull
	}

	engine := &backupengine.Engine{
		Driver:      driver,
		Snapshotter: cassandra.NewNodetoolSnapshotter(),
		Sessions: &cassandra.NodetoolSession{
			CqlshUser:     cfg.Cassandra.CQLUsername,
			CqlshPassword: cfg.Cassandra.CQLPassword,
		},
		DataRoot: cassandraDataRoot(cfg),
	}

	if err := engine.Run(ctx, cfg.Storage.FQDN, name, stagger, mode); err != nil {
		return fmt.Errorf("backup failed: %w", err)
	}
	fmt.Printf("backup %s (%s) completed for %s\n", name, mode, cfg.Storage.FQDN)
	return nil
}
