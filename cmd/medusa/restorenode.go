package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/spotify/medusa-go/internal/cassandra"
	"github.com/spotify/medusa-go/internal/restorenode"
)

var restoreNodeCmd = &cobra.Command{
	Use:   "restore-node",
	Short: "Restore a backup onto this node's local Cassandra data directory",
	RunE:  runRestoreNode,
}

func init() {
	restoreNodeCmd.Flags().String("backup-name", "", "Backup name (required)")
	restoreNodeCmd.Flags().String("temp-dir", "", "Staging directory for downloaded objects")
	restoreNodeCmd.Flags().Bool("in-place", false, "Restore onto the same host the backup was taken from")
	restoreNodeCmd.Flags().Bool("keep-auth", false, "Leave system_auth untouched")
	restoreNodeCmd.Flags().String("seeds", "", "Comma-separated seed hosts to poll before starting")
	restoreNodeCmd.Flags().Bool("use-sstableloader", false, "Stream restored SSTables with sstableloader instead of a directory swap")
	_ = restoreNodeCmd.MarkFlagRequired("backup-name")
}

func runRestoreNode(cmd *cobra.Command, args []string) error {
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
	tempDir, _ := cmd.Flags().GetString("temp-dir")
	inPlace, _ := cmd.Flags().GetBool("in-place")
	keepAuth, _ := cmd.Flags().GetBool("keep-auth")
	seedsFlag, _ := cmd.Flags().GetString("seeds")
	useSstableloader, _ := cmd.Flags().GetBool("use-sstableloader")

	var seeds []string
	if seedsFlag != "" {
		seeds = strings.Split(seedsFlag, ",")
	}

	var loader cassandra.SSTableLoader
	if useSstableloader && len(seeds) > 0 {
		loader = cassandra.NewProcessSSTableLoader(seeds[0])
	}

	restorer := &restorenode.Restorer{
		Driver: driver,
		Controller: &cassandra.ProcessController{
			StopCommand:  strings.Fields(cfg.Cassandra.StopCmd),
			StartCommand: strings.Fields(cfg.Cassandra.StartCmd),
		},
		SSTableLoader: loader,
		SeedProbe: &cassandra.CqlshSeedProbe{
			User:     cfg.Cassandra.CQLUsername,
			Password: cfg.Cassandra.CQLPassword,
		},
		DataRoot:       cfg.Cassandra.DataDir,
		CommitLogDir:   cfg.Cassandra.CommitLogDir,
		SavedCachesDir: cfg.Cassandra.SavedCachesDir,
	}

	req := restorenode.Request{
		FQDN:             cfg.Storage.FQDN,
		BackupName:       name,
		TempDir:          tempDir,
		InPlace:          inPlace,
		KeepAuth:         keepAuth,
		Seeds:            seeds,
		UseSstableloader: useSstableloader,
	}

	if err := restorer.Restore(ctx, req, false); err != nil {
		return fmt.Errorf("restore-node %s: %w", name, err)
	}
	fmt.Printf("restore-node %s completed for %s\n", name, cfg.Storage.FQDN)
	return nil
}
