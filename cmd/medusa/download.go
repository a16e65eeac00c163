package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spotify/medusa-go/internal/nodebackup"
	"github.com/spotify/medusa-go/internal/types"
)

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download a backup's objects to a local directory",
	RunE:  runDownload,
}

func init() {
	downloadCmd.Flags().String("backup-name", "", "Backup name (required)")
	downloadCmd.Flags().String("download-destination", "", "Local directory to download into (required)")
	_ = downloadCmd.MarkFlagRequired("backup-name")
	_ = downloadCmd.MarkFlagRequired("download-destination")
}

func runDownload(cmd *cobra.Command, args []string) error {
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
	dest, _ := cmd.Flags().GetString("download-destination")

	nb := nodebackup.New(driver, cfg.Storage.FQDN, name, types.ModeFull)
	manifest, err := nb.Manifest(ctx)
	if err != nil {
		return fmt.Errorf("load manifest for %s: %w", name, err)
	}

	var paths []string
	for _, section := range manifest {
		for _, obj := range section.Objects {
			paths = append(paths, obj.Path)
		}
	}
	if err := driver.DownloadMany(ctx, paths, dest); err != nil {
		return fmt.Errorf("download %s: %w", name, err)
	}
	fmt.Printf("downloaded %d object(s) from %s to %s\n", len(paths), name, dest)
	return nil
}
