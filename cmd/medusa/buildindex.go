package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spotify/medusa-go/internal/index"
	"github.com/spotify/medusa-go/internal/index/localcache"
)

var buildIndexCmd = &cobra.Command{
	Use:   "build-index",
	Short: "Rebuild the local index cache from storage",
	RunE:  runBuildIndex,
}

func init() {
	buildIndexCmd.Flags().Bool("noop", false, "Report what would be rebuilt without touching the local cache")
	buildIndexCmd.Flags().String("cache-dir", "/var/lib/medusa", "Directory holding the local index cache")
}

func runBuildIndex(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	driver, err := buildDriver(ctx, cfg)
	if err != nil {
		return err
	}

	noop, _ := cmd.Flags().GetBool("noop")
	if noop {
		names, err := index.ListNames(ctx, driver)
		if err != nil {
			return fmt.Errorf("list names: %w", err)
		}
		fmt.Printf("build-index (noop): would rebuild %d backup name(s)\n", len(names))
		return nil
	}

	cacheDir, _ := cmd.Flags().GetString("cache-dir")
	cache, err := localcache.Open(cacheDir)
	if err != nil {
		return fmt.Errorf("open index cache at %s: %w", cacheDir, err)
	}
	defer cache.Close()

	if err := index.Rebuild(ctx, driver, cache); err != nil {
		return fmt.Errorf("rebuild index: %w", err)
	}
	fmt.Println("build-index completed")
	return nil
}
