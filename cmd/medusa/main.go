package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/spotify/medusa-go/internal/config"
	"github.com/spotify/medusa-go/internal/mlog"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "medusa",
	Short:   "Backup and restore a Cassandra cluster against object storage",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("medusa version %s (%s)\n", Version, Commit))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("config", "/etc/medusa/medusa.yaml", "Path to the medusa configuration file")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(listBackupsCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(restoreNodeCmd)
	rootCmd.AddCommand(restoreClusterCmd)
	rootCmd.AddCommand(buildIndexCmd)
	rootCmd.AddCommand(purgeCmd)
	rootCmd.AddCommand(fetchTokenMapCmd)
	rootCmd.AddCommand(reportLastBackupCmd)
	rootCmd.AddCommand(getLastCompleteClusterBackupCmd)
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	jsonOutput, _ := rootCmd.PersistentFlags().GetBool("log-json")
	mlog.Init(mlog.Config{Level: mlog.Level(level), JSONOutput: jsonOutput})
}

// loadConfig reads the --config file shared by every subcommand.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	return config.LoadFile(path)
}
