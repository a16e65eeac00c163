package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/spotify/medusa-go/internal/status"
)

var listBackupsCmd = &cobra.Command{
	Use:   "list-backups",
	Short: "List backups known to the catalog",
	RunE:  runListBackups,
}

func init() {
	listBackupsCmd.Flags().Bool("show-all", false, "Include backups that have not completed on every node")
}

func runListBackups(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	driver, err := buildDriver(ctx, cfg)
	if err != nil {
		return err
	}
	showAll, _ := cmd.Flags().GetBool("show-all")

	catalog := &status.Catalog{Driver: driver}
	summaries, err := catalog.ListBackups(ctx, showAll)
	if err != nil {
		return fmt.Errorf("list backups: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tCOMPLETE\tFINISHED")
	for _, s := range summaries {
		finished := "-"
		if s.Status.Finished != nil {
			finished = s.Status.Finished.Format("2006-01-02T15:04:05Z")
		}
		fmt.Fprintf(w, "%s\t%v\t%s\n", s.Name, s.Status.IsComplete(), finished)
	}
	return w.Flush()
}
