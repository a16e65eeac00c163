package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/spotify/medusa-go/internal/status"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the cluster-wide status of one backup",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().String("backup-name", "", "Backup name (required)")
	_ = statusCmd.MarkFlagRequired("backup-name")
}

func runStatus(cmd *cobra.Command, args []string) error {
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

	catalog := &status.Catalog{Driver: driver}
	st, err := catalog.Status(ctx, name)
	if err != nil {
		return fmt.Errorf("status %s: %w", name, err)
	}

	fmt.Printf("backup: %s\ncomplete: %v\n", name, st.IsComplete())
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "FQDN\tSTATE")
	for fqdn := range st.CompleteNodes {
		fmt.Fprintf(w, "%s\tcomplete\n", fqdn)
	}
	for fqdn := range st.IncompleteNodes {
		fmt.Fprintf(w, "%s\tincomplete\n", fqdn)
	}
	for fqdn := range st.MissingNodes {
		fmt.Fprintf(w, "%s\tmissing\n", fqdn)
	}
	return w.Flush()
}
