package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/spotify/medusa-go/internal/report"
)

var reportLastBackupCmd = &cobra.Command{
	Use:   "report-last-backup",
	Short: "Report each node's most recent successful backup timestamp",
	RunE:  runReportLastBackup,
}

func init() {
	reportLastBackupCmd.Flags().Bool("push-metrics", false, "Push the timestamps to monitoring_provider's PushGateway")
}

func runReportLastBackup(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	driver, err := buildDriver(ctx, cfg)
	if err != nil {
		return err
	}

	var pushGatewayURL string
	if push, _ := cmd.Flags().GetBool("push-metrics"); push {
		pushGatewayURL = cfg.Monitoring.MonitoringProvider
	}

	reports, err := report.ReportLastBackup(ctx, driver, pushGatewayURL)
	if err != nil {
		return fmt.Errorf("report-last-backup: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "FQDN\tBACKUP\tLAST SUCCESS")
	for _, r := range reports {
		fmt.Fprintf(w, "%s\t%s\t%s\n", r.FQDN, r.BackupName, time.Unix(r.LastSuccess, 0).UTC().Format(time.RFC3339))
	}
	return w.Flush()
}
