package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spotify/medusa-go/internal/clusterbackup"
	"github.com/spotify/medusa-go/internal/index"
	"github.com/spotify/medusa-go/internal/nodebackup"
	"github.com/spotify/medusa-go/internal/types"
	"github.com/spotify/medusa-go/internal/verify"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Cross-check a backup's manifest against what storage actually holds",
	RunE:  runVerify,
}

func init() {
	verifyCmd.Flags().String("backup-name", "", "Backup name (required)")
	_ = verifyCmd.MarkFlagRequired("backup-name")
}

func runVerify(cmd *cobra.Command, args []string) error {
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

	entries, err := index.ListEntries(ctx, driver, name)
	if err != nil {
		return fmt.Errorf("list entries for %s: %w", name, err)
	}
	members := make(map[string]*nodebackup.NodeBackup, len(entries))
	for _, e := range entries {
		members[e.FQDN] = nodebackup.New(driver, e.FQDN, name, types.ModeFull)
	}
	cb := clusterbackup.New(name, members)

	v := &verify.Verifier{Driver: driver}
	report, err := v.VerifyCluster(ctx, cb)
	if err != nil {
		return fmt.Errorf("verify %s: %w", name, err)
	}

	exitNonZero := false
	for fqdn, nr := range report.Nodes {
		if nr.OK() {
			fmt.Printf("%s: OK\n", fqdn)
			continue
		}
		exitNonZero = true
		if !nr.Complete {
			fmt.Printf("%s: ERROR incomplete backup\n", fqdn)
			continue
		}
		for _, issue := range nr.Issues {
			fmt.Printf("%s: WARN %s %s %s\n", fqdn, issue.Kind, issue.Path, issue.Detail)
		}
	}
	if exitNonZero {
		return fmt.Errorf("verify %s found issues", name)
	}
	return nil
}
