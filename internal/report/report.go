// Package report implements the fetch-tokenmap and report-last-backup
// verbs: printing a node's token map and publishing the timestamp of each
// node's most recent successful backup.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spotify/medusa-go/internal/index"
	"github.com/spotify/medusa-go/internal/metrics"
	"github.com/spotify/medusa-go/internal/nodebackup"
	"github.com/spotify/medusa-go/internal/status"
	"github.com/spotify/medusa-go/internal/storage"
	"github.com/spotify/medusa-go/internal/types"
)

// TokenMapPrinter renders a TokenMap either to an output file or to Out
// (stdout by default) when no destination is given, matching the
// original's fetch_ringstate.py behavior.
type TokenMapPrinter struct {
	Out io.Writer
}

func (p *TokenMapPrinter) out() io.Writer {
	if p.Out != nil {
		return p.Out
	}
	return os.Stdout
}

// Print writes tm as indented JSON to destPath, or to Out if destPath is empty.
func (p *TokenMapPrinter) Print(tm types.TokenMap, destPath string) error {
	data, err := json.MarshalIndent(tm, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal tokenmap: %w", err)
	}
	data = append(data, '\n')

	if destPath == "" {
		_, err := p.out().Write(data)
		return err
	}
	return os.WriteFile(destPath, data, 0o644)
}

// FetchTokenMap loads name's token map for fqdn from storage.
func FetchTokenMap(ctx context.Context, driver storage.Driver, fqdn, name string) (types.TokenMap, error) {
	nb := nodebackup.New(driver, fqdn, name, types.ModeFull)
	return nb.TokenMap(ctx)
}

// LastBackupReport is one fqdn's most recent successful backup timestamp.
type LastBackupReport struct {
	FQDN        string
	BackupName  string
	LastSuccess int64 // unix seconds
}

// ReportLastBackup scans the index for every fqdn's most recently finished
// backup and sets the medusa_backup_last_success_timestamp_seconds gauge
// per fqdn. If pushGatewayURL is non-empty, the updated registry is also
// pushed there under the "medusa" job, for report-last-backup --push-metrics.
func ReportLastBackup(ctx context.Context, driver storage.Driver, pushGatewayURL string) ([]LastBackupReport, error) {
	names, err := index.ListNames(ctx, driver)
	if err != nil {
		return nil, fmt.Errorf("list backup names: %w", err)
	}

	latest := make(map[string]LastBackupReport)
	for _, name := range names {
		entries, err := index.ListEntries(ctx, driver, name)
		if err != nil {
			return nil, fmt.Errorf("list entries for %s: %w", name, err)
		}
		for _, e := range entries {
			if e.Finished == nil {
				continue
			}
			cur, ok := latest[e.FQDN]
			if !ok || e.Finished.Unix() > cur.LastSuccess {
				latest[e.FQDN] = LastBackupReport{FQDN: e.FQDN, BackupName: name, LastSuccess: e.Finished.Unix()}
			}
		}
	}

	reports := make([]LastBackupReport, 0, len(latest))
	for _, r := range latest {
		reports = append(reports, r)
		metrics.BackupLastSuccessTimestamp.WithLabelValues(r.FQDN).Set(float64(r.LastSuccess))
	}
	sort.Slice(reports, func(i, j int) bool { return reports[i].FQDN < reports[j].FQDN })

	if pushGatewayURL != "" {
		if err := metrics.PushGateway(pushGatewayURL, "medusa"); err != nil {
			return reports, fmt.Errorf("push metrics: %w", err)
		}
	}
	return reports, nil
}

// GetLastCompleteClusterBackup is a thin wrapper over status.Catalog used
// by the get-last-complete-cluster-backup verb.
func GetLastCompleteClusterBackup(ctx context.Context, driver storage.Driver) (string, bool, error) {
	c := &status.Catalog{Driver: driver}
	name, _, ok, err := c.LatestComplete(ctx)
	return name, ok, err
}
