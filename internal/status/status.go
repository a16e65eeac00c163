// Package status answers catalog queries over the backup index: listing
// every backup name known to a cluster, computing one name's cluster-wide
// status, and finding the most recently finished complete cluster backup.
package status

import (
	"context"
	"fmt"
	"sort"

	"github.com/spotify/medusa-go/internal/clusterbackup"
	"github.com/spotify/medusa-go/internal/index"
	"github.com/spotify/medusa-go/internal/nodebackup"
	"github.com/spotify/medusa-go/internal/storage"
	"github.com/spotify/medusa-go/internal/types"
)

// Summary is one row of a list-backups listing.
type Summary struct {
	Name   string
	Status *clusterbackup.Status
}

// Catalog answers list-backups/status/get-last-complete-cluster-backup
// queries directly against the authoritative index.
type Catalog struct {
	Driver storage.Driver
}

// clusterBackupFor loads every indexed fqdn for name into a ClusterBackup.
// The member's BackupMode is unknowable from the index alone and unused by
// Compute, so ModeFull is passed as a placeholder (mirrors the same
// placeholder-mode construction internal/purge uses for the same reason).
func (c *Catalog) clusterBackupFor(ctx context.Context, name string) (*clusterbackup.ClusterBackup, error) {
	entries, err := index.ListEntries(ctx, c.Driver, name)
	if err != nil {
		return nil, fmt.Errorf("list entries for %s: %w", name, err)
	}
	members := make(map[string]*nodebackup.NodeBackup, len(entries))
	for _, e := range entries {
		members[e.FQDN] = nodebackup.New(c.Driver, e.FQDN, name, types.ModeFull)
	}
	return clusterbackup.New(name, members), nil
}

// ListBackups returns one Summary per backup name known to the index,
// newest-finished-first. Unless showAll is set, backups that have not
// completed on every node are omitted, matching --show-all's original
// semantics.
func (c *Catalog) ListBackups(ctx context.Context, showAll bool) ([]Summary, error) {
	names, err := index.ListNames(ctx, c.Driver)
	if err != nil {
		return nil, fmt.Errorf("list backup names: %w", err)
	}

	var summaries []Summary
	for _, name := range names {
		cb, err := c.clusterBackupFor(ctx, name)
		if err != nil {
			return nil, err
		}
		st, err := cb.Compute(ctx)
		if err != nil {
			return nil, fmt.Errorf("compute status for %s: %w", name, err)
		}
		if !showAll && !st.IsComplete() {
			continue
		}
		summaries = append(summaries, Summary{Name: name, Status: st})
	}

	sort.Slice(summaries, func(i, j int) bool {
		si, sj := summaries[i].Status, summaries[j].Status
		switch {
		case si.Finished == nil && sj.Finished == nil:
			return summaries[i].Name < summaries[j].Name
		case si.Finished == nil:
			return false
		case sj.Finished == nil:
			return true
		default:
			return si.Finished.After(*sj.Finished)
		}
	})
	return summaries, nil
}

// Status computes the cluster-wide status of one named backup.
func (c *Catalog) Status(ctx context.Context, name string) (*clusterbackup.Status, error) {
	cb, err := c.clusterBackupFor(ctx, name)
	if err != nil {
		return nil, err
	}
	return cb.Compute(ctx)
}

// LatestComplete returns the most recently finished backup whose cluster
// status reports complete, and false if none does.
func (c *Catalog) LatestComplete(ctx context.Context) (string, *clusterbackup.Status, bool, error) {
	summaries, err := c.ListBackups(ctx, false)
	if err != nil {
		return "", nil, false, err
	}
	if len(summaries) == 0 {
		return "", nil, false, nil
	}
	return summaries[0].Name, summaries[0].Status, true, nil
}
