// Package clusterbackup derives a cluster-wide view from the set of
// NodeBackups sharing a name: completeness, the shared token map, and the
// complete/incomplete/missing node partitions used by verify and restore.
package clusterbackup

import (
	"context"
	"fmt"
	"time"

	"github.com/spotify/medusa-go/internal/nodebackup"
	"github.com/spotify/medusa-go/internal/types"
)

// ClusterBackup groups every NodeBackup sharing Name.
type ClusterBackup struct {
	Name    string
	Members map[string]*nodebackup.NodeBackup // keyed by fqdn
}

// New groups members (which must all share the same Name) into a ClusterBackup.
func New(name string, members map[string]*nodebackup.NodeBackup) *ClusterBackup {
	return &ClusterBackup{Name: name, Members: members}
}

// Status is the computed, point-in-time view of a ClusterBackup.
type Status struct {
	TokenMap        types.TokenMap
	Finished        *time.Time // nil unless every tokenmap member has finished
	CompleteNodes   map[string]bool
	IncompleteNodes map[string]bool
	MissingNodes    map[string]bool
}

// IsComplete reports whether the cluster backup finished, i.e. every node
// named in the token map has a finished member and none are missing.
func (s *Status) IsComplete() bool {
	return s.Finished != nil && len(s.MissingNodes) == 0
}

// Compute derives Status by loading each member's token map and finish time.
// All members are expected to carry the same cluster-wide token map as of
// backup time; TokenMap is taken from whichever member loads first.
func (c *ClusterBackup) Compute(ctx context.Context) (*Status, error) {
	status := &Status{
		CompleteNodes:   map[string]bool{},
		IncompleteNodes: map[string]bool{},
		MissingNodes:    map[string]bool{},
	}

	for fqdn, member := range c.Members {
		if status.TokenMap == nil {
			tm, err := member.TokenMap(ctx)
			if err != nil {
				return nil, fmt.Errorf("load tokenmap for %s: %w", fqdn, err)
			}
			status.TokenMap = tm
		}

		finished, ok, err := member.Finished(ctx)
		if err != nil {
			return nil, fmt.Errorf("load finished for %s: %w", fqdn, err)
		}
		if ok {
			status.CompleteNodes[fqdn] = true
			if status.Finished == nil || finished.After(*status.Finished) {
				status.Finished = &finished
			}
		} else {
			status.IncompleteNodes[fqdn] = true
		}
	}

	for fqdn := range status.TokenMap {
		if _, known := c.Members[fqdn]; !known {
			status.MissingNodes[fqdn] = true
		}
	}

	// finished is only meaningful once every tokenmap member is present and
	// has itself finished; any incomplete or missing node voids it.
	if len(status.IncompleteNodes) > 0 || len(status.MissingNodes) > 0 {
		status.Finished = nil
	}

	return status, nil
}
