// Package verify cross-checks a node or cluster backup's manifest against
// what is actually present in storage, reporting missing objects, size or
// checksum drift, and (full backups only) orphaned objects no manifest
// references.
package verify

import (
	"context"
	"fmt"
	"sort"

	"github.com/spotify/medusa-go/internal/clusterbackup"
	"github.com/spotify/medusa-go/internal/nodebackup"
	"github.com/spotify/medusa-go/internal/storage"
	"github.com/spotify/medusa-go/internal/types"
)

// IssueKind classifies a single object discrepancy.
type IssueKind string

const (
	IssueMissing       IssueKind = "missing"
	IssueWrongSize     IssueKind = "wrong_size"
	IssueWrongChecksum IssueKind = "wrong_checksum"
	IssueOrphan        IssueKind = "orphan"
)

// Issue describes one discrepancy between a manifest and actual storage.
type Issue struct {
	Path   string
	Kind   IssueKind
	Detail string
}

// NodeReport is the verification result for a single NodeBackup.
type NodeReport struct {
	FQDN     string
	Complete bool
	Issues   []Issue
}

// OK reports whether the backup finished and matches storage exactly.
func (r NodeReport) OK() bool { return r.Complete && len(r.Issues) == 0 }

// ClusterReport groups every member NodeBackup's report under one name.
type ClusterReport struct {
	Name  string
	Nodes map[string]NodeReport
}

// OK reports whether every member node verified clean.
func (c ClusterReport) OK() bool {
	for _, n := range c.Nodes {
		if !n.OK() {
			return false
		}
	}
	return true
}

// Verifier cross-checks NodeBackups against a Driver.
type Verifier struct {
	Driver storage.Driver
}

// VerifyNode checks nb's manifest against the objects actually present
// under its data prefix. An incomplete backup (no manifest yet) is
// reported as such without walking any objects. Orphan objects — present
// in storage but absent from the manifest — are only reported for full
// backups, since an incremental backup's data prefix is the node-wide
// shared pool every other incremental backup also references.
func (v *Verifier) VerifyNode(ctx context.Context, nb *nodebackup.NodeBackup) (NodeReport, error) {
	report := NodeReport{FQDN: nb.FQDN}

	complete, err := nb.IsComplete(ctx)
	if err != nil {
		return report, fmt.Errorf("check completeness: %w", err)
	}
	report.Complete = complete
	if !complete {
		return report, nil
	}

	manifest, err := nb.Manifest(ctx)
	if err != nil {
		return report, fmt.Errorf("load manifest: %w", err)
	}

	actual, err := v.Driver.List(ctx, nb.DataPrefix())
	if err != nil {
		return report, fmt.Errorf("list storage: %w", err)
	}
	actualByPath := make(map[string]storage.Object, len(actual))
	for _, o := range actual {
		actualByPath[o.Name] = o
	}

	seen := make(map[string]bool, manifest.TotalObjects())
	for _, section := range manifest {
		for _, obj := range section.Objects {
			seen[obj.Path] = true
			a, ok := actualByPath[obj.Path]
			if !ok {
				report.Issues = append(report.Issues, Issue{Path: obj.Path, Kind: IssueMissing})
				continue
			}
			if a.Size != obj.Size {
				report.Issues = append(report.Issues, Issue{
					Path: obj.Path, Kind: IssueWrongSize,
					Detail: fmt.Sprintf("manifest=%d actual=%d", obj.Size, a.Size),
				})
			}
			if !storage.HashesMatch(a.Hash, obj.MD5) {
				report.Issues = append(report.Issues, Issue{
					Path: obj.Path, Kind: IssueWrongChecksum,
					Detail: fmt.Sprintf("manifest=%s actual=%s", obj.MD5, a.Hash),
				})
			}
		}
	}

	if nb.Mode == types.ModeFull {
		for path := range actualByPath {
			if !seen[path] {
				report.Issues = append(report.Issues, Issue{Path: path, Kind: IssueOrphan})
			}
		}
	}

	sort.Slice(report.Issues, func(i, j int) bool {
		if report.Issues[i].Path != report.Issues[j].Path {
			return report.Issues[i].Path < report.Issues[j].Path
		}
		return report.Issues[i].Kind < report.Issues[j].Kind
	})
	return report, nil
}

// VerifyCluster verifies every member of cb.
func (v *Verifier) VerifyCluster(ctx context.Context, cb *clusterbackup.ClusterBackup) (ClusterReport, error) {
	report := ClusterReport{Name: cb.Name, Nodes: make(map[string]NodeReport, len(cb.Members))}
	for fqdn, nb := range cb.Members {
		nr, err := v.VerifyNode(ctx, nb)
		if err != nil {
			return report, fmt.Errorf("verify %s: %w", fqdn, err)
		}
		report.Nodes[fqdn] = nr
	}
	return report, nil
}
