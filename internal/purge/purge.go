// Package purge retires old node backups: by age or by count per fqdn,
// deleting a full backup's self-contained data outright but only the
// shared-pool objects an incremental backup no longer has any surviving
// reference to, plus the index entries for everything it removes.
package purge

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/spotify/medusa-go/internal/index"
	"github.com/spotify/medusa-go/internal/nodebackup"
	"github.com/spotify/medusa-go/internal/storage"
	"github.com/spotify/medusa-go/internal/types"
)

// BackupRef is one candidate backup considered for purge.
type BackupRef struct {
	Name     string
	Mode     types.BackupMode
	Started  time.Time
	Finished time.Time
	Manifest types.Manifest
}

// Plan is a dry-run purge decision: which backups of FQDN would be kept and
// which would be deleted, with nothing yet touched in storage.
type Plan struct {
	FQDN   string
	Keep   []BackupRef
	Delete []BackupRef
}

// Summary renders a one-line-per-backup description of the plan.
func (p Plan) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: keep %d, delete %d\n", p.FQDN, len(p.Keep), len(p.Delete))
	for _, r := range p.Delete {
		fmt.Fprintf(&b, "  delete %s (%s, finished %s)\n", r.Name, r.Mode, r.Finished.Format(time.RFC3339))
	}
	return b.String()
}

// Result reports what Execute actually removed.
type Result struct {
	BackupsDeleted []string
	ObjectsDeleted int
}

// Planner discovers purge candidates from the index.
type Planner struct {
	Driver storage.Driver
}

// inferMode infers a backup's mode from whether its manifest stores objects
// under the node-wide shared data pool (fqdn/data/...), since the mode
// itself is not recorded in the manifest. Mirrors the same inference the
// backup engine uses to find a previous backup's mode.
func inferMode(fqdn string, manifest types.Manifest) types.BackupMode {
	prefix := fqdn + "/data/"
	for _, section := range manifest {
		for _, obj := range section.Objects {
			if strings.HasPrefix(obj.Path, prefix) {
				return types.ModeIncremental
			}
		}
	}
	return types.ModeFull
}

// candidates returns every finished backup of fqdn, newest first.
func (p *Planner) candidates(ctx context.Context, fqdn string) ([]BackupRef, error) {
	names, err := index.ListNames(ctx, p.Driver)
	if err != nil {
		return nil, fmt.Errorf("list backup names: %w", err)
	}

	var refs []BackupRef
	for _, name := range names {
		entries, err := index.ListEntries(ctx, p.Driver, name)
		if err != nil {
			return nil, fmt.Errorf("list entries for %s: %w", name, err)
		}
		for _, e := range entries {
			if e.FQDN != fqdn || e.Finished == nil {
				continue
			}
			nb := nodebackup.New(p.Driver, fqdn, name, types.ModeFull)
			manifest, err := nb.Manifest(ctx)
			if err != nil {
				return nil, fmt.Errorf("load manifest for %s/%s: %w", fqdn, name, err)
			}
			var started time.Time
			if e.Started != nil {
				started = *e.Started
			}
			refs = append(refs, BackupRef{
				Name:     name,
				Mode:     inferMode(fqdn, manifest),
				Started:  started,
				Finished: *e.Finished,
				Manifest: manifest,
			})
		}
	}

	sort.Slice(refs, func(i, j int) bool { return refs[i].Finished.After(refs[j].Finished) })
	return refs, nil
}

// PlanByAge marks every finished backup older than maxAge (relative to now)
// for deletion.
func (p *Planner) PlanByAge(ctx context.Context, fqdn string, maxAge time.Duration, now time.Time) (Plan, error) {
	refs, err := p.candidates(ctx, fqdn)
	if err != nil {
		return Plan{}, err
	}
	cutoff := now.Add(-maxAge)

	plan := Plan{FQDN: fqdn}
	for _, r := range refs {
		if r.Finished.Before(cutoff) {
			plan.Delete = append(plan.Delete, r)
		} else {
			plan.Keep = append(plan.Keep, r)
		}
	}
	return plan, nil
}

// PlanByCount keeps the keepCount newest finished backups of fqdn and marks
// the rest for deletion.
func (p *Planner) PlanByCount(ctx context.Context, fqdn string, keepCount int) (Plan, error) {
	refs, err := p.candidates(ctx, fqdn)
	if err != nil {
		return Plan{}, err
	}

	plan := Plan{FQDN: fqdn}
	for i, r := range refs {
		if i < keepCount {
			plan.Keep = append(plan.Keep, r)
		} else {
			plan.Delete = append(plan.Delete, r)
		}
	}
	return plan, nil
}

// Purger executes purge plans.
type Purger struct {
	Driver storage.Driver
}

// Execute deletes every backup in plan.Delete: a full backup's entire
// <fqdn>/<name>/ subtree unconditionally, or for an incremental backup only
// the shared-pool objects no surviving incremental backup in plan.Keep
// still references, plus that backup's own meta files and index entries in
// both cases.
func (p *Purger) Execute(ctx context.Context, plan Plan) (Result, error) {
	survivors := make(map[string]bool)
	for _, r := range plan.Keep {
		if r.Mode != types.ModeIncremental {
			continue
		}
		for _, section := range r.Manifest {
			for _, obj := range section.Objects {
				survivors[obj.Path] = true
			}
		}
	}

	var result Result
	for _, r := range plan.Delete {
		switch r.Mode {
		case types.ModeFull:
			n, err := deletePrefix(ctx, p.Driver, path.Join(plan.FQDN, r.Name)+"/")
			if err != nil {
				return result, fmt.Errorf("delete %s/%s: %w", plan.FQDN, r.Name, err)
			}
			result.ObjectsDeleted += n
		case types.ModeIncremental:
			for _, section := range r.Manifest {
				for _, obj := range section.Objects {
					if survivors[obj.Path] {
						continue
					}
					if err := p.Driver.Delete(ctx, obj.Path); err != nil {
						return result, fmt.Errorf("delete %s: %w", obj.Path, err)
					}
					result.ObjectsDeleted++
				}
			}
			n, err := deletePrefix(ctx, p.Driver, path.Join(plan.FQDN, r.Name, "meta")+"/")
			if err != nil {
				return result, fmt.Errorf("delete meta for %s/%s: %w", plan.FQDN, r.Name, err)
			}
			result.ObjectsDeleted += n
		}

		if err := index.Delete(ctx, p.Driver, r.Name, plan.FQDN, []time.Time{r.Started}, []time.Time{r.Finished}); err != nil {
			return result, fmt.Errorf("delete index entries for %s/%s: %w", plan.FQDN, r.Name, err)
		}
		result.BackupsDeleted = append(result.BackupsDeleted, r.Name)
	}
	return result, nil
}

func deletePrefix(ctx context.Context, driver storage.Driver, prefix string) (int, error) {
	objects, err := driver.List(ctx, prefix)
	if err != nil {
		return 0, err
	}
	for _, o := range objects {
		if err := driver.Delete(ctx, o.Name); err != nil {
			return 0, err
		}
	}
	return len(objects), nil
}
