// Package backupengine implements the per-node backup pipeline: staggering,
// scoped snapshot acquisition, schema/tokenmap/data/manifest upload in
// order, and index bookkeeping.
package backupengine

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/spotify/medusa-go/internal/cache"
	"github.com/spotify/medusa-go/internal/cassandra"
	"github.com/spotify/medusa-go/internal/index"
	"github.com/spotify/medusa-go/internal/merrors"
	"github.com/spotify/medusa-go/internal/mlog"
	"github.com/spotify/medusa-go/internal/nodebackup"
	"github.com/spotify/medusa-go/internal/storage"
	"github.com/spotify/medusa-go/internal/types"
)

// DefaultBackupName generates a backup name from the current time when the
// caller does not supply one explicitly (CLI's --backup-name), matching the
// original implementation's timestamp-derived default.
func DefaultBackupName(now time.Time) string {
	return fmt.Sprintf("%d", now.Unix())
}

// State is a stage in the per-node backup state machine.
type State string

const (
	StateIdle        State = "idle"
	StateStaggering  State = "staggering"
	StateSnapshoting State = "snapshotting"
	StateUploading   State = "uploading"
	StateIndexing    State = "indexing"
	StateDone        State = "done"
	StateFailed      State = "failed"
)

// Engine runs per-node backups against one Cassandra data directory.
type Engine struct {
	Driver      storage.Driver
	Snapshotter cassandra.Snapshotter
	Sessions    cassandra.SessionProvider
	DataRoot    string // the Cassandra data root containing <keyspace>/<table-dir>/

	StaggerPollInterval time.Duration
	OnStateChange       func(state State)

	now     func() time.Time
	tagFunc func() string
}

func (e *Engine) snapshotTag() string {
	if e.tagFunc != nil {
		return e.tagFunc()
	}
	return "medusa-" + uuid.NewString()
}

func (e *Engine) clock() time.Time {
	if e.now != nil {
		return e.now()
	}
	return time.Now()
}

func (e *Engine) setState(s State) {
	if e.OnStateChange != nil {
		e.OnStateChange(s)
	}
}

// Run executes one backup of fqdn under the given name and mode. If
// stagger > 0, it first blocks until the staggering predicate is satisfied
// or the budget is exhausted.
func (e *Engine) Run(ctx context.Context, fqdn, name string, stagger time.Duration, mode types.BackupMode) error {
	log := mlog.WithComponent("backupengine").With().Str("fqdn", fqdn).Str("backup_name", string(name)).Logger()
	e.setState(StateIdle)

	nb := nodebackup.New(e.Driver, fqdn, name, mode)
	exists, err := nb.Exists(ctx)
	if err != nil {
		e.setState(StateFailed)
		return fmt.Errorf("check existing backup: %w", err)
	}
	if exists {
		e.setState(StateFailed)
		return merrors.New("backupengine.Run", merrors.AlreadyExists,
			fmt.Errorf("backup %s already exists for %s", name, fqdn))
	}

	session, err := e.Sessions.Open(ctx)
	if err != nil {
		e.setState(StateFailed)
		return fmt.Errorf("open session: %w", err)
	}
	defer session.Close()

	if stagger > 0 {
		e.setState(StateStaggering)
		tm, err := session.TokenMap(ctx)
		if err != nil {
			e.setState(StateFailed)
			return fmt.Errorf("load tokenmap for stagger check: %w", err)
		}
		if err := waitForStagger(ctx, e.Driver, tm, fqdn, stagger, e.StaggerPollInterval); err != nil {
			e.setState(StateFailed)
			return err
		}
	}

	tag := e.snapshotTag()
	e.setState(StateSnapshoting)
	if err := e.Snapshotter.TakeSnapshot(ctx, tag); err != nil {
		e.setState(StateFailed)
		return merrors.New("backupengine.Run", merrors.RemoteExecFailure, fmt.Errorf("take snapshot: %w", err))
	}
	defer func() {
		if err := e.Snapshotter.ClearSnapshot(context.WithoutCancel(ctx), tag); err != nil {
			log.Warn().Err(err).Str("tag", tag).Msg("failed to clear snapshot")
		}
	}()

	schema, err := session.Schema(ctx)
	if err != nil {
		e.setState(StateFailed)
		return fmt.Errorf("load schema: %w", err)
	}
	tm, err := session.TokenMap(ctx)
	if err != nil {
		e.setState(StateFailed)
		return fmt.Errorf("load tokenmap: %w", err)
	}

	if err := nb.WriteSchema(ctx, schema); err != nil {
		e.setState(StateFailed)
		return err
	}
	if err := nb.WriteTokenMap(ctx, tm); err != nil {
		e.setState(StateFailed)
		return err
	}

	started := e.clock()
	tmJSON, _ := json.Marshal(tm)
	if err := index.RecordStart(ctx, e.Driver, name, fqdn, string(tmJSON), schema, started); err != nil {
		e.setState(StateFailed)
		return fmt.Errorf("record index start: %w", err)
	}

	e.setState(StateUploading)
	manifest, err := e.uploadSnapshot(ctx, nb, mode, tag)
	if err != nil {
		e.setState(StateFailed)
		return err
	}

	if err := nb.WriteManifest(ctx, manifest); err != nil {
		e.setState(StateFailed)
		return err
	}

	e.setState(StateIndexing)
	finished := e.clock()
	manifestJSON, _ := json.Marshal(manifest)
	if err := index.RecordFinish(ctx, e.Driver, name, fqdn, string(manifestJSON), string(tmJSON), finished); err != nil {
		e.setState(StateFailed)
		return fmt.Errorf("record index finish: %w", err)
	}

	e.setState(StateDone)
	log.Info().Int("sections", len(manifest)).Msg("backup complete")
	return nil
}

// snapshotTable groups one keyspace/table's snapshot files.
type snapshotTable struct {
	keyspace string
	table    string
	files    []string
}

var cfUUIDSuffix = regexp.MustCompile(`^(.+)-[0-9a-f]{32}$`)

func columnFamilyName(tableDir string) string {
	if m := cfUUIDSuffix.FindStringSubmatch(tableDir); m != nil {
		return m[1]
	}
	return tableDir
}

// discoverSnapshotTables walks dataRoot for `*/<table-dir>/snapshots/<tag>/`
// directories, excluding reserved keyspaces.
func discoverSnapshotTables(dataRoot, tag string) ([]snapshotTable, error) {
	keyspaceDirs, err := os.ReadDir(dataRoot)
	if err != nil {
		return nil, fmt.Errorf("read data root: %w", err)
	}

	var tables []snapshotTable
	for _, ks := range keyspaceDirs {
		if !ks.IsDir() || types.ReservedKeyspaces[ks.Name()] {
			continue
		}
		keyspacePath := filepath.Join(dataRoot, ks.Name())
		tableDirs, err := os.ReadDir(keyspacePath)
		if err != nil {
			return nil, fmt.Errorf("read keyspace dir %s: %w", ks.Name(), err)
		}
		for _, td := range tableDirs {
			if !td.IsDir() {
				continue
			}
			snapDir := filepath.Join(keyspacePath, td.Name(), "snapshots", tag)
			info, err := os.Stat(snapDir)
			if err != nil || !info.IsDir() {
				continue
			}
			var files []string
			err = filepath.Walk(snapDir, func(p string, fi os.FileInfo, err error) error {
				if err != nil {
					return err
				}
				if !fi.IsDir() {
					files = append(files, p)
				}
				return nil
			})
			if err != nil {
				return nil, fmt.Errorf("walk snapshot dir %s: %w", snapDir, err)
			}
			if len(files) == 0 {
				continue
			}
			sort.Strings(files)
			tables = append(tables, snapshotTable{
				keyspace: ks.Name(),
				table:    columnFamilyName(td.Name()),
				files:    files,
			})
		}
	}
	return tables, nil
}

// uploadSnapshot uploads every retained file of every snapshotted table,
// deduplicating against the previous node backup via NodeBackupCache, and
// returns the new manifest.
func (e *Engine) uploadSnapshot(ctx context.Context, nb *nodebackup.NodeBackup, mode types.BackupMode, tag string) (types.Manifest, error) {
	tables, err := discoverSnapshotTables(e.DataRoot, tag)
	if err != nil {
		return nil, err
	}

	previousManifest, previousMode, err := e.previousManifest(ctx, nb.FQDN)
	if err != nil {
		return nil, fmt.Errorf("load previous manifest: %w", err)
	}

	skipMD5 := e.Driver.PathPrefix("") != ""
	nbc := cache.New(previousManifest, mode, previousMode, skipMD5, localMD5Of)

	manifest := make(types.Manifest, 0, len(tables))
	for _, t := range tables {
		section, err := e.uploadTable(ctx, nb, nbc, t)
		if err != nil {
			return nil, fmt.Errorf("upload %s.%s: %w", t.keyspace, t.table, err)
		}
		manifest = append(manifest, section)
	}
	return manifest, nil
}

func (e *Engine) uploadTable(ctx context.Context, nb *nodebackup.NodeBackup, nbc *cache.NodeBackupCache, t snapshotTable) (types.KeyspaceTableSection, error) {
	srcs := make([]cache.SourceFile, 0, len(t.files))
	for _, f := range t.files {
		info, err := os.Stat(f)
		if err != nil {
			return types.KeyspaceTableSection{}, err
		}
		srcs = append(srcs, cache.SourceFile{Path: f, Size: info.Size()})
	}

	retained, alreadyInManifest, err := nbc.ReplaceOrRemove(t.keyspace, t.table, srcs)
	if err != nil {
		return types.KeyspaceTableSection{}, err
	}

	var toUpload []string
	var referenced []types.ManifestObject
	for _, r := range retained {
		if r.IsUpload() {
			toUpload = append(toUpload, r.Src.Path)
		} else {
			referenced = append(referenced, *r.Reference)
		}
	}

	destPrefix := nb.TableDataPrefix(t.keyspace, t.table)
	var uploaded []storage.Object
	if len(toUpload) > 0 {
		uploaded, err = e.Driver.UploadMany(ctx, toUpload, destPrefix)
		if err != nil {
			return types.KeyspaceTableSection{}, err
		}
	}

	objects := make([]types.ManifestObject, 0, len(uploaded)+len(referenced)+len(alreadyInManifest))
	for _, o := range uploaded {
		objects = append(objects, nodebackup.ToManifestObject(o))
	}
	objects = append(objects, referenced...)
	objects = append(objects, alreadyInManifest...)

	return types.KeyspaceTableSection{Keyspace: t.keyspace, ColumnFamily: t.table, Objects: objects}, nil
}

// previousManifest loads the manifest from fqdn's latest finished backup,
// if any, along with the mode it implies. It cannot know the previous
// backup's declared mode directly (the manifest does not record it), so it
// infers full-vs-incremental from whether objects are stored under the
// backup's own name prefix or the node-wide shared prefix.
func (e *Engine) previousManifest(ctx context.Context, fqdn string) (types.Manifest, types.BackupMode, error) {
	name, ok, err := index.LatestBackupName(ctx, e.Driver, fqdn)
	if err != nil {
		return nil, types.ModeFull, err
	}
	if !ok {
		return nil, types.ModeFull, nil
	}

	// Any mode value works to construct the path accessors we use here;
	// the manifest's own path prefixes are what actually distinguish modes.
	prev := nodebackup.New(e.Driver, fqdn, name, types.ModeFull)
	manifest, err := prev.Manifest(ctx)
	if merrors.Is(err, merrors.NotFound) {
		return nil, types.ModeFull, nil
	}
	if err != nil {
		return nil, types.ModeFull, err
	}

	mode := types.ModeFull
	incrementalPrefix := fqdn + "/data/"
	for _, section := range manifest {
		for _, obj := range section.Objects {
			if strings.HasPrefix(obj.Path, incrementalPrefix) {
				mode = types.ModeIncremental
			}
		}
	}
	return manifest, mode, nil
}

func localMD5Of(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return storage.MD5Base64(f)
}
