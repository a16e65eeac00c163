// Package restorenode restores one NodeBackup onto the local Cassandra data
// directory: download every manifest object, stop Cassandra, apply the
// per-keyspace restore policy, and start Cassandra back up with or without
// explicit tokens.
package restorenode

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/spotify/medusa-go/internal/cassandra"
	"github.com/spotify/medusa-go/internal/merrors"
	"github.com/spotify/medusa-go/internal/mlog"
	"github.com/spotify/medusa-go/internal/nodebackup"
	"github.com/spotify/medusa-go/internal/storage"
	"github.com/spotify/medusa-go/internal/types"
)

// Request describes one node restore.
type Request struct {
	FQDN             string
	BackupName       string
	TempDir          string
	InPlace          bool
	KeepAuth         bool
	Seeds            []string
	UseSstableloader bool
}

// Verifier runs the post-restore check when Restore is called with verify set.
type Verifier interface {
	Verify(ctx context.Context, fqdn, name string) error
}

// Restorer restores node backups onto a local Cassandra data directory.
type Restorer struct {
	Driver        storage.Driver
	Controller    cassandra.Controller
	SSTableLoader cassandra.SSTableLoader // only consulted when Request.UseSstableloader is set
	SeedProbe     cassandra.SeedProbe
	Verifier      Verifier

	DataRoot       string // Cassandra data root containing <keyspace>/<table-dir>/
	CommitLogDir   string // purged before restore; empty disables the step
	SavedCachesDir string // purged before restore; empty disables the step

	SeedPollAttempts int           // defaults to 60
	SeedPollDelay    time.Duration // defaults to 60s

	// Sleep, if set, replaces the real delay between seed poll attempts in
	// tests. It must return promptly; context cancellation is still honored.
	Sleep func(time.Duration)
}

func (r *Restorer) seedPollAttempts() int {
	if r.SeedPollAttempts > 0 {
		return r.SeedPollAttempts
	}
	return 60
}

func (r *Restorer) seedPollDelay() time.Duration {
	if r.SeedPollDelay > 0 {
		return r.SeedPollDelay
	}
	return 60 * time.Second
}

// Restore executes the full node restore contract.
func (r *Restorer) Restore(ctx context.Context, req Request, verify bool) error {
	log := mlog.WithComponent("restorenode").With().Str("fqdn", req.FQDN).Str("backup_name", req.BackupName).Logger()

	if req.InPlace && req.KeepAuth {
		return merrors.New("restorenode.Restore", merrors.ConfigError,
			fmt.Errorf("inPlace and keepAuth are mutually exclusive"))
	}

	nb := nodebackup.New(r.Driver, req.FQDN, req.BackupName, types.ModeFull)
	exists, err := nb.Exists(ctx)
	if err != nil {
		return fmt.Errorf("check backup exists: %w", err)
	}
	if !exists {
		return merrors.New("restorenode.Restore", merrors.NotFound,
			fmt.Errorf("no backup named %s for %s", req.BackupName, req.FQDN))
	}

	manifest, err := nb.Manifest(ctx)
	if err != nil {
		return fmt.Errorf("load manifest: %w", err)
	}
	tokenMap, err := nb.TokenMap(ctx)
	if err != nil {
		return fmt.Errorf("load tokenmap: %w", err)
	}

	jobDir := filepath.Join(req.TempDir, "medusa-restore-"+uuid.NewString())
	if err := r.downloadMeta(ctx, nb, jobDir); err != nil {
		return fmt.Errorf("download meta: %w", err)
	}
	staged, err := r.downloadSections(ctx, manifest, jobDir)
	if err != nil {
		return fmt.Errorf("download sections: %w", err)
	}

	log.Info().Int("sections", len(manifest)).Str("job_dir", jobDir).Msg("download complete, stopping cassandra")
	if err := r.Controller.Stop(ctx); err != nil {
		return merrors.New("restorenode.Restore", merrors.RemoteExecFailure, fmt.Errorf("stop cassandra: %w", err))
	}

	if err := purgeDir(r.CommitLogDir); err != nil {
		return fmt.Errorf("purge commitlog: %w", err)
	}
	if err := purgeDir(r.SavedCachesDir); err != nil {
		return fmt.Errorf("purge saved caches: %w", err)
	}

	for _, section := range manifest {
		dir := staged[sectionKey(section.Keyspace, section.ColumnFamily)]
		switch restorePolicy(section.Keyspace, section.ColumnFamily, req.InPlace, req.KeepAuth) {
		case policySkipUntouched:
			continue
		case policySkipAndDelete:
			if err := deleteExistingTable(r.DataRoot, section.Keyspace, section.ColumnFamily); err != nil {
				return fmt.Errorf("delete existing %s.%s: %w", section.Keyspace, section.ColumnFamily, err)
			}
		case policyRestore:
			if err := r.restoreSection(ctx, req, section.Keyspace, section.ColumnFamily, dir); err != nil {
				return fmt.Errorf("restore %s.%s: %w", section.Keyspace, section.ColumnFamily, err)
			}
		}
	}

	if len(req.Seeds) > 0 {
		log.Info().Strs("seeds", req.Seeds).Msg("waiting for a seed to accept a session")
		if err := r.waitForSeed(ctx, req.Seeds); err != nil {
			return err
		}
	}

	if err := r.startCassandra(ctx, req, tokenMap); err != nil {
		return err
	}

	if verify && r.Verifier != nil {
		if err := r.Verifier.Verify(ctx, req.FQDN, req.BackupName); err != nil {
			return fmt.Errorf("post-restore verification: %w", err)
		}
	}

	log.Info().Msg("restore complete")
	return nil
}

func sectionKey(keyspace, table string) string { return keyspace + "/" + table }

// downloadMeta fetches the backup's three meta files into jobDir/meta/.
func (r *Restorer) downloadMeta(ctx context.Context, nb *nodebackup.NodeBackup, jobDir string) error {
	metaDir := filepath.Join(jobDir, "meta")
	if err := os.MkdirAll(metaDir, 0o755); err != nil {
		return err
	}
	files := []struct{ path, name string }{
		{nb.SchemaPath(), "schema.cql"},
		{nb.TokenMapPath(), "tokenmap.json"},
		{nb.ManifestPath(), "manifest.json"},
	}
	for _, f := range files {
		data, err := r.Driver.GetAsBytes(ctx, f.path)
		if err != nil {
			return fmt.Errorf("fetch %s: %w", f.name, err)
		}
		if err := os.WriteFile(filepath.Join(metaDir, f.name), data, 0o644); err != nil {
			return err
		}
	}
	return nil
}

// downloadSections downloads every object of every manifest section into
// jobDir/<keyspace>/<table>/ and returns the local directory per section.
func (r *Restorer) downloadSections(ctx context.Context, manifest types.Manifest, jobDir string) (map[string]string, error) {
	staged := make(map[string]string, len(manifest))
	for _, section := range manifest {
		dir := filepath.Join(jobDir, section.Keyspace, section.ColumnFamily)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
		paths := make([]string, 0, len(section.Objects))
		for _, obj := range section.Objects {
			paths = append(paths, obj.Path)
		}
		if len(paths) > 0 {
			if err := r.Driver.DownloadMany(ctx, paths, dir); err != nil {
				return nil, fmt.Errorf("download %s.%s: %w", section.Keyspace, section.ColumnFamily, err)
			}
		}
		staged[sectionKey(section.Keyspace, section.ColumnFamily)] = dir
	}
	return staged, nil
}

type policy int

const (
	policyRestore policy = iota
	policySkipAndDelete
	policySkipUntouched
)

// restorePolicy implements step 6 of the restore contract: keepAuth wins
// outright for system_auth; otherwise an out-of-place restore skips (but
// still clears) system.local and system.peers so the restored node picks up
// its own identity instead of the backed-up one.
func restorePolicy(keyspace, table string, inPlace, keepAuth bool) policy {
	if keepAuth && keyspace == "system_auth" {
		return policySkipUntouched
	}
	if !inPlace && keyspace == "system" && (table == "local" || table == "peers") {
		return policySkipAndDelete
	}
	return policyRestore
}

// findTableDir locates keyspace/table's existing on-disk directory, which
// Cassandra names <table>-<uuid32>. Returns ok=false if the keyspace or
// table directory does not exist yet.
func findTableDir(dataRoot, keyspace, table string) (name string, ok bool, err error) {
	entries, err := os.ReadDir(filepath.Join(dataRoot, keyspace))
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, err
	}
	pattern := regexp.MustCompile("^" + regexp.QuoteMeta(table) + "-[0-9a-f]{32}$")
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if e.Name() == table || pattern.MatchString(e.Name()) {
			return e.Name(), true, nil
		}
	}
	return "", false, nil
}

func deleteExistingTable(dataRoot, keyspace, table string) error {
	name, ok, err := findTableDir(dataRoot, keyspace, table)
	if err != nil || !ok {
		return err
	}
	return os.RemoveAll(filepath.Join(dataRoot, keyspace, name))
}

// newTableDirName generates a directory name in Cassandra's own
// <table>-<uuid32> convention, for a table with no existing directory.
func newTableDirName(table string) string {
	return table + "-" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// restoreSection moves stagedDir into place for keyspace.table, either by
// direct directory swap or, when req.UseSstableloader is set, by streaming
// it in through sstableloader and leaving the live data directory alone.
func (r *Restorer) restoreSection(ctx context.Context, req Request, keyspace, table, stagedDir string) error {
	if req.UseSstableloader {
		if r.SSTableLoader == nil {
			return merrors.New("restorenode.restoreSection", merrors.ConfigError,
				fmt.Errorf("useSstableloader requested but no SSTableLoader configured"))
		}
		return r.SSTableLoader.Load(ctx, keyspace, table, stagedDir)
	}

	existing, found, err := findTableDir(r.DataRoot, keyspace, table)
	if err != nil {
		return err
	}

	targetName := existing
	if !found {
		targetName = newTableDirName(table)
	}
	targetDir := filepath.Join(r.DataRoot, keyspace, targetName)

	if found {
		if err := os.RemoveAll(targetDir); err != nil {
			return err
		}
	} else if err := os.MkdirAll(filepath.Join(r.DataRoot, keyspace), 0o755); err != nil {
		return err
	}

	if err := os.Rename(stagedDir, targetDir); err != nil {
		return fmt.Errorf("move %s into place: %w", stagedDir, err)
	}
	return preserveOwnership(r.DataRoot, targetDir)
}

// purgeDir removes every entry under dir without removing dir itself. An
// empty dir disables the step entirely.
func purgeDir(dir string) error {
	if dir == "" {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

// waitForSeed polls every seed in turn until one accepts a session, capping
// at seedPollAttempts rounds with seedPollDelay between them.
func (r *Restorer) waitForSeed(ctx context.Context, seeds []string) error {
	if r.SeedProbe == nil {
		return merrors.New("restorenode.waitForSeed", merrors.ConfigError, fmt.Errorf("no SeedProbe configured"))
	}

	attempts := r.seedPollAttempts()
	for attempt := 1; attempt <= attempts; attempt++ {
		for _, seed := range seeds {
			if err := r.SeedProbe.Probe(ctx, seed); err == nil {
				return nil
			}
		}
		if attempt == attempts {
			break
		}
		if err := r.wait(ctx, r.seedPollDelay()); err != nil {
			return merrors.New("restorenode.waitForSeed", merrors.Cancelled, err)
		}
	}
	return merrors.New("restorenode.waitForSeed", merrors.TransientIO,
		fmt.Errorf("no seed of %v accepted a session after %d attempts", seeds, attempts))
}

func (r *Restorer) wait(ctx context.Context, d time.Duration) error {
	if r.Sleep != nil {
		r.Sleep(d)
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// startCassandra starts the node with implicit tokens for an in-place
// restore, or with an explicit initial_token list and auto_bootstrap
// disabled when restoring a backup onto a different host.
func (r *Restorer) startCassandra(ctx context.Context, req Request, tm types.TokenMap) error {
	if req.InPlace {
		if err := r.Controller.Start(ctx, cassandra.StartOptions{}); err != nil {
			return merrors.New("restorenode.startCassandra", merrors.RemoteExecFailure, err)
		}
		return nil
	}

	entry, ok := tm[req.FQDN]
	if !ok || len(entry.Tokens) == 0 {
		return merrors.New("restorenode.startCassandra", merrors.ConfigError,
			fmt.Errorf("no tokens recorded for %s in backed-up tokenmap", req.FQDN))
	}
	opts := cassandra.StartOptions{
		ExtraArgs: []string{
			"-Dcassandra.initial_token=" + strings.Join(entry.Tokens, ","),
			"-Dcassandra.auto_bootstrap=false",
		},
	}
	if err := r.Controller.Start(ctx, opts); err != nil {
		return merrors.New("restorenode.startCassandra", merrors.RemoteExecFailure, err)
	}
	return nil
}

// preserveOwnership chowns every file under target to match dataRoot's
// owner and group. Best-effort: platforms whose os.FileInfo does not expose
// a *syscall.Stat_t silently skip the step.
func preserveOwnership(dataRoot, target string) error {
	info, err := os.Stat(dataRoot)
	if err != nil {
		return err
	}
	uid, gid, ok := statOwnership(info)
	if !ok {
		return nil
	}
	return filepath.Walk(target, func(p string, _ os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		return os.Chown(p, uid, gid)
	})
}
