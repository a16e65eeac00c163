// Package index maintains the derived backup catalog under the "index/"
// prefix of a cluster's storage: per-name per-fqdn start/finish markers and
// a last-writer-wins "latest backup" pointer per fqdn. The index exists
// purely to answer catalog queries in roughly O(1) instead of re-listing
// every node's full data prefix; Rebuild regenerates it from the
// authoritative meta/* objects, and must produce an equivalent index.
package index

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/spotify/medusa-go/internal/merrors"
	"github.com/spotify/medusa-go/internal/storage"
)

const (
	backupIndexPrefix  = "index/backup_index"
	latestBackupPrefix = "index/latest_backup"
)

func nameDir(name string) string { return path.Join(backupIndexPrefix, name) }

func tokenMapEntryPath(name, fqdn string) string {
	return path.Join(nameDir(name), fmt.Sprintf("tokenmap_%s.json", fqdn))
}

func schemaEntryPath(name, fqdn string) string {
	return path.Join(nameDir(name), fmt.Sprintf("schema_%s.cql", fqdn))
}

func manifestEntryPath(name, fqdn string) string {
	return path.Join(nameDir(name), fmt.Sprintf("manifest_%s.json", fqdn))
}

func startedEntryPath(name, fqdn string, unixSeconds int64) string {
	return path.Join(nameDir(name), fmt.Sprintf("started_%s_%d.timestamp", fqdn, unixSeconds))
}

func finishedEntryPath(name, fqdn string, unixSeconds int64) string {
	return path.Join(nameDir(name), fmt.Sprintf("finished_%s_%d.timestamp", fqdn, unixSeconds))
}

func latestTokenMapPath(fqdn string) string {
	return path.Join(latestBackupPrefix, fqdn, "tokenmap.json")
}

func latestBackupNamePath(fqdn string) string {
	return path.Join(latestBackupPrefix, fqdn, "backup_name.txt")
}

// timestampPattern matches "<event>_<fqdn>_<unix_seconds>.timestamp". The
// original implementation sometimes encoded milliseconds and divided by
// 1000 at read time; this port never guesses the unit (design notes §9c)
// and rejects anything that doesn't parse as plain seconds-since-epoch.
var timestampPattern = regexp.MustCompile(`^(started|finished)_(.+)_(\d+)\.timestamp$`)

// RecordStart writes the index entries for a NodeBackup's start: a copy of
// its tokenmap and schema under backup_index/<name>/, and a zero-byte
// started timestamp marker. Mirrors the storage layout and ordering in
// the package doc above.
func RecordStart(ctx context.Context, driver storage.Driver, name, fqdn, tokenMapJSON, schemaCQL string, at time.Time) error {
	if _, err := driver.UploadFromString(ctx, tokenMapEntryPath(name, fqdn), tokenMapJSON); err != nil {
		return fmt.Errorf("index: write tokenmap entry: %w", err)
	}
	if _, err := driver.UploadFromString(ctx, schemaEntryPath(name, fqdn), schemaCQL); err != nil {
		return fmt.Errorf("index: write schema entry: %w", err)
	}
	if _, err := driver.UploadFromString(ctx, startedEntryPath(name, fqdn, at.Unix()), ""); err != nil {
		return fmt.Errorf("index: write started marker: %w", err)
	}
	return nil
}

// RecordFinish writes the index entries for a NodeBackup's completion: a
// copy of its manifest, a zero-byte finished timestamp marker, and an
// atomic overwrite of the per-fqdn "latest backup" pointer.
func RecordFinish(ctx context.Context, driver storage.Driver, name, fqdn, manifestJSON, tokenMapJSON string, at time.Time) error {
	if _, err := driver.UploadFromString(ctx, manifestEntryPath(name, fqdn), manifestJSON); err != nil {
		return fmt.Errorf("index: write manifest entry: %w", err)
	}
	if _, err := driver.UploadFromString(ctx, finishedEntryPath(name, fqdn, at.Unix()), ""); err != nil {
		return fmt.Errorf("index: write finished marker: %w", err)
	}
	if _, err := driver.UploadFromString(ctx, latestTokenMapPath(fqdn), tokenMapJSON); err != nil {
		return fmt.Errorf("index: write latest tokenmap: %w", err)
	}
	if _, err := driver.UploadFromString(ctx, latestBackupNamePath(fqdn), name); err != nil {
		return fmt.Errorf("index: write latest backup name: %w", err)
	}
	return nil
}

// Entry summarizes one (name, fqdn) pair as recorded in the index.
type Entry struct {
	Name     string
	FQDN     string
	Started  *time.Time
	Finished *time.Time
}

// ListNames returns every distinct backup name present in the index,
// derived from the "<name>/" path segment under backup_index/.
func ListNames(ctx context.Context, driver storage.Driver) ([]string, error) {
	objects, err := driver.List(ctx, backupIndexPrefix+"/")
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var names []string
	for _, o := range objects {
		rel := strings.TrimPrefix(o.Name, backupIndexPrefix+"/")
		parts := strings.SplitN(rel, "/", 2)
		if len(parts) != 2 || parts[0] == "" {
			continue
		}
		if !seen[parts[0]] {
			seen[parts[0]] = true
			names = append(names, parts[0])
		}
	}
	return names, nil
}

// ListEntries returns every fqdn's Entry recorded for the given backup name.
func ListEntries(ctx context.Context, driver storage.Driver, name string) ([]Entry, error) {
	objects, err := driver.List(ctx, nameDir(name)+"/")
	if err != nil {
		return nil, err
	}

	byFQDN := map[string]*Entry{}
	get := func(fqdn string) *Entry {
		e, ok := byFQDN[fqdn]
		if !ok {
			e = &Entry{Name: name, FQDN: fqdn}
			byFQDN[fqdn] = e
		}
		return e
	}

	for _, o := range objects {
		base := path.Base(o.Name)
		if m := timestampPattern.FindStringSubmatch(base); m != nil {
			event, fqdn, secStr := m[1], m[2], m[3]
			sec, err := strconv.ParseInt(secStr, 10, 64)
			if err != nil {
				return nil, merrors.New("index.ListEntries", merrors.ConfigError,
					fmt.Errorf("timestamp filename %q does not encode seconds: %w", base, err))
			}
			t := time.Unix(sec, 0).UTC()
			e := get(fqdn)
			switch event {
			case "started":
				e.Started = &t
			case "finished":
				e.Finished = &t
			}
			continue
		}
		switch {
		case strings.HasPrefix(base, "schema_"):
			get(strings.TrimSuffix(strings.TrimPrefix(base, "schema_"), ".cql"))
		case strings.HasPrefix(base, "tokenmap_"):
			get(strings.TrimSuffix(strings.TrimPrefix(base, "tokenmap_"), ".json"))
		case strings.HasPrefix(base, "manifest_"):
			get(strings.TrimSuffix(strings.TrimPrefix(base, "manifest_"), ".json"))
		}
	}

	entries := make([]Entry, 0, len(byFQDN))
	for _, e := range byFQDN {
		entries = append(entries, *e)
	}
	return entries, nil
}

// LatestBackupName returns the name written to
// index/latest_backup/<fqdn>/backup_name.txt, and false if none exists yet.
func LatestBackupName(ctx context.Context, driver storage.Driver, fqdn string) (string, bool, error) {
	name, err := driver.GetAsString(ctx, latestBackupNamePath(fqdn))
	if merrors.Is(err, merrors.NotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return name, true, nil
}

// Delete removes every index entry referencing (name, fqdn). Used by purge.
func Delete(ctx context.Context, driver storage.Driver, name, fqdn string, started, finished []time.Time) error {
	paths := []string{
		tokenMapEntryPath(name, fqdn),
		schemaEntryPath(name, fqdn),
		manifestEntryPath(name, fqdn),
	}
	for _, t := range started {
		paths = append(paths, startedEntryPath(name, fqdn, t.Unix()))
	}
	for _, t := range finished {
		paths = append(paths, finishedEntryPath(name, fqdn, t.Unix()))
	}
	for _, p := range paths {
		if err := driver.Delete(ctx, p); err != nil {
			return fmt.Errorf("index: delete %s: %w", p, err)
		}
	}
	return nil
}
