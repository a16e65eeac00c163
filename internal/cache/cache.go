// Package cache implements NodeBackupCache: deduplication of upload
// candidates against the previous node backup's manifest, so unchanged
// SSTables are referenced rather than re-uploaded.
package cache

import (
	"fmt"
	"path"

	"github.com/spotify/medusa-go/internal/storage"
	"github.com/spotify/medusa-go/internal/types"
)

// SourceFile is a local file considered as an upload candidate.
type SourceFile struct {
	Path string
	Size int64
}

func (f SourceFile) basename() string { return path.Base(f.Path) }

// RetainedFile is something the backup engine must still place into the
// new backup: either a fresh upload read off local disk, or a reference to
// an object a previous backup already wrote to storage (no read, no upload).
type RetainedFile struct {
	Src       SourceFile
	Reference *types.ManifestObject
}

// IsUpload reports whether placing this entry requires uploading Src.
func (r RetainedFile) IsUpload() bool { return r.Reference == nil }

// MD5Func lazily computes a local file's content digest. Skipped entirely
// for backends that already report content-addressable hashes on put
// (spec §4.2's local-filesystem optimization).
type MD5Func func(localPath string) (string, error)

// NodeBackupCache answers, for each upload candidate of one node backup,
// whether an equivalent object already exists in the previous node backup.
type NodeBackupCache struct {
	previous      map[string]types.ManifestObject // key: keyspace/table/basename
	currentMode   types.BackupMode
	previousMode  types.BackupMode
	skipMD5Check  bool
	md5Of         MD5Func
	replacedCount int
}

func previousKey(keyspace, table, basename string) string {
	return keyspace + "/" + table + "/" + basename
}

// New seeds a cache from the previous node backup's manifest. Pass a nil
// or empty manifest (and any previousMode) when there is no previous
// backup; every candidate will then miss and be retained for upload.
func New(previous types.Manifest, currentMode, previousMode types.BackupMode, skipMD5Check bool, md5Of MD5Func) *NodeBackupCache {
	idx := make(map[string]types.ManifestObject)
	for _, section := range previous {
		for _, obj := range section.Objects {
			idx[previousKey(section.Keyspace, section.ColumnFamily, path.Base(obj.Path))] = obj
		}
	}
	return &NodeBackupCache{
		previous:     idx,
		currentMode:  currentMode,
		previousMode: previousMode,
		skipMD5Check: skipMD5Check,
		md5Of:        md5Of,
	}
}

// ReplacedCount is the number of candidates matched against a previous
// backup's object across every ReplaceOrRemove call so far. Reporting only.
func (c *NodeBackupCache) ReplacedCount() int { return c.replacedCount }

// ReplaceOrRemove classifies each candidate source file belonging to one
// (keyspace, table) pair against the previous backup's manifest, per the
// dedup algorithm below.
func (c *NodeBackupCache) ReplaceOrRemove(keyspace, table string, srcs []SourceFile) (retained []RetainedFile, alreadyInManifest []types.ManifestObject, err error) {
	for _, src := range srcs {
		base := src.basename()

		// NEVER_CACHED wins even over a same-name hit in the previous
		// manifest.
		if types.NeverCached[base] {
			retained = append(retained, RetainedFile{Src: src})
			continue
		}

		cached, ok := c.previous[previousKey(keyspace, table, base)]
		if !ok {
			retained = append(retained, RetainedFile{Src: src})
			continue
		}

		if src.Size != cached.Size {
			retained = append(retained, RetainedFile{Src: src})
			continue
		}

		if !c.skipMD5Check {
			localMD5, err := c.md5Of(src.Path)
			if err != nil {
				return nil, nil, fmt.Errorf("cache: hash %s: %w", src.Path, err)
			}
			if !storage.HashesMatch(localMD5, cached.MD5) {
				retained = append(retained, RetainedFile{Src: src})
				continue
			}
		}

		c.replacedCount++
		cachedCopy := cached
		if c.currentMode == types.ModeFull || c.previousMode == types.ModeFull {
			// A full backup is self-contained; the cache hit still needs
			// a manifest entry, supplied as a reference rather than a
			// fresh upload.
			retained = append(retained, RetainedFile{Reference: &cachedCopy})
		} else {
			// Both incremental: the object already lives in the shared
			// data pool and needs no new manifest path at all.
			alreadyInManifest = append(alreadyInManifest, cachedCopy)
		}
	}
	return retained, alreadyInManifest, nil
}
