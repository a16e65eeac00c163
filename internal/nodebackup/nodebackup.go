// Package nodebackup models a single node's backup: the storage paths
// under its (fqdn, name) prefix, and typed, load-on-demand accessors for
// its schema, token map and manifest. Per the design notes, constructing a
// NodeBackup is cheap (paths only); every network read happens through an
// explicit Load/accessor call, never as a side effect of reading a field.
package nodebackup

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/spotify/medusa-go/internal/merrors"
	"github.com/spotify/medusa-go/internal/storage"
	"github.com/spotify/medusa-go/internal/types"
)

// NodeBackup identifies a backup by (FQDN, Name) and loads its metadata
// on demand through the given Driver. NodeBackup does not own the driver;
// it only borrows it for the duration of each call (design notes §9).
type NodeBackup struct {
	driver storage.Driver
	FQDN   string
	Name   string
	Mode   types.BackupMode

	schema   *string
	tokenMap *types.TokenMap
	manifest *types.Manifest
	started  *time.Time
	finished *time.Time
}

// New constructs a NodeBackup reference. It performs no I/O.
func New(driver storage.Driver, fqdn, name string, mode types.BackupMode) *NodeBackup {
	return &NodeBackup{driver: driver, FQDN: fqdn, Name: name, Mode: mode}
}

func (n *NodeBackup) root() string { return path.Join(n.FQDN, n.Name) }

// SchemaPath is the storage path of this backup's schema.cql.
func (n *NodeBackup) SchemaPath() string { return path.Join(n.root(), "meta", "schema.cql") }

// TokenMapPath is the storage path of this backup's tokenmap.json.
func (n *NodeBackup) TokenMapPath() string { return path.Join(n.root(), "meta", "tokenmap.json") }

// ManifestPath is the storage path of this backup's manifest.json. Its
// presence is the sole "complete" signal for this NodeBackup.
func (n *NodeBackup) ManifestPath() string { return path.Join(n.root(), "meta", "manifest.json") }

// DataPrefix is where this backup's SSTables live: a self-contained
// subtree for full backups, or the node-wide shared pool for incremental
// backups.
func (n *NodeBackup) DataPrefix() string {
	if n.Mode == types.ModeIncremental {
		return path.Join(n.FQDN, "data")
	}
	return path.Join(n.root(), "data")
}

// TableDataPrefix is the destination prefix for one keyspace.table's objects.
func (n *NodeBackup) TableDataPrefix(keyspace, table string) string {
	return path.Join(n.DataPrefix(), keyspace, table)
}

// Exists reports whether a schema object has already been written for this
// (fqdn, name) pair — the fatal-conflict check the backup engine runs
// before taking a snapshot.
func (n *NodeBackup) Exists(ctx context.Context) (bool, error) {
	_, err := n.driver.ObjectTime(ctx, n.SchemaPath())
	if err == nil {
		return true, nil
	}
	if merrors.Is(err, merrors.NotFound) {
		return false, nil
	}
	return false, err
}

// WriteSchema uploads schema.cql and anchors Started to the object's
// creation time, the first step of the schema -> tokenmap -> data -> manifest ordering.
func (n *NodeBackup) WriteSchema(ctx context.Context, schema string) error {
	obj, err := n.driver.UploadFromString(ctx, n.SchemaPath(), schema)
	if err != nil {
		return fmt.Errorf("write schema: %w", err)
	}
	n.schema = &schema
	started := obj.Extra.Created
	n.started = &started
	return nil
}

// WriteTokenMap uploads tokenmap.json.
func (n *NodeBackup) WriteTokenMap(ctx context.Context, tm types.TokenMap) error {
	data, err := json.Marshal(tm)
	if err != nil {
		return err
	}
	if _, err := n.driver.UploadFromString(ctx, n.TokenMapPath(), string(data)); err != nil {
		return fmt.Errorf("write tokenmap: %w", err)
	}
	n.tokenMap = &tm
	return nil
}

// WriteManifest uploads manifest.json and anchors Finished to the object's
// creation time — the sole signal that this NodeBackup is complete.
func (n *NodeBackup) WriteManifest(ctx context.Context, m types.Manifest) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	obj, err := n.driver.UploadFromString(ctx, n.ManifestPath(), string(data))
	if err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	n.manifest = &m
	finished := obj.Extra.Created
	n.finished = &finished
	return nil
}

// Schema returns the backup's schema, loading it on first access.
func (n *NodeBackup) Schema(ctx context.Context) (string, error) {
	if n.schema != nil {
		return *n.schema, nil
	}
	s, err := n.driver.GetAsString(ctx, n.SchemaPath())
	if err != nil {
		return "", fmt.Errorf("load schema: %w", err)
	}
	n.schema = &s
	return s, nil
}

// TokenMap returns the backup's token map, loading it on first access.
func (n *NodeBackup) TokenMap(ctx context.Context) (types.TokenMap, error) {
	if n.tokenMap != nil {
		return *n.tokenMap, nil
	}
	raw, err := n.driver.GetAsBytes(ctx, n.TokenMapPath())
	if err != nil {
		return nil, fmt.Errorf("load tokenmap: %w", err)
	}
	var tm types.TokenMap
	if err := json.Unmarshal(raw, &tm); err != nil {
		return nil, fmt.Errorf("decode tokenmap: %w", err)
	}
	n.tokenMap = &tm
	return tm, nil
}

// Manifest returns the backup's manifest, loading it on first access.
func (n *NodeBackup) Manifest(ctx context.Context) (types.Manifest, error) {
	if n.manifest != nil {
		return *n.manifest, nil
	}
	raw, err := n.driver.GetAsBytes(ctx, n.ManifestPath())
	if err != nil {
		return nil, fmt.Errorf("load manifest: %w", err)
	}
	var m types.Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	n.manifest = &m
	return m, nil
}

// Started returns the backup's start timestamp, loading it from the
// schema object's creation time if not already known. Returns the zero
// time and false if the schema object does not exist yet.
func (n *NodeBackup) Started(ctx context.Context) (time.Time, bool, error) {
	if n.started != nil {
		return *n.started, true, nil
	}
	t, err := n.driver.ObjectTime(ctx, n.SchemaPath())
	if merrors.Is(err, merrors.NotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	n.started = &t
	return t, true, nil
}

// Finished returns the backup's finish timestamp, loading it from the
// manifest object's creation time if not already known. Returns the zero
// time and false if the manifest object does not exist yet, the signal a
// backup is still incomplete.
func (n *NodeBackup) Finished(ctx context.Context) (time.Time, bool, error) {
	if n.finished != nil {
		return *n.finished, true, nil
	}
	t, err := n.driver.ObjectTime(ctx, n.ManifestPath())
	if merrors.Is(err, merrors.NotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	n.finished = &t
	return t, true, nil
}

// IsComplete reports whether this NodeBackup has a manifest object.
func (n *NodeBackup) IsComplete(ctx context.Context) (bool, error) {
	_, ok, err := n.Finished(ctx)
	return ok, err
}

// ObjectPath converts a manifest-relative path into a path resolvable
// through the Driver: paths recorded in a manifest already start at the
// node's fqdn, so this is currently an identity conversion kept as a named
// boundary in case a future backend needs bucket-relative rewriting.
func (n *NodeBackup) ObjectPath(manifestPath string) string { return manifestPath }

// ToManifestObject converts a storage.Object into the types.ManifestObject
// persisted in manifest.json. A hex MD5 digest (as GCS reports it) is
// re-encoded as base64, the manifest convention; any other hash is copied
// unchanged.
func ToManifestObject(o storage.Object) types.ManifestObject {
	digest := o.Hash
	if raw, err := hex.DecodeString(o.Hash); err == nil && len(raw) == 16 {
		digest = base64.StdEncoding.EncodeToString(raw)
	}
	return types.ManifestObject{Path: o.Name, Size: o.Size, MD5: digest}
}
