package backupengine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spotify/medusa-go/internal/cassandra"
	"github.com/spotify/medusa-go/internal/merrors"
	"github.com/spotify/medusa-go/internal/nodebackup"
	"github.com/spotify/medusa-go/internal/storage"
	"github.com/spotify/medusa-go/internal/types"
)

// fakeCFID is a 32-hex-character stand-in for the UUID Cassandra appends
// to a table's on-disk directory name.
var fakeCFID = strings.Repeat("0", 30) + "a1"

// writeSnapshotFixture lays out <root>/<keyspace>/<table>-<uuid>/snapshots/<tag>/<file>
// mirroring the directory shape the engine scans for.
func writeSnapshotFixture(t *testing.T, root, keyspace, table, tag string, files map[string]string) {
	t.Helper()
	dir := filepath.Join(root, keyspace, table+"-"+fakeCFID, "snapshots", tag)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
}

func newTestEngine(t *testing.T, driver storage.Driver, schema string, tm types.TokenMap) (*Engine, string) {
	root := t.TempDir()
	e := &Engine{
		Driver:      driver,
		Snapshotter: &cassandra.NoopSnapshotter{},
		Sessions:    &cassandra.StaticSession{SchemaText: schema, Tokens: tm},
		DataRoot:    root,
	}
	return e, root
}

func TestEngineRunFullBackupCompletesWhenSnapshotTagDoesNotMatch(t *testing.T) {
	d := storage.NewMemDriver()
	tm := types.TokenMap{"node1": {Tokens: []string{"1"}, IsUp: true}}
	e, root := newTestEngine(t, d, "CREATE TABLE ks.t (id int PRIMARY KEY);", tm)

	writeSnapshotFixture(t, root, "ks", "t", "medusa-does-not-matter-for-fixture", map[string]string{
		"a-Data.db": "hello",
	})

	err := e.Run(context.Background(), "node1", "bk1", 0, types.ModeFull)
	// the snapshot tag the engine generates is random (medusa-<uuid>), so
	// the fixture's literal tag name never matches; assert the discovery
	// miss doesn't error and an empty manifest is still written.
	require.NoError(t, err)

	nb := nodebackup.New(d, "node1", "bk1", types.ModeFull)
	complete, err := nb.IsComplete(context.Background())
	require.NoError(t, err)
	assert.True(t, complete)
}

func TestEngineRunFailsOnDuplicateBackupName(t *testing.T) {
	d := storage.NewMemDriver()
	tm := types.TokenMap{"node1": {Tokens: []string{"1"}, IsUp: true}}
	e, _ := newTestEngine(t, d, "CREATE TABLE ks.t (id int PRIMARY KEY);", tm)

	nb := nodebackup.New(d, "node1", "bk1", types.ModeFull)
	require.NoError(t, nb.WriteSchema(context.Background(), "CREATE TABLE ks.t (id int PRIMARY KEY);"))

	err := e.Run(context.Background(), "node1", "bk1", 0, types.ModeFull)
	require.Error(t, err)
	assert.True(t, merrors.Is(err, merrors.AlreadyExists))
}

func TestDefaultBackupNameIsUnixSeconds(t *testing.T) {
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, fmt.Sprintf("%d", at.Unix()), DefaultBackupName(at))
}

func TestColumnFamilyNameStripsUUIDSuffix(t *testing.T) {
	assert.Equal(t, "users", columnFamilyName("users-8d699920b6b111e6956951230e27f0a3"))
	assert.Equal(t, "users", columnFamilyName("users"))
}

func TestDiscoverSnapshotTablesExcludesReservedKeyspaceAndEmptyDirs(t *testing.T) {
	root := t.TempDir()
	writeSnapshotFixture(t, root, "ks", "t", "tag1", map[string]string{"a-Data.db": "x"})
	writeSnapshotFixture(t, root, "system_traces", "events", "tag1", map[string]string{"a-Data.db": "x"})
	// empty snapshot dir for a third table, under a tag that matches.
	require.NoError(t, os.MkdirAll(filepath.Join(root, "ks", "empty-"+fakeCFID, "snapshots", "tag1"), 0o755))

	tables, err := discoverSnapshotTables(root, "tag1")
	require.NoError(t, err)
	require.Len(t, tables, 1)
	assert.Equal(t, "ks", tables[0].keyspace)
	assert.Equal(t, "t", tables[0].table)
}

func TestEngineRunUploadsRealSnapshotFilesWhenTagMatches(t *testing.T) {
	d := storage.NewMemDriver()
	tm := types.TokenMap{"node1": {Tokens: []string{"1"}, IsUp: true}}
	root := t.TempDir()

	e := &Engine{
		Driver:      d,
		Snapshotter: &cassandra.NoopSnapshotter{},
		Sessions:    &cassandra.StaticSession{SchemaText: "CREATE TABLE ks.t (id int PRIMARY KEY);", Tokens: tm},
		DataRoot:    root,
		tagFunc:     func() string { return "fixed-tag" },
	}
	writeSnapshotFixture(t, root, "ks", "t", "fixed-tag", map[string]string{"a-Data.db": "hello"})

	require.NoError(t, e.Run(context.Background(), "node1", "bk1", 0, types.ModeFull))

	nb := nodebackup.New(d, "node1", "bk1", types.ModeFull)
	manifest, err := nb.Manifest(context.Background())
	require.NoError(t, err)
	require.Len(t, manifest, 1)
	assert.Equal(t, "ks", manifest[0].Keyspace)
	assert.Equal(t, "t", manifest[0].ColumnFamily)
	require.Len(t, manifest[0].Objects, 1)
	assert.Equal(t, int64(5), manifest[0].Objects[0].Size)
}
