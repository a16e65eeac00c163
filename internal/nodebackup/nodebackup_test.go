package nodebackup

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spotify/medusa-go/internal/storage"
	"github.com/spotify/medusa-go/internal/types"
)

func TestExistsReportsFalseBeforeSchemaWritten(t *testing.T) {
	d := storage.NewMemDriver()
	nb := New(d, "n1", "bk1", types.ModeFull)

	ok, err := nb.Exists(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExistsReportsTrueAfterSchemaWritten(t *testing.T) {
	d := storage.NewMemDriver()
	nb := New(d, "n1", "bk1", types.ModeFull)
	require.NoError(t, nb.WriteSchema(context.Background(), "CREATE KEYSPACE ks;"))

	ok, err := nb.Exists(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSchemaRoundTrips(t *testing.T) {
	d := storage.NewMemDriver()
	nb := New(d, "n1", "bk1", types.ModeFull)
	ctx := context.Background()
	require.NoError(t, nb.WriteSchema(ctx, "CREATE KEYSPACE ks;"))

	// a fresh reference reloads from storage instead of the cached field.
	reloaded := New(d, "n1", "bk1", types.ModeFull)
	got, err := reloaded.Schema(ctx)
	require.NoError(t, err)
	assert.Equal(t, "CREATE KEYSPACE ks;", got)
}

func TestTokenMapRoundTrips(t *testing.T) {
	d := storage.NewMemDriver()
	nb := New(d, "n1", "bk1", types.ModeFull)
	ctx := context.Background()
	tm := types.TokenMap{"n1": {Tokens: []string{"1"}, IsUp: true}}
	require.NoError(t, nb.WriteTokenMap(ctx, tm))

	reloaded := New(d, "n1", "bk1", types.ModeFull)
	got, err := reloaded.TokenMap(ctx)
	require.NoError(t, err)
	assert.Equal(t, tm, got)
}

func TestManifestRoundTrips(t *testing.T) {
	d := storage.NewMemDriver()
	nb := New(d, "n1", "bk1", types.ModeFull)
	ctx := context.Background()
	m := types.Manifest{{
		Keyspace:     "ks",
		ColumnFamily: "t",
		Objects:      []types.ManifestObject{{Path: "n1/bk1/data/ks/t/sst.db", Size: 42, MD5: "abc"}},
	}}
	require.NoError(t, nb.WriteManifest(ctx, m))

	reloaded := New(d, "n1", "bk1", types.ModeFull)
	got, err := reloaded.Manifest(ctx)
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestFinishedFalseBeforeManifestWritten(t *testing.T) {
	d := storage.NewMemDriver()
	nb := New(d, "n1", "bk1", types.ModeFull)
	ctx := context.Background()
	require.NoError(t, nb.WriteSchema(ctx, "CREATE KEYSPACE ks;"))

	_, ok, err := nb.Finished(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	complete, err := nb.IsComplete(ctx)
	require.NoError(t, err)
	assert.False(t, complete)
}

func TestFinishedTrueAfterManifestWritten(t *testing.T) {
	d := storage.NewMemDriver()
	nb := New(d, "n1", "bk1", types.ModeFull)
	ctx := context.Background()
	require.NoError(t, nb.WriteManifest(ctx, types.Manifest{}))

	_, ok, err := nb.Finished(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	complete, err := nb.IsComplete(ctx)
	require.NoError(t, err)
	assert.True(t, complete)
}

func TestStartedFalseBeforeSchemaWritten(t *testing.T) {
	d := storage.NewMemDriver()
	nb := New(d, "n1", "bk1", types.ModeFull)

	_, ok, err := nb.Started(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDataPrefixFullBackupIsSelfContained(t *testing.T) {
	nb := New(storage.NewMemDriver(), "n1", "bk1", types.ModeFull)
	assert.Equal(t, "n1/bk1/data", nb.DataPrefix())
	assert.Equal(t, "n1/bk1/data/ks/t", nb.TableDataPrefix("ks", "t"))
}

func TestDataPrefixIncrementalBackupUsesSharedPool(t *testing.T) {
	nb := New(storage.NewMemDriver(), "n1", "bk1", types.ModeIncremental)
	assert.Equal(t, "n1/data", nb.DataPrefix())
	assert.Equal(t, "n1/data/ks/t", nb.TableDataPrefix("ks", "t"))
}

func TestToManifestObjectConvertsFields(t *testing.T) {
	o := storage.Object{Name: "n1/bk1/data/ks/t/sst.db", Size: 99, Hash: "deadbeef"}
	mo := ToManifestObject(o)
	assert.Equal(t, types.ManifestObject{Path: "n1/bk1/data/ks/t/sst.db", Size: 99, MD5: "deadbeef"}, mo)
}
