package purge

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spotify/medusa-go/internal/index"
	"github.com/spotify/medusa-go/internal/nodebackup"
	"github.com/spotify/medusa-go/internal/storage"
	"github.com/spotify/medusa-go/internal/types"
)

// writeBackup creates a complete NodeBackup and records it in the index, so
// Planner.candidates can discover it. finishedAt anchors index.RecordFinish
// rather than WriteManifest's own object-creation timestamp, so tests can
// control ages precisely.
func writeBackup(t *testing.T, d storage.Driver, fqdn, name string, mode types.BackupMode, finishedAt time.Time, objects map[string]string) types.Manifest {
	t.Helper()
	ctx := context.Background()
	nb := nodebackup.New(d, fqdn, name, mode)
	require.NoError(t, nb.WriteSchema(ctx, "CREATE TABLE ks.t (id int PRIMARY KEY);"))
	require.NoError(t, nb.WriteTokenMap(ctx, types.TokenMap{fqdn: {Tokens: []string{"1"}, IsUp: true}}))

	var section types.KeyspaceTableSection
	section.Keyspace, section.ColumnFamily = "ks", "t"
	for relPath, content := range objects {
		var fullPath string
		if mode == types.ModeIncremental {
			fullPath = fqdn + "/data/ks/t/" + relPath
		} else {
			fullPath = nb.TableDataPrefix("ks", "t") + "/" + relPath
		}
		obj, err := d.UploadFromString(ctx, fullPath, content)
		require.NoError(t, err)
		section.Objects = append(section.Objects, types.ManifestObject{Path: obj.Name, Size: obj.Size, MD5: obj.Hash})
	}
	manifest := types.Manifest{section}
	require.NoError(t, nb.WriteManifest(ctx, manifest))

	require.NoError(t, index.RecordStart(ctx, d, name, fqdn, "{}", "schema", finishedAt.Add(-time.Minute)))
	require.NoError(t, index.RecordFinish(ctx, d, name, fqdn, "[]", "{}", finishedAt))
	return manifest
}

func TestPlanByAgeSeparatesOldFromNew(t *testing.T) {
	d := storage.NewMemDriver()
	now := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	writeBackup(t, d, "n1", "old", types.ModeFull, now.Add(-10*24*time.Hour), map[string]string{"a-Data.db": "x"})
	writeBackup(t, d, "n1", "new", types.ModeFull, now.Add(-1*time.Hour), map[string]string{"a-Data.db": "y"})

	planner := &Planner{Driver: d}
	plan, err := planner.PlanByAge(context.Background(), "n1", 24*time.Hour, now)
	require.NoError(t, err)

	require.Len(t, plan.Delete, 1)
	assert.Equal(t, "old", plan.Delete[0].Name)
	require.Len(t, plan.Keep, 1)
	assert.Equal(t, "new", plan.Keep[0].Name)
}

func TestPlanByCountKeepsNewestK(t *testing.T) {
	d := storage.NewMemDriver()
	base := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	writeBackup(t, d, "n1", "bk1", types.ModeFull, base.Add(-3*time.Hour), nil)
	writeBackup(t, d, "n1", "bk2", types.ModeFull, base.Add(-2*time.Hour), nil)
	writeBackup(t, d, "n1", "bk3", types.ModeFull, base.Add(-1*time.Hour), nil)

	planner := &Planner{Driver: d}
	plan, err := planner.PlanByCount(context.Background(), "n1", 2)
	require.NoError(t, err)

	require.Len(t, plan.Keep, 2)
	assert.Equal(t, "bk3", plan.Keep[0].Name)
	assert.Equal(t, "bk2", plan.Keep[1].Name)
	require.Len(t, plan.Delete, 1)
	assert.Equal(t, "bk1", plan.Delete[0].Name)
}

func TestExecuteDeletesFullBackupSubtreeUnconditionally(t *testing.T) {
	d := storage.NewMemDriver()
	now := time.Now()
	writeBackup(t, d, "n1", "bk1", types.ModeFull, now, map[string]string{"a-Data.db": "x"})

	planner := &Planner{Driver: d}
	plan, err := planner.PlanByCount(context.Background(), "n1", 0)
	require.NoError(t, err)
	require.Len(t, plan.Delete, 1)

	purger := &Purger{Driver: d}
	result, err := purger.Execute(context.Background(), plan)
	require.NoError(t, err)
	assert.Equal(t, []string{"bk1"}, result.BackupsDeleted)
	assert.Greater(t, result.ObjectsDeleted, 0)

	remaining, err := d.List(context.Background(), "n1/bk1/")
	require.NoError(t, err)
	assert.Empty(t, remaining)

	_, ok, err := index.LatestBackupName(context.Background(), d, "n1")
	require.NoError(t, err)
	assert.True(t, ok, "latest_backup pointer is independent bookkeeping and is not cleared by purge")
}

func TestExecuteKeepsIncrementalObjectsStillReferencedBySurvivor(t *testing.T) {
	d := storage.NewMemDriver()
	now := time.Now()
	// bk1 uploads shared.db, bk2 reuses it (same path) plus its own file.
	writeBackup(t, d, "n1", "bk1", types.ModeIncremental, now.Add(-2*time.Hour), map[string]string{"shared.db": "v1"})
	writeBackup(t, d, "n1", "bk2", types.ModeIncremental, now.Add(-1*time.Hour), map[string]string{"shared.db": "v1", "only-in-bk2.db": "v2"})

	planner := &Planner{Driver: d}
	plan, err := planner.PlanByCount(context.Background(), "n1", 1) // keep bk2, delete bk1
	require.NoError(t, err)
	require.Len(t, plan.Delete, 1)
	assert.Equal(t, "bk1", plan.Delete[0].Name)

	purger := &Purger{Driver: d}
	_, err = purger.Execute(context.Background(), plan)
	require.NoError(t, err)

	// shared.db survives because bk2 (kept) still references it.
	_, err = d.GetAsBytes(context.Background(), "n1/data/ks/t/shared.db")
	require.NoError(t, err)
	// only-in-bk2.db was never part of bk1's manifest, untouched either way.
	_, err = d.GetAsBytes(context.Background(), "n1/data/ks/t/only-in-bk2.db")
	require.NoError(t, err)

	// bk1's own meta files are gone.
	_, err = d.GetAsBytes(context.Background(), "n1/bk1/meta/manifest.json")
	require.Error(t, err)
}

func TestExecuteDeletesOrphanedIncrementalObjectWithNoSurvivor(t *testing.T) {
	d := storage.NewMemDriver()
	now := time.Now()
	writeBackup(t, d, "n1", "bk1", types.ModeIncremental, now, map[string]string{"only-in-bk1.db": "v1"})

	planner := &Planner{Driver: d}
	plan, err := planner.PlanByCount(context.Background(), "n1", 0)
	require.NoError(t, err)

	purger := &Purger{Driver: d}
	_, err = purger.Execute(context.Background(), plan)
	require.NoError(t, err)

	_, err = d.GetAsBytes(context.Background(), "n1/data/ks/t/only-in-bk1.db")
	require.Error(t, err)
}
