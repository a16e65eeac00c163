package status

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

func writeNodeBackup(t *testing.T, d storage.Driver, fqdn, name string, tm types.TokenMap, finished bool, at time.Time) {
	t.Helper()
	ctx := context.Background()
	nb := nodebackup.New(d, fqdn, name, types.ModeFull)
	require.NoError(t, nb.WriteSchema(ctx, "CREATE TABLE ks.t (id int PRIMARY KEY);"))
	require.NoError(t, nb.WriteTokenMap(ctx, tm))

	require.NoError(t, index.RecordStart(ctx, d, name, fqdn, "{}", "schema", at.Add(-time.Minute)))
	if finished {
		require.NoError(t, nb.WriteManifest(ctx, types.Manifest{}))
		require.NoError(t, index.RecordFinish(ctx, d, name, fqdn, "[]", "{}", at))
	}
}

func twoNodeTokenMap() types.TokenMap {
	return types.TokenMap{
		"n1": {Tokens: []string{"1"}, IsUp: true},
		"n2": {Tokens: []string{"2"}, IsUp: true},
	}
}

func TestListBackupsOmitsIncompleteByDefault(t *testing.T) {
	d := storage.NewMemDriver()
	tm := twoNodeTokenMap()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	writeNodeBackup(t, d, "n1", "complete", tm, true, now)
	writeNodeBackup(t, d, "n2", "complete", tm, true, now)

	writeNodeBackup(t, d, "n1", "partial", tm, true, now.Add(time.Hour))
	writeNodeBackup(t, d, "n2", "partial", tm, false, now.Add(time.Hour))

	c := &Catalog{Driver: d}
	summaries, err := c.ListBackups(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, "complete", summaries[0].Name)
}

func TestListBackupsShowAllIncludesIncomplete(t *testing.T) {
	d := storage.NewMemDriver()
	tm := twoNodeTokenMap()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	writeNodeBackup(t, d, "n1", "complete", tm, true, now)
	writeNodeBackup(t, d, "n2", "complete", tm, true, now)
	writeNodeBackup(t, d, "n1", "partial", tm, true, now.Add(time.Hour))
	writeNodeBackup(t, d, "n2", "partial", tm, false, now.Add(time.Hour))

	c := &Catalog{Driver: d}
	summaries, err := c.ListBackups(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	var names []string
	for _, s := range summaries {
		names = append(names, s.Name)
	}
	assert.ElementsMatch(t, []string{"complete", "partial"}, names)
}

func TestListBackupsOrdersNewestFinishedFirst(t *testing.T) {
	d := storage.NewMemDriver()
	tm := twoNodeTokenMap()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for _, bk := range []struct {
		name string
		at   time.Time
	}{
		{"old", base.Add(1 * time.Hour)},
		{"new", base.Add(3 * time.Hour)},
		{"middle", base.Add(2 * time.Hour)},
	} {
		writeNodeBackup(t, d, "n1", bk.name, tm, true, bk.at)
		writeNodeBackup(t, d, "n2", bk.name, tm, true, bk.at)
	}

	c := &Catalog{Driver: d}
	summaries, err := c.ListBackups(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, summaries, 3)
	assert.Equal(t, []string{"new", "middle", "old"}, []string{summaries[0].Name, summaries[1].Name, summaries[2].Name})
}

func TestStatusReportsMissingNode(t *testing.T) {
	d := storage.NewMemDriver()
	tm := twoNodeTokenMap()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	writeNodeBackup(t, d, "n1", "bk1", tm, true, now)

	c := &Catalog{Driver: d}
	st, err := c.Status(context.Background(), "bk1")
	require.NoError(t, err)
	assert.True(t, st.MissingNodes["n2"])
	assert.False(t, st.IsComplete())
}

func TestLatestCompleteReturnsNewestComplete(t *testing.T) {
	d := storage.NewMemDriver()
	tm := twoNodeTokenMap()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	writeNodeBackup(t, d, "n1", "bk1", tm, true, base.Add(time.Hour))
	writeNodeBackup(t, d, "n2", "bk1", tm, true, base.Add(time.Hour))
	writeNodeBackup(t, d, "n1", "bk2", tm, true, base.Add(2*time.Hour))
	writeNodeBackup(t, d, "n2", "bk2", tm, false, base.Add(2*time.Hour))

	c := &Catalog{Driver: d}
	name, st, ok, err := c.LatestComplete(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "bk1", name)
	assert.True(t, st.IsComplete())
}

func TestLatestCompleteReportsNoneWhenEmpty(t *testing.T) {
	d := storage.NewMemDriver()
	c := &Catalog{Driver: d}
	_, _, ok, err := c.LatestComplete(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}
