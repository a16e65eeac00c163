package cache

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spotify/medusa-go/internal/types"
)

func manifestWith(objs ...types.ManifestObject) types.Manifest {
	return types.Manifest{{Keyspace: "ks", ColumnFamily: "t", Objects: objs}}
}

func staticMD5(m map[string]string) MD5Func {
	return func(p string) (string, error) {
		if v, ok := m[p]; ok {
			return v, nil
		}
		return "", errors.New("no digest configured for " + p)
	}
}

func TestReplaceOrRemoveNoPreviousManifestRetainsEverything(t *testing.T) {
	c := New(nil, types.ModeFull, types.ModeFull, false, staticMD5(nil))

	retained, already, err := c.ReplaceOrRemove("ks", "t", []SourceFile{{Path: "/data/ks/t/a-Data.db", Size: 10}})
	require.NoError(t, err)
	assert.Empty(t, already)
	require.Len(t, retained, 1)
	assert.True(t, retained[0].IsUpload())
	assert.Equal(t, 0, c.ReplacedCount())
}

func TestReplaceOrRemoveNeverCachedAlwaysRetainedAsUpload(t *testing.T) {
	prev := manifestWith(types.ManifestObject{Path: "node1/bk1/meta/manifest.json", Size: 5, MD5: "aaa"})
	c := New(prev, types.ModeFull, types.ModeFull, false, staticMD5(nil))

	retained, already, err := c.ReplaceOrRemove("ks", "t", []SourceFile{{Path: "/data/ks/t/manifest.json", Size: 5}})
	require.NoError(t, err)
	assert.Empty(t, already)
	require.Len(t, retained, 1)
	assert.True(t, retained[0].IsUpload())
}

func TestReplaceOrRemoveSizeMismatchRetainsAsUpload(t *testing.T) {
	prev := manifestWith(types.ManifestObject{Path: "node1/bk1/data/ks/t/a-Data.db", Size: 10, MD5: "aaa"})
	c := New(prev, types.ModeFull, types.ModeFull, false, staticMD5(nil))

	retained, already, err := c.ReplaceOrRemove("ks", "t", []SourceFile{{Path: "/data/ks/t/a-Data.db", Size: 20}})
	require.NoError(t, err)
	assert.Empty(t, already)
	require.Len(t, retained, 1)
	assert.True(t, retained[0].IsUpload())
}

func TestReplaceOrRemoveMD5MismatchRetainsAsUpload(t *testing.T) {
	prev := manifestWith(types.ManifestObject{Path: "node1/bk1/data/ks/t/a-Data.db", Size: 10, MD5: "aaa"})
	c := New(prev, types.ModeFull, types.ModeFull, false, staticMD5(map[string]string{"/data/ks/t/a-Data.db": "bbb"}))

	retained, already, err := c.ReplaceOrRemove("ks", "t", []SourceFile{{Path: "/data/ks/t/a-Data.db", Size: 10}})
	require.NoError(t, err)
	assert.Empty(t, already)
	require.Len(t, retained, 1)
	assert.True(t, retained[0].IsUpload())
}

func TestReplaceOrRemoveFullBackupHitReferencesInsteadOfUploading(t *testing.T) {
	prev := manifestWith(types.ManifestObject{Path: "node1/bk1/data/ks/t/a-Data.db", Size: 10, MD5: "aaa"})
	c := New(prev, types.ModeFull, types.ModeFull, false, staticMD5(map[string]string{"/data/ks/t/a-Data.db": "aaa"}))

	retained, already, err := c.ReplaceOrRemove("ks", "t", []SourceFile{{Path: "/data/ks/t/a-Data.db", Size: 10}})
	require.NoError(t, err)
	assert.Empty(t, already)
	require.Len(t, retained, 1)
	assert.False(t, retained[0].IsUpload())
	assert.Equal(t, "node1/bk1/data/ks/t/a-Data.db", retained[0].Reference.Path)
	assert.Equal(t, 1, c.ReplacedCount())
}

func TestReplaceOrRemoveIncrementalHitGoesToAlreadyInManifest(t *testing.T) {
	prev := manifestWith(types.ManifestObject{Path: "node1/data/ks/t/a-Data.db", Size: 10, MD5: "aaa"})
	c := New(prev, types.ModeIncremental, types.ModeIncremental, false, staticMD5(map[string]string{"/data/ks/t/a-Data.db": "aaa"}))

	retained, already, err := c.ReplaceOrRemove("ks", "t", []SourceFile{{Path: "/data/ks/t/a-Data.db", Size: 10}})
	require.NoError(t, err)
	assert.Empty(t, retained)
	require.Len(t, already, 1)
	assert.Equal(t, "node1/data/ks/t/a-Data.db", already[0].Path)
}

func TestReplaceOrRemoveSkipsMD5CheckForLocalBackend(t *testing.T) {
	prev := manifestWith(types.ManifestObject{Path: "node1/bk1/data/ks/t/a-Data.db", Size: 10, MD5: "aaa"})
	c := New(prev, types.ModeFull, types.ModeFull, true, func(string) (string, error) {
		t.Fatal("md5Of should not be called when skipMD5Check is true")
		return "", nil
	})

	retained, _, err := c.ReplaceOrRemove("ks", "t", []SourceFile{{Path: "/data/ks/t/a-Data.db", Size: 10}})
	require.NoError(t, err)
	require.Len(t, retained, 1)
	assert.False(t, retained[0].IsUpload())
}

func TestReplaceOrRemoveHexAndBase64DigestsMatch(t *testing.T) {
	prev := manifestWith(types.ManifestObject{Path: "node1/bk1/data/ks/t/a-Data.db", Size: 5, MD5: "XUFAKrxLKna5cZ2RELL62A=="})
	c := New(prev, types.ModeFull, types.ModeFull, false, staticMD5(map[string]string{
		"/data/ks/t/a-Data.db": "5d41402abc4b2a76b9719d911017c592",
	}))

	retained, _, err := c.ReplaceOrRemove("ks", "t", []SourceFile{{Path: "/data/ks/t/a-Data.db", Size: 5}})
	require.NoError(t, err)
	require.Len(t, retained, 1)
	assert.False(t, retained[0].IsUpload())
}
