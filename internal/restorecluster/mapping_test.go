package restorecluster

import (
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spotify/medusa-go/internal/merrors"
	"github.com/spotify/medusa-go/internal/types"
)

func TestPlanInPlaceMapsByTokenOwnership(t *testing.T) {
	backupTM := types.TokenMap{
		"n1": {Tokens: []string{"1", "5"}},
		"n2": {Tokens: []string{"2"}},
	}
	liveTM := types.TokenMap{
		"n1-new": {Tokens: []string{"5", "1"}, IsUp: true}, // same set, different order
		"n2-new": {Tokens: []string{"2"}, IsUp: true},
	}

	mappings, err := PlanInPlace(backupTM, liveTM)
	require.NoError(t, err)
	sort.Slice(mappings, func(i, j int) bool { return mappings[i].SourceFQDN < mappings[j].SourceFQDN })

	require.Len(t, mappings, 2)
	got := map[string]string{}
	for _, m := range mappings {
		got[m.SourceFQDN] = m.TargetHost
	}
	assert.Equal(t, "n1-new", got["n1"])
	assert.Equal(t, "n2-new", got["n2"])
}

func TestPlanInPlaceFailsWhenLiveNodeDown(t *testing.T) {
	backupTM := types.TokenMap{"n1": {Tokens: []string{"1"}}}
	liveTM := types.TokenMap{"n1": {Tokens: []string{"1"}, IsUp: false}}

	_, err := PlanInPlace(backupTM, liveTM)
	require.Error(t, err)
	assert.True(t, merrors.Is(err, merrors.TopologyMismatch))
}

func TestPlanInPlaceFailsOnCardinalityMismatch(t *testing.T) {
	backupTM := types.TokenMap{"n1": {Tokens: []string{"1"}}, "n2": {Tokens: []string{"2"}}}
	liveTM := types.TokenMap{"n1": {Tokens: []string{"1"}, IsUp: true}}

	_, err := PlanInPlace(backupTM, liveTM)
	require.Error(t, err)
	assert.True(t, merrors.Is(err, merrors.TopologyMismatch))
}

func TestPlanInPlaceFailsOnTokenOwnershipMismatch(t *testing.T) {
	backupTM := types.TokenMap{"n1": {Tokens: []string{"1"}}}
	liveTM := types.TokenMap{"n1": {Tokens: []string{"99"}, IsUp: true}}

	_, err := PlanInPlace(backupTM, liveTM)
	require.Error(t, err)
	assert.True(t, merrors.Is(err, merrors.TopologyMismatch))
}

func TestParseCSVPlanDefaultSeparator(t *testing.T) {
	csv := "1,2,3;True;host-a;node1\n4,5;False;host-b;node2\n"
	mappings, err := ParseCSVPlan(strings.NewReader(csv), 0)
	require.NoError(t, err)
	require.Len(t, mappings, 2)

	assert.Equal(t, []string{"1", "2", "3"}, mappings[0].Tokens)
	assert.True(t, mappings[0].Seed)
	assert.Equal(t, "host-a", mappings[0].TargetHost)
	assert.Equal(t, "node1", mappings[0].SourceFQDN)

	assert.False(t, mappings[1].Seed)
	assert.Equal(t, "node2", mappings[1].SourceFQDN)
}

func TestParseCSVPlanCustomSeparator(t *testing.T) {
	csv := "1,2|True|host-a|node1\n"
	mappings, err := ParseCSVPlan(strings.NewReader(csv), '|')
	require.NoError(t, err)
	require.Len(t, mappings, 1)
	assert.Equal(t, "host-a", mappings[0].TargetHost)
}

func TestParseCSVPlanRejectsWrongFieldCount(t *testing.T) {
	_, err := ParseCSVPlan(strings.NewReader("1,2;True;host-a\n"), 0)
	require.Error(t, err)
	assert.True(t, merrors.Is(err, merrors.ConfigError))
}

func TestValidateCoversAllBackupHostsPasses(t *testing.T) {
	mappings := []HostMapping{{SourceFQDN: "n1"}, {SourceFQDN: "n2"}}
	require.NoError(t, ValidateCoversAllBackupHosts(mappings, []string{"n1", "n2"}))
}

func TestValidateCoversAllBackupHostsDetectsMissingAndUnknown(t *testing.T) {
	mappings := []HostMapping{{SourceFQDN: "n1"}, {SourceFQDN: "n3"}}
	err := ValidateCoversAllBackupHosts(mappings, []string{"n1", "n2"})
	require.Error(t, err)
	assert.True(t, merrors.Is(err, merrors.TopologyMismatch))
	assert.Contains(t, err.Error(), "n2")
	assert.Contains(t, err.Error(), "n3")
}
