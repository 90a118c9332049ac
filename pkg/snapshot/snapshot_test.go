package snapshot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/conflictmapper/pkg/conflicts"
	"github.com/platinummonkey/conflictmapper/pkg/overlap"
	"github.com/platinummonkey/conflictmapper/pkg/plugins"
	"github.com/platinummonkey/conflictmapper/pkg/ranking"
)

func testSnapshot() *Snapshot {
	return &Snapshot{
		RunID:       "run-1",
		Timestamp:   time.Date(2025, 1, 2, 3, 4, 5, 6, time.UTC),
		ScanType:    plugins.ScanModeAll,
		Fingerprint: "abc",
		PluginCount: 2,
		Plugins: []plugins.Plugin{
			{ID: "a", Name: "A", Version: "1.0.0", Hooks: []plugins.HookRegistration{}, Capabilities: []plugins.CapabilityTag{"caching"}, Resources: []plugins.Resource{}},
			{ID: "b", Name: "B", Version: "1.0.0", Hooks: []plugins.HookRegistration{}, Capabilities: []plugins.CapabilityTag{"caching"}, Resources: []plugins.Resource{}},
		},
		Conflicts: []conflicts.ConflictRecord{
			{Type: conflicts.TypeHookPriorityCollision, PluginIDs: []string{"a", "b"}, HookName: "init", Severity: conflicts.SeverityMedium, Description: "x"},
		},
		ConflictSummary: conflicts.Summary{Total: 1, Medium: 1, ByType: map[conflicts.ConflictType]int{conflicts.TypeHookPriorityCollision: 1}},
		Overlaps: []overlap.Cluster{
			{CapabilityTag: "caching", MemberPluginIDs: []string{"a", "b"}, RedundancyScore: 1},
		},
		HookSimilarities: []overlap.HookSimilarity{},
		Ranked: []ranking.RankedPlugin{
			{PluginID: "a", Name: "A", Score: 87, Recommendation: ranking.RecommendKeep, ContributingFactors: map[string]float64{"base_quality": 100}, Rank: 1, Percentile: 50},
			{PluginID: "b", Name: "B", Score: 87, Recommendation: ranking.RecommendKeep, ContributingFactors: map[string]float64{"base_quality": 100}, Rank: 2},
		},
		Warnings: []Warning{},
	}
}

func TestValidate(t *testing.T) {
	assert.NoError(t, testSnapshot().Validate())

	s := testSnapshot()
	s.PluginCount = 3
	assert.Error(t, s.Validate())

	s = testSnapshot()
	s.Conflicts[0].PluginIDs = []string{"a", "ghost"}
	assert.ErrorContains(t, s.Validate(), "ghost")

	s = testSnapshot()
	s.Overlaps[0].MemberPluginIDs = []string{"ghost"}
	assert.Error(t, s.Validate())

	s = testSnapshot()
	s.Ranked[1].PluginID = "ghost"
	assert.Error(t, s.Validate())
}

func TestMarshalRoundTrip(t *testing.T) {
	original := testSnapshot()

	data, err := Marshal(original)
	require.NoError(t, err)

	decoded, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, original, decoded)
}

func TestUnmarshal_Invalid(t *testing.T) {
	_, err := Unmarshal([]byte("{not json"))
	assert.Error(t, err)
}

func TestSummary(t *testing.T) {
	s := testSnapshot()
	s.ID = 7

	summary := s.Summary()
	assert.Equal(t, int64(7), summary.ID)
	assert.Equal(t, 2, summary.PluginCount)
	assert.Equal(t, 1, summary.ConflictCount)
	assert.Equal(t, 1, summary.OverlapCount)
}

func TestFromScanWarnings(t *testing.T) {
	warnings := FromScanWarnings([]*plugins.MalformedMetadataError{
		{Path: "/plugins/x", PluginID: "x", Field: "version", Reason: "Version is missing"},
	})

	require.Len(t, warnings, 1)
	assert.Equal(t, WarningMalformedMetadata, warnings[0].Code)
	assert.Equal(t, "x", warnings[0].PluginID)
	assert.Contains(t, warnings[0].Message, "Version is missing")

	assert.NotNil(t, FromScanWarnings(nil))
}
