package snapshot

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/platinummonkey/conflictmapper/pkg/conflicts"
	"github.com/platinummonkey/conflictmapper/pkg/overlap"
	"github.com/platinummonkey/conflictmapper/pkg/plugins"
	"github.com/platinummonkey/conflictmapper/pkg/ranking"
)

// Warning codes
const (
	WarningMalformedMetadata = "malformed_metadata"
	WarningCacheUnavailable  = "cache_unavailable"
	WarningArchiveFailed     = "archive_failed"
)

// Warning is a non-fatal problem recorded during a run
type Warning struct {
	Code     string `json:"code"`
	PluginID string `json:"plugin_id,omitempty"`
	Path     string `json:"path,omitempty"`
	Message  string `json:"message"`
}

// Snapshot is the immutable result of one full pipeline run. ID is assigned
// by the store on save and is zero before that.
type Snapshot struct {
	ID               int64                      `json:"id"`
	RunID            string                     `json:"run_id"`
	Timestamp        time.Time                  `json:"timestamp"`
	ScanType         plugins.ScanMode           `json:"scan_type"`
	Fingerprint      string                     `json:"fingerprint"`
	PluginCount      int                        `json:"plugin_count"`
	Plugins          []plugins.Plugin           `json:"plugins"`
	Conflicts        []conflicts.ConflictRecord `json:"conflicts"`
	ConflictSummary  conflicts.Summary          `json:"conflict_summary"`
	Overlaps         []overlap.Cluster          `json:"overlaps"`
	HookSimilarities []overlap.HookSimilarity   `json:"hook_similarities"`
	Ranked           []ranking.RankedPlugin     `json:"ranked"`
	Warnings         []Warning                  `json:"warnings"`
	DurationMs       int64                      `json:"duration_ms"`
}

// Summary is the listing view of a snapshot
type Summary struct {
	ID            int64            `json:"id"`
	RunID         string           `json:"run_id"`
	Timestamp     time.Time        `json:"timestamp"`
	ScanType      plugins.ScanMode `json:"scan_type"`
	Fingerprint   string           `json:"fingerprint"`
	PluginCount   int              `json:"plugin_count"`
	ConflictCount int              `json:"conflict_count"`
	OverlapCount  int              `json:"overlap_count"`
}

// Summary returns the listing view of the snapshot
func (s *Snapshot) Summary() Summary {
	return Summary{
		ID:            s.ID,
		RunID:         s.RunID,
		Timestamp:     s.Timestamp,
		ScanType:      s.ScanType,
		Fingerprint:   s.Fingerprint,
		PluginCount:   s.PluginCount,
		ConflictCount: len(s.Conflicts),
		OverlapCount:  len(s.Overlaps),
	}
}

// Validate checks that the counts match and that every plugin id referenced
// by conflicts, overlaps and ranking exists in the plugin set.
func (s *Snapshot) Validate() error {
	if s.PluginCount != len(s.Plugins) {
		return fmt.Errorf("plugin count %d does not match %d plugins", s.PluginCount, len(s.Plugins))
	}

	known := make(map[string]bool, len(s.Plugins))
	for _, p := range s.Plugins {
		known[p.ID] = true
	}

	for i, c := range s.Conflicts {
		for _, id := range c.PluginIDs {
			if !known[id] {
				return fmt.Errorf("conflict %d references unknown plugin %q", i, id)
			}
		}
	}
	for _, o := range s.Overlaps {
		for _, id := range o.MemberPluginIDs {
			if !known[id] {
				return fmt.Errorf("overlap cluster %s references unknown plugin %q", o.CapabilityTag, id)
			}
		}
	}
	for _, r := range s.Ranked {
		if !known[r.PluginID] {
			return fmt.Errorf("ranking references unknown plugin %q", r.PluginID)
		}
	}

	return nil
}

// Marshal encodes a snapshot as JSON
func Marshal(s *Snapshot) ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return data, nil
}

// Unmarshal decodes a snapshot from JSON
func Unmarshal(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &s, nil
}

// FromScanWarnings converts scanner warnings into snapshot warnings
func FromScanWarnings(ws []*plugins.MalformedMetadataError) []Warning {
	out := make([]Warning, 0, len(ws))
	for _, w := range ws {
		out = append(out, Warning{
			Code:     WarningMalformedMetadata,
			PluginID: w.PluginID,
			Path:     w.Path,
			Message:  w.Error(),
		})
	}
	return out
}
