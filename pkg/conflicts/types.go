package conflicts

import (
	"fmt"
	"strings"

	"github.com/platinummonkey/conflictmapper/pkg/plugins"
)

// ConflictType classifies a conflict record
type ConflictType string

const (
	TypeHookPriorityCollision ConflictType = "hook_priority_collision"
	TypeMutualExclusion       ConflictType = "mutual_exclusion"
	TypeKnownIncompatible     ConflictType = "known_incompatible"
)

// Severity is the ordinal impact of a conflict
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

var severityNames = []string{"low", "medium", "high", "critical"}

func (s Severity) String() string {
	if s < SeverityLow || s > SeverityCritical {
		return fmt.Sprintf("severity(%d)", int(s))
	}
	return severityNames[s]
}

// ParseSeverity parses a severity name
func ParseSeverity(name string) (Severity, error) {
	for i, n := range severityNames {
		if strings.EqualFold(name, n) {
			return Severity(i), nil
		}
	}
	return SeverityLow, fmt.Errorf("unknown severity: %q", name)
}

// MarshalText encodes the severity by name
func (s Severity) MarshalText() ([]byte, error) {
	if s < SeverityLow || s > SeverityCritical {
		return nil, fmt.Errorf("invalid severity: %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText decodes a severity name
func (s *Severity) UnmarshalText(text []byte) error {
	parsed, err := ParseSeverity(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ConflictRecord is one detected conflict. Records are created by the
// detector and never mutated afterwards.
type ConflictRecord struct {
	Type        ConflictType      `json:"type"`
	PluginIDs   []string          `json:"plugin_ids"`
	HookName    string            `json:"hook_name,omitempty"`
	Severity    Severity          `json:"severity"`
	Description string            `json:"description"`
	Resolution  string            `json:"resolution,omitempty"`
	Resource    *plugins.Resource `json:"resource,omitempty"`
}

// Involves reports whether the plugin is one of the record's participants
func (c ConflictRecord) Involves(pluginID string) bool {
	for _, id := range c.PluginIDs {
		if id == pluginID {
			return true
		}
	}
	return false
}

// key identifies a record for de-duplication
func (c ConflictRecord) key() string {
	var b strings.Builder
	b.WriteString(string(c.Type))
	b.WriteByte(0)
	b.WriteString(c.HookName)
	b.WriteByte(0)
	if c.Resource != nil {
		b.WriteString(string(c.Resource.Kind))
		b.WriteByte(':')
		b.WriteString(c.Resource.Name)
	}
	b.WriteByte(0)
	b.WriteString(strings.Join(c.PluginIDs, ","))
	return b.String()
}

// Summary provides an overview of detected conflicts
type Summary struct {
	Total    int                  `json:"total"`
	Critical int                  `json:"critical"`
	High     int                  `json:"high"`
	Medium   int                  `json:"medium"`
	Low      int                  `json:"low"`
	ByType   map[ConflictType]int `json:"by_type"`
}

// Summarize counts records per severity and per type
func Summarize(records []ConflictRecord) Summary {
	summary := Summary{
		Total:  len(records),
		ByType: make(map[ConflictType]int),
	}

	for _, r := range records {
		switch r.Severity {
		case SeverityCritical:
			summary.Critical++
		case SeverityHigh:
			summary.High++
		case SeverityMedium:
			summary.Medium++
		default:
			summary.Low++
		}
		summary.ByType[r.Type]++
	}

	return summary
}

// ForPlugin returns the records that involve the given plugin
func ForPlugin(records []ConflictRecord, pluginID string) []ConflictRecord {
	var out []ConflictRecord
	for _, r := range records {
		if r.Involves(pluginID) {
			out = append(out, r)
		}
	}
	return out
}
