package plugins

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"time"
)

// DefaultHookPriority is the priority assumed when a registration omits one
const DefaultHookPriority = 10

// DefaultVersion is substituted when a plugin does not declare a usable version
const DefaultVersion = "0.0.0"

// Plugin is the canonical, immutable record for one installed extension.
// Slices are sorted by the scanner and must not be modified afterwards.
type Plugin struct {
	ID           string             `json:"id"`
	Name         string             `json:"name"`
	Version      string             `json:"version"`
	FilePath     string             `json:"file_path"`
	IsActive     bool               `json:"is_active"`
	Author       string             `json:"author,omitempty"`
	Description  string             `json:"description,omitempty"`
	TextDomain   string             `json:"text_domain,omitempty"`
	Hooks        []HookRegistration `json:"hooks"`
	Capabilities []CapabilityTag    `json:"capabilities"`
	Resources    []Resource         `json:"resources"`
	Metrics      SourceMetrics      `json:"metrics"`
	SizeBytes    int64              `json:"size_bytes"`
	LastModified time.Time          `json:"last_modified"`
}

// HasCapability reports whether the plugin carries the given tag
func (p *Plugin) HasCapability(tag CapabilityTag) bool {
	for _, c := range p.Capabilities {
		if c == tag {
			return true
		}
	}
	return false
}

// HookKind distinguishes actions from filters
type HookKind string

const (
	HookKindAction HookKind = "action"
	HookKindFilter HookKind = "filter"
)

// HookRegistration is one callback a plugin attaches to a named hook
type HookRegistration struct {
	HookName string   `json:"hook_name" yaml:"name"`
	Callback string   `json:"callback" yaml:"callback"`
	Priority int      `json:"priority" yaml:"priority"`
	Kind     HookKind `json:"kind,omitempty" yaml:"kind"`
	PluginID string   `json:"plugin_id" yaml:"-"`
}

// CapabilityTag is a normalized functional category label (e.g. "caching")
type CapabilityTag string

// NewCapabilityTag normalizes a raw label into a tag
func NewCapabilityTag(raw string) CapabilityTag {
	return CapabilityTag(NormalizeSlug(raw))
}

// ResourceKind identifies the namespace a shared resource lives in
type ResourceKind string

const (
	ResourceFunction ResourceKind = "function"
	ResourceGlobal   ResourceKind = "global"
	ResourceTable    ResourceKind = "table"
)

// Resource is a named global artifact a plugin defines
type Resource struct {
	Kind ResourceKind `json:"kind" yaml:"kind"`
	Name string       `json:"name" yaml:"name"`
}

// SourceMetrics summarizes the static footprint of a plugin's source tree
type SourceMetrics struct {
	SourceFiles int `json:"source_files"`
	Lines       int `json:"lines"`
	Functions   int `json:"functions"`
	Classes     int `json:"classes"`
	AssetFiles  int `json:"asset_files"`
	RiskyCalls  int `json:"risky_calls"`
}

// Complexity returns the rough complexity score lines + functions*10 + classes*20
func (m SourceMetrics) Complexity() int {
	return m.Lines + m.Functions*10 + m.Classes*20
}

// MetadataSource records where an extension's metadata came from
type MetadataSource string

const (
	MetadataFromManifest MetadataSource = "manifest"
	MetadataFromHeader   MetadataSource = "header"
)

// RawExtension is the unprocessed metadata for one installed extension as
// reported by a HostRegistry.
type RawExtension struct {
	Dir      string         // absolute directory of the extension
	Slug     string         // normalized directory name
	Manifest *Manifest      // nil when LoadErr is set
	Source   MetadataSource // where Manifest was read from
	LoadErr  error          // metadata could not be read or parsed
}

// ID returns the identity slug: the manifest id when present, otherwise the directory slug
func (r RawExtension) ID() string {
	if r.Manifest != nil && r.Manifest.ID != "" {
		return NormalizeSlug(r.Manifest.ID)
	}
	return r.Slug
}

// VersionOrDefault returns the declared version or DefaultVersion
func (r RawExtension) VersionOrDefault() string {
	if r.Manifest != nil && isValidVersion(r.Manifest.Version) {
		return r.Manifest.Version
	}
	return DefaultVersion
}

// HostRegistry enumerates installed extensions on the host
type HostRegistry interface {
	ListInstalled(ctx context.Context) ([]RawExtension, error)
	IsActive(ctx context.Context, id string) (bool, error)
}

// ScanMode selects which installed extensions a scan covers
type ScanMode string

const (
	ScanModeAll        ScanMode = "all"
	ScanModeActiveOnly ScanMode = "active-only"
)

// ParseScanMode parses a scan mode string
func ParseScanMode(s string) (ScanMode, bool) {
	switch ScanMode(strings.ToLower(strings.TrimSpace(s))) {
	case ScanModeAll, "":
		return ScanModeAll, true
	case ScanModeActiveOnly, "active":
		return ScanModeActiveOnly, true
	default:
		return "", false
	}
}

var nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)

// NormalizeSlug lower-cases s and collapses every run of non-alphanumeric
// characters into a single hyphen.
func NormalizeSlug(s string) string {
	s = nonSlugChars.ReplaceAllString(strings.ToLower(s), "-")
	return strings.Trim(s, "-")
}

// SortPlugins orders plugins by ID in place
func SortPlugins(list []Plugin) {
	sort.Slice(list, func(i, j int) bool {
		return list[i].ID < list[j].ID
	})
}

// Index builds an ID lookup over a plugin slice
func Index(list []Plugin) map[string]*Plugin {
	idx := make(map[string]*Plugin, len(list))
	for i := range list {
		idx[list[i].ID] = &list[i]
	}
	return idx
}
