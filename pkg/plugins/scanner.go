package plugins

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

// ScanOptions configures a Scanner
type ScanOptions struct {
	Mode ScanMode
	Log  *logrus.Logger
}

// ScanResult is the canonical plugin set produced by one scan plus the
// warnings recorded for entries that were skipped or defaulted.
type ScanResult struct {
	Plugins  []Plugin
	Warnings []*MalformedMetadataError
}

// Scanner turns the raw entries of a HostRegistry into Plugin records
type Scanner struct {
	registry HostRegistry
	mode     ScanMode
	log      *logrus.Logger
}

// NewScanner creates a scanner over the given registry
func NewScanner(registry HostRegistry, opts ScanOptions) *Scanner {
	if opts.Log == nil {
		opts.Log = logrus.New()
	}
	if opts.Mode == "" {
		opts.Mode = ScanModeAll
	}

	return &Scanner{
		registry: registry,
		mode:     opts.Mode,
		log:      opts.Log,
	}
}

// Scan lists installed extensions and builds their Plugin records.
// The result is sorted by plugin ID and deterministic for identical state.
func (s *Scanner) Scan(ctx context.Context) (*ScanResult, error) {
	exts, err := s.registry.ListInstalled(ctx)
	if err != nil {
		return nil, asScanError(err)
	}
	return s.ScanExtensions(ctx, exts)
}

// ScanExtensions builds Plugin records from entries already listed by the
// registry. Malformed entries are skipped or defaulted and reported as warnings.
func (s *Scanner) ScanExtensions(ctx context.Context, exts []RawExtension) (*ScanResult, error) {
	result := &ScanResult{Plugins: []Plugin{}}
	seen := make(map[string]string, len(exts))

	for _, ext := range exts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if ext.LoadErr != nil {
			result.Warnings = append(result.Warnings, &MalformedMetadataError{
				Path:     ext.Dir,
				PluginID: ext.Slug,
				Reason:   ext.LoadErr.Error(),
				Skipped:  true,
			})
			continue
		}

		id := ext.ID()
		if id == "" {
			result.Warnings = append(result.Warnings, &MalformedMetadataError{
				Path:    ext.Dir,
				Field:   "id",
				Reason:  "plugin identifier is empty after normalization",
				Skipped: true,
			})
			continue
		}

		problems := ValidateManifest(ext.Manifest)
		if HasErrors(problems) {
			for _, p := range problems {
				if p.Severity == "error" {
					result.Warnings = append(result.Warnings, &MalformedMetadataError{
						Path:     ext.Dir,
						PluginID: id,
						Field:    p.Field,
						Reason:   p.Message,
						Skipped:  true,
					})
				}
			}
			continue
		}
		for _, p := range problems {
			result.Warnings = append(result.Warnings, &MalformedMetadataError{
				Path:     ext.Dir,
				PluginID: id,
				Field:    p.Field,
				Reason:   p.Message,
			})
		}

		if other, dup := seen[id]; dup {
			result.Warnings = append(result.Warnings, &MalformedMetadataError{
				Path:     ext.Dir,
				PluginID: id,
				Field:    "id",
				Reason:   fmt.Sprintf("duplicate plugin id, already provided by %s", other),
				Skipped:  true,
			})
			continue
		}

		active, err := s.registry.IsActive(ctx, id)
		if err != nil {
			return nil, asScanError(err)
		}
		if s.mode == ScanModeActiveOnly && !active {
			continue
		}
		seen[id] = ext.Dir

		plugin, warning := s.buildPlugin(ext, id, active)
		if warning != nil {
			result.Warnings = append(result.Warnings, warning)
		}
		result.Plugins = append(result.Plugins, plugin)
	}

	SortPlugins(result.Plugins)

	s.log.WithFields(logrus.Fields{
		"plugins":  len(result.Plugins),
		"warnings": len(result.Warnings),
		"mode":     s.mode,
	}).Debug("Plugin scan complete")

	return result, nil
}

func (s *Scanner) buildPlugin(ext RawExtension, id string, active bool) (Plugin, *MalformedMetadataError) {
	m := ext.Manifest

	plugin := Plugin{
		ID:          id,
		Name:        strings.TrimSpace(m.Name),
		Version:     ext.VersionOrDefault(),
		FilePath:    ext.Dir,
		IsActive:    active,
		Author:      m.Author,
		Description: m.Description,
		TextDomain:  m.TextDomain,
	}
	if m.MainFile != "" {
		plugin.FilePath = filepath.Join(ext.Dir, m.MainFile)
	}

	var warning *MalformedMetadataError
	analysis, err := AnalyzeSource(ext.Dir)
	if err != nil {
		s.log.Warnf("Failed to analyze source of %s: %v", id, err)
		warning = &MalformedMetadataError{
			Path:     ext.Dir,
			PluginID: id,
			Field:    "source",
			Reason:   err.Error(),
		}
		analysis = &SourceAnalysis{}
	}

	plugin.Hooks = mergeHooks(id, m.Hooks, analysis.Hooks)
	plugin.Resources = mergeResources(m.Resources, analysis.Resources)
	plugin.Capabilities = MergeCapabilities(m.Capabilities, InferCapabilities(plugin.Name, plugin.Description))
	plugin.Metrics = analysis.Metrics
	plugin.SizeBytes = analysis.SizeBytes
	plugin.LastModified = analysis.LastModified

	return plugin, warning
}

type hookKey struct {
	name     string
	callback string
	priority int
	kind     HookKind
}

func mergeHooks(pluginID string, declared []ManifestHook, scanned []HookRegistration) []HookRegistration {
	seen := make(map[hookKey]bool)
	out := make([]HookRegistration, 0, len(declared)+len(scanned))

	add := func(h HookRegistration) {
		h.HookName = strings.TrimSpace(h.HookName)
		if h.HookName == "" {
			return
		}
		if h.Kind == "" {
			h.Kind = HookKindAction
		}
		h.PluginID = pluginID

		k := hookKey{h.HookName, h.Callback, h.Priority, h.Kind}
		if seen[k] {
			return
		}
		seen[k] = true
		out = append(out, h)
	}

	for _, d := range declared {
		priority := DefaultHookPriority
		if d.Priority != nil {
			priority = *d.Priority
		}
		add(HookRegistration{
			HookName: d.Name,
			Callback: d.Callback,
			Priority: priority,
			Kind:     d.Kind,
		})
	}
	for _, h := range scanned {
		add(h)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].HookName != out[j].HookName {
			return out[i].HookName < out[j].HookName
		}
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		if out[i].Callback != out[j].Callback {
			return out[i].Callback < out[j].Callback
		}
		return out[i].Kind < out[j].Kind
	})

	return out
}

func mergeResources(declared, scanned []Resource) []Resource {
	seen := make(map[Resource]bool)
	out := make([]Resource, 0, len(declared)+len(scanned))

	for _, list := range [][]Resource{declared, scanned} {
		for _, r := range list {
			switch r.Kind {
			case ResourceFunction, ResourceTable:
				r.Name = strings.ToLower(strings.TrimSpace(r.Name))
			case ResourceGlobal:
				r.Name = strings.TrimPrefix(strings.TrimSpace(r.Name), "$")
			default:
				continue
			}
			if r.Name == "" || seen[r] {
				continue
			}
			seen[r] = true
			out = append(out, r)
		}
	}

	sortResources(out)
	return out
}

func asScanError(err error) error {
	var scanErr *ScanError
	if errors.As(err, &scanErr) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &ScanError{Err: err}
}
