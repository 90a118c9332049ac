package plugins

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// ManifestFileName is the metadata file looked up in every extension directory
const ManifestFileName = "plugin.yaml"

// headerReadLimit matches how much of the main file WordPress inspects for headers
const headerReadLimit = 8 * 1024

var semverRegex = regexp.MustCompile(`^v?(\d+)\.(\d+)(\.(\d+))?(-[a-zA-Z0-9.-]+)?(\+[a-zA-Z0-9.-]+)?$`)

// Manifest describes an extension's declared metadata
type Manifest struct {
	ID           string         `yaml:"id"`
	Name         string         `yaml:"name"`
	Version      string         `yaml:"version"`
	Description  string         `yaml:"description,omitempty"`
	Author       string         `yaml:"author,omitempty"`
	TextDomain   string         `yaml:"text_domain,omitempty"`
	MainFile     string         `yaml:"main_file,omitempty"`
	Hooks        []ManifestHook `yaml:"hooks,omitempty"`
	Capabilities []string       `yaml:"capabilities,omitempty"`
	Resources    []Resource     `yaml:"resources,omitempty"`
}

// ManifestHook is a hook registration declared in a manifest.
// A nil Priority means DefaultHookPriority.
type ManifestHook struct {
	Name     string   `yaml:"name"`
	Callback string   `yaml:"callback,omitempty"`
	Priority *int     `yaml:"priority,omitempty"`
	Kind     HookKind `yaml:"kind,omitempty"`
}

// ValidationError represents a manifest validation problem
type ValidationError struct {
	Field    string `json:"field"`
	Message  string `json:"message"`
	Severity string `json:"severity"` // error, warning
}

// LoadManifest loads and parses a plugin manifest from a file
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var manifest Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}

	return &manifest, nil
}

// LoadManifestFromDir loads a plugin manifest from a directory (looks for plugin.yaml)
func LoadManifestFromDir(dir string) (*Manifest, error) {
	return LoadManifest(filepath.Join(dir, ManifestFileName))
}

// SaveManifest saves a plugin manifest to a file
func SaveManifest(manifest *Manifest, path string) error {
	data, err := yaml.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}

	return nil
}

// ValidateManifest performs basic validation on a plugin manifest.
// Errors make the entry unusable; warnings are recoverable with defaults.
func ValidateManifest(manifest *Manifest) []ValidationError {
	var errors []ValidationError

	if strings.TrimSpace(manifest.Name) == "" {
		errors = append(errors, ValidationError{
			Field:    "name",
			Message:  "Plugin name is required",
			Severity: "error",
		})
	}

	if manifest.Version == "" {
		errors = append(errors, ValidationError{
			Field:    "version",
			Message:  "Version is missing",
			Severity: "warning",
		})
	} else if !isValidVersion(manifest.Version) {
		errors = append(errors, ValidationError{
			Field:    "version",
			Message:  fmt.Sprintf("Invalid version format: %s", manifest.Version),
			Severity: "warning",
		})
	}

	for i, h := range manifest.Hooks {
		if strings.TrimSpace(h.Name) == "" {
			errors = append(errors, ValidationError{
				Field:    fmt.Sprintf("hooks[%d].name", i),
				Message:  "Hook name is required",
				Severity: "warning",
			})
		}
		if h.Kind != "" && h.Kind != HookKindAction && h.Kind != HookKindFilter {
			errors = append(errors, ValidationError{
				Field:    fmt.Sprintf("hooks[%d].kind", i),
				Message:  fmt.Sprintf("Invalid hook kind: %s", h.Kind),
				Severity: "warning",
			})
		}
	}

	for i, r := range manifest.Resources {
		switch r.Kind {
		case ResourceFunction, ResourceGlobal, ResourceTable:
		default:
			errors = append(errors, ValidationError{
				Field:    fmt.Sprintf("resources[%d].kind", i),
				Message:  fmt.Sprintf("Invalid resource kind: %s", r.Kind),
				Severity: "warning",
			})
		}
	}

	return errors
}

// HasErrors reports whether any validation problem is fatal for the entry
func HasErrors(problems []ValidationError) bool {
	for _, p := range problems {
		if p.Severity == "error" {
			return true
		}
	}
	return false
}

// isValidVersion accepts semver and the two-part versions common in plugin headers
func isValidVersion(version string) bool {
	return semverRegex.MatchString(strings.TrimSpace(version))
}

var headerFields = map[string]*regexp.Regexp{
	"name":        headerRegex("Plugin Name"),
	"version":     headerRegex("Version"),
	"author":      headerRegex("Author"),
	"description": headerRegex("Description"),
	"text_domain": headerRegex("Text Domain"),
}

func headerRegex(field string) *regexp.Regexp {
	return regexp.MustCompile(`(?mi)^[ \t/*#@]*` + regexp.QuoteMeta(field) + `:(.*)$`)
}

// ParseHeader extracts manifest fields from a WordPress-style header comment.
// It returns nil when the content carries no "Plugin Name:" header.
func ParseHeader(r io.Reader) (*Manifest, error) {
	data, err := io.ReadAll(io.LimitReader(bufio.NewReader(r), headerReadLimit))
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	content := string(data)

	field := func(key string) string {
		m := headerFields[key].FindStringSubmatch(content)
		if len(m) < 2 {
			return ""
		}
		return cleanHeaderValue(m[1])
	}

	name := field("name")
	if name == "" {
		return nil, nil
	}

	return &Manifest{
		Name:        name,
		Version:     field("version"),
		Author:      field("author"),
		Description: field("description"),
		TextDomain:  field("text_domain"),
	}, nil
}

// cleanHeaderValue strips the trailing comment terminator and whitespace
func cleanHeaderValue(v string) string {
	v = strings.TrimSpace(v)
	if i := strings.Index(v, "*/"); i >= 0 {
		v = v[:i]
	}
	return strings.TrimSpace(v)
}
