package plugins

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// ActivePluginsFileName lists the active plugin slugs at the root of the plugins directory
const ActivePluginsFileName = "active-plugins.yaml"

// FilesystemRegistry discovers extensions laid out as one directory per
// plugin under a root directory.
type FilesystemRegistry struct {
	root string
	log  *logrus.Logger

	mu     sync.RWMutex
	active map[string]bool
}

// NewFilesystemRegistry creates a registry rooted at dir
func NewFilesystemRegistry(dir string, log *logrus.Logger) *FilesystemRegistry {
	if log == nil {
		log = logrus.New()
	}

	return &FilesystemRegistry{
		root: dir,
		log:  log,
	}
}

// Root returns the plugins root directory
func (r *FilesystemRegistry) Root() string {
	return r.root
}

// ListInstalled scans the root directory and returns one entry per extension
// directory. Entries whose metadata cannot be read are returned with LoadErr
// set so the caller can record them; only an unreadable root is an error.
func (r *FilesystemRegistry) ListInstalled(ctx context.Context) ([]RawExtension, error) {
	entries, err := os.ReadDir(r.root)
	if err != nil {
		return nil, &ScanError{Root: r.root, Err: err}
	}

	if err := r.reloadActive(); err != nil {
		return nil, &ScanError{Root: r.root, Err: err}
	}

	var exts []RawExtension
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}

		dir := filepath.Join(r.root, entry.Name())
		ext := RawExtension{
			Dir:  dir,
			Slug: NormalizeSlug(entry.Name()),
		}

		manifest, source, err := r.loadMetadata(dir, entry.Name())
		if err != nil {
			r.log.Warnf("Failed to load plugin metadata from %s: %v", dir, err)
			ext.LoadErr = err
		} else {
			ext.Manifest = manifest
			ext.Source = source
		}

		exts = append(exts, ext)
	}

	sort.Slice(exts, func(i, j int) bool {
		return exts[i].Slug < exts[j].Slug
	})

	r.log.Debugf("Discovered %d extensions in %s", len(exts), r.root)
	return exts, nil
}

// IsActive reports whether the extension with the given id is listed as active
func (r *FilesystemRegistry) IsActive(ctx context.Context, id string) (bool, error) {
	r.mu.RLock()
	loaded := r.active != nil
	r.mu.RUnlock()

	if !loaded {
		if err := r.reloadActive(); err != nil {
			return false, err
		}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active[NormalizeSlug(id)], nil
}

// reloadActive re-reads the active plugin list. A missing file means nothing is active.
func (r *FilesystemRegistry) reloadActive() error {
	active := make(map[string]bool)

	data, err := os.ReadFile(filepath.Join(r.root, ActivePluginsFileName))
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return fmt.Errorf("failed to read active plugin list: %w", err)
	default:
		var slugs []string
		if err := yaml.Unmarshal(data, &slugs); err != nil {
			return fmt.Errorf("failed to parse active plugin list: %w", err)
		}
		for _, s := range slugs {
			active[NormalizeSlug(s)] = true
		}
	}

	r.mu.Lock()
	r.active = active
	r.mu.Unlock()
	return nil
}

// loadMetadata prefers plugin.yaml and falls back to the main file's header comment
func (r *FilesystemRegistry) loadMetadata(dir, name string) (*Manifest, MetadataSource, error) {
	manifest, err := LoadManifestFromDir(dir)
	if err == nil {
		return manifest, MetadataFromManifest, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, "", err
	}

	mainFile, err := findMainFile(dir, name)
	if err != nil {
		return nil, "", err
	}

	f, err := os.Open(mainFile)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open main file: %w", err)
	}
	defer f.Close()

	manifest, err = ParseHeader(f)
	if err != nil {
		return nil, "", err
	}
	if manifest == nil {
		return nil, "", fmt.Errorf("no plugin header found in %s", mainFile)
	}
	manifest.MainFile = filepath.Base(mainFile)

	return manifest, MetadataFromHeader, nil
}

// findMainFile returns <name>.php when present, otherwise the first top-level
// PHP file carrying a plugin header.
func findMainFile(dir, name string) (string, error) {
	candidate := filepath.Join(dir, name+".php")
	if _, err := os.Stat(candidate); err == nil {
		return candidate, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to read plugin directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".php" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		f, err := os.Open(path)
		if err != nil {
			continue
		}
		manifest, err := ParseHeader(f)
		f.Close()
		if err == nil && manifest != nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("no %s or plugin header found", ManifestFileName)
}
