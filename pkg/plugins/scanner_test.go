package plugins

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRegistry struct {
	exts   []RawExtension
	active map[string]bool
	err    error
}

func (f *fakeRegistry) ListInstalled(ctx context.Context) ([]RawExtension, error) {
	return f.exts, f.err
}

func (f *fakeRegistry) IsActive(ctx context.Context, id string) (bool, error) {
	return f.active[id], nil
}

func intPtr(v int) *int {
	return &v
}

func TestScanner_DefaultsAndWarnings(t *testing.T) {
	root := t.TempDir()
	registry := &fakeRegistry{
		exts: []RawExtension{
			{Dir: writePluginFiles(t, root, "no-version", nil), Slug: "no-version", Manifest: &Manifest{Name: "No Version"}},
			{Dir: writePluginFiles(t, root, "no-name", nil), Slug: "no-name", Manifest: &Manifest{Version: "1.0.0"}},
			{Dir: writePluginFiles(t, root, "unreadable", nil), Slug: "unreadable", LoadErr: errors.New("permission denied")},
		},
	}

	result, err := NewScanner(registry, ScanOptions{}).Scan(context.Background())
	require.NoError(t, err)

	require.Len(t, result.Plugins, 1)
	assert.Equal(t, "no-version", result.Plugins[0].ID)
	assert.Equal(t, DefaultVersion, result.Plugins[0].Version)

	require.Len(t, result.Warnings, 3)
	byID := make(map[string]*MalformedMetadataError)
	for _, w := range result.Warnings {
		byID[w.PluginID] = w
	}
	assert.False(t, byID["no-version"].Skipped)
	assert.Equal(t, "version", byID["no-version"].Field)
	assert.True(t, byID["no-name"].Skipped)
	assert.Equal(t, "name", byID["no-name"].Field)
	assert.True(t, byID["unreadable"].Skipped)
	assert.Contains(t, byID["unreadable"].Error(), "permission denied")
}

func TestScanner_MergesDeclaredAndScannedData(t *testing.T) {
	root := t.TempDir()
	dir := writePluginFiles(t, root, "fast-cache", map[string]string{
		"fast-cache.php": "<?php\nadd_action( 'init', 'fc_init' );\nadd_action( 'shutdown', 'fc_flush', 999 );\nfunction fc_flush() {}\n",
	})

	registry := &fakeRegistry{
		exts: []RawExtension{{
			Dir:  dir,
			Slug: "fast-cache",
			Manifest: &Manifest{
				Name:         "Fast Cache",
				Version:      "2.0.0",
				MainFile:     "fast-cache.php",
				Capabilities: []string{"Performance"},
				Hooks: []ManifestHook{
					{Name: "init", Callback: "fc_init"},
					{Name: "template_redirect", Callback: "fc_buffer", Priority: intPtr(1)},
				},
				Resources: []Resource{{Kind: ResourceFunction, Name: "FC_Flush"}},
			},
		}},
		active: map[string]bool{"fast-cache": true},
	}

	result, err := NewScanner(registry, ScanOptions{Log: logrus.New()}).Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Plugins, 1)

	p := result.Plugins[0]
	assert.True(t, p.IsActive)
	assert.Equal(t, dir+"/fast-cache.php", p.FilePath)
	assert.Equal(t, []HookRegistration{
		{HookName: "init", Callback: "fc_init", Priority: 10, Kind: HookKindAction, PluginID: "fast-cache"},
		{HookName: "shutdown", Callback: "fc_flush", Priority: 999, Kind: HookKindAction, PluginID: "fast-cache"},
		{HookName: "template_redirect", Callback: "fc_buffer", Priority: 1, Kind: HookKindAction, PluginID: "fast-cache"},
	}, p.Hooks)
	assert.Equal(t, []Resource{{Kind: ResourceFunction, Name: "fc_flush"}}, p.Resources)
	assert.Equal(t, []CapabilityTag{CapabilityCaching, "performance"}, p.Capabilities)
	assert.Greater(t, p.SizeBytes, int64(0))
	assert.Empty(t, result.Warnings)
}

func TestScanner_ActiveOnly(t *testing.T) {
	root := t.TempDir()
	registry := &fakeRegistry{
		exts: []RawExtension{
			{Dir: writePluginFiles(t, root, "a", nil), Slug: "a", Manifest: &Manifest{Name: "A", Version: "1.0"}},
			{Dir: writePluginFiles(t, root, "b", nil), Slug: "b", Manifest: &Manifest{Name: "B", Version: "1.0"}},
		},
		active: map[string]bool{"b": true},
	}

	result, err := NewScanner(registry, ScanOptions{Mode: ScanModeActiveOnly}).Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Plugins, 1)
	assert.Equal(t, "b", result.Plugins[0].ID)
}

func TestScanner_DuplicateID(t *testing.T) {
	root := t.TempDir()
	registry := &fakeRegistry{
		exts: []RawExtension{
			{Dir: writePluginFiles(t, root, "one", nil), Slug: "one", Manifest: &Manifest{ID: "shared", Name: "One", Version: "1.0"}},
			{Dir: writePluginFiles(t, root, "two", nil), Slug: "two", Manifest: &Manifest{ID: "shared", Name: "Two", Version: "1.0"}},
		},
	}

	result, err := NewScanner(registry, ScanOptions{}).Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Plugins, 1)
	assert.Equal(t, "One", result.Plugins[0].Name)
	require.Len(t, result.Warnings, 1)
	assert.True(t, result.Warnings[0].Skipped)
}

func TestScanner_RegistryError(t *testing.T) {
	registry := &fakeRegistry{err: errors.New("boom")}

	result, err := NewScanner(registry, ScanOptions{}).Scan(context.Background())
	assert.Nil(t, result)

	var scanErr *ScanError
	require.True(t, errors.As(err, &scanErr))
	assert.Contains(t, err.Error(), "boom")
}

func TestScanner_EmptyRegistry(t *testing.T) {
	result, err := NewScanner(&fakeRegistry{}, ScanOptions{}).Scan(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, result.Plugins)
	assert.Empty(t, result.Plugins)
	assert.Empty(t, result.Warnings)
}

func TestScanner_FilesystemIsDeterministic(t *testing.T) {
	root := t.TempDir()
	writePluginFiles(t, root, "zeta", map[string]string{
		ManifestFileName: "name: Zeta Backup\nversion: 1.0.0\n",
	})
	writePluginFiles(t, root, "alpha", map[string]string{
		"alpha.php": "<?php\n/*\n * Plugin Name: Alpha Forms\n * Version: 3.2\n */\nadd_action( 'init', 'alpha_init' );\n",
	})
	writeActiveList(t, root, "- alpha\n")

	scanner := NewScanner(NewFilesystemRegistry(root, nil), ScanOptions{})

	first, err := scanner.Scan(context.Background())
	require.NoError(t, err)
	second, err := scanner.Scan(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	require.Len(t, first.Plugins, 2)
	assert.Equal(t, "alpha", first.Plugins[0].ID)
	assert.True(t, first.Plugins[0].IsActive)
	assert.Equal(t, "zeta", first.Plugins[1].ID)
	assert.False(t, first.Plugins[1].IsActive)
	assert.Equal(t, []CapabilityTag{CapabilityBackup}, first.Plugins[1].Capabilities)
}
