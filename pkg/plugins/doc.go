// Package plugins discovers installed extension plugins and builds the
// canonical Plugin records the analysis pipeline consumes.
//
// # Overview
//
// A HostRegistry enumerates installed extensions. FilesystemRegistry treats
// every immediate sub-directory of a plugins root as one extension and reads
// its metadata from plugin.yaml, falling back to the header comment of the
// main PHP file:
//
//	/*
//	 * Plugin Name: Fast Cache
//	 * Version: 2.1.0
//	 * Description: Page caching and minification
//	 */
//
// The active set is read from active-plugins.yaml at the root.
//
// # Scanning
//
// Scanner validates metadata, statically analyzes the source tree for hook
// registrations (add_action / add_filter), global functions, globals and
// database tables, infers capability tags from the name and description,
// and records the footprint of the directory.
//
// Malformed entries never abort a scan. They are skipped, or kept with
// defaults, and reported as *MalformedMetadataError warnings. Only an
// unreadable root fails with *ScanError.
//
// # Usage Example
//
//	registry := plugins.NewFilesystemRegistry("/var/www/wp-content/plugins", log)
//	scanner := plugins.NewScanner(registry, plugins.ScanOptions{Mode: plugins.ScanModeAll, Log: log})
//
//	result, err := scanner.Scan(ctx)
//	if err != nil {
//		return err
//	}
//	for _, p := range result.Plugins {
//		fmt.Printf("%s %s hooks=%d\n", p.ID, p.Version, len(p.Hooks))
//	}
//
// # Related Packages
//
//   - pkg/conflicts: Hook and resource conflict detection
//   - pkg/overlap: Capability overlap clustering
package plugins
