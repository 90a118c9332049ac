// Package conflicts detects conflicts between installed plugins.
//
// Hook registrations of all plugins are sorted by (hook, priority, plugin)
// and swept once, so detection is O(H log H) in the number of registrations:
//
//   - two or more plugins at the same hook and priority: hook_priority_collision, medium
//   - two or more plugins claiming the last slot of a hook: mutual_exclusion, high
//   - a function or table declared by several plugins: mutual_exclusion, high
//   - a global variable shared by several plugins: mutual_exclusion, medium
//   - a pair listed in the known-conflict dataset: known_incompatible, critical
//
// The known-conflict dataset is a versioned YAML document embedded at build
// time and replaceable at startup with LoadDataset.
package conflicts
