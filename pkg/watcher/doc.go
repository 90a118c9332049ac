// Package watcher invalidates the cached snapshot when the plugins
// directory changes.
//
// Changes are debounced: a burst of writes (an update unpacking hundreds of
// files) results in one invalidation and one plugins_changed event once the
// directory has been quiet for the debounce interval.
package watcher
