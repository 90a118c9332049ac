// Package snapshot defines the immutable record of one pipeline run shared by
// the cache, the persistence layer and the API.
package snapshot
