package cache

import (
	"errors"
	"fmt"
)

var (
	// ErrCacheMiss is returned when a cache key is not found or has expired
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidKey is returned when a cache key is empty
	ErrInvalidKey = errors.New("invalid cache key")

	// ErrClosed is returned when a closed store is used
	ErrClosed = errors.New("cache closed")
)

// CacheError wraps a failure of the backing store. It is never fatal:
// callers log it and recompute as if the entry were missing.
type CacheError struct {
	Op  string
	Key string
	Err error
}

func (e *CacheError) Error() string {
	return fmt.Sprintf("cache %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *CacheError) Unwrap() error {
	return e.Err
}
