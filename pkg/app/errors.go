package app

import (
	"context"
	"errors"

	"github.com/platinummonkey/conflictmapper/pkg/plugins"
	"github.com/platinummonkey/conflictmapper/pkg/storage"
)

var (
	// ErrReadOnly is returned by RunFullScan when the app only serves stored snapshots
	ErrReadOnly = errors.New("scans are disabled in read-only mode")

	// ErrNoStore is returned by New when no persistence store is configured
	ErrNoStore = errors.New("a snapshot store is required")

	// ErrNoRegistry is returned by New when a scanning app has no host registry
	ErrNoRegistry = errors.New("a host registry is required")
)

// Stable diagnostic codes reported to users
const (
	CodeScanFailed        = "SCAN_FAILED"
	CodePersistenceFailed = "PERSISTENCE_FAILED"
	CodeScanTimeout       = "SCAN_TIMEOUT"
	CodeReadOnly          = "READ_ONLY"
	CodeNotFound          = "NOT_FOUND"
	CodeInternal          = "INTERNAL_ERROR"
)

// DiagnosticCode maps an error returned by the app onto a stable code.
// A nil error yields "".
func DiagnosticCode(err error) string {
	if err == nil {
		return ""
	}

	var scanErr *plugins.ScanError
	var persistErr *storage.PersistenceError

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return CodeScanTimeout
	case errors.Is(err, ErrReadOnly):
		return CodeReadOnly
	case errors.Is(err, storage.ErrNotFound):
		return CodeNotFound
	case errors.As(err, &scanErr):
		return CodeScanFailed
	case errors.As(err, &persistErr):
		return CodePersistenceFailed
	default:
		return CodeInternal
	}
}
