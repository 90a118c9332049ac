package plugins

import "fmt"

// ScanError is returned when the host extension registry cannot be read.
// It aborts the whole scan.
type ScanError struct {
	Root string
	Err  error
}

func (e *ScanError) Error() string {
	if e.Root == "" {
		return fmt.Sprintf("scan failed: %v", e.Err)
	}
	return fmt.Sprintf("scan failed: cannot read extension directory %s: %v", e.Root, e.Err)
}

func (e *ScanError) Unwrap() error {
	return e.Err
}

// MalformedMetadataError describes an extension whose metadata was missing or
// unreadable. Skipped reports whether the entry was dropped from the scan or
// kept with substituted defaults.
type MalformedMetadataError struct {
	Path     string
	PluginID string
	Field    string
	Reason   string
	Skipped  bool
}

func (e *MalformedMetadataError) Error() string {
	action := "defaults substituted"
	if e.Skipped {
		action = "entry skipped"
	}
	if e.Field != "" {
		return fmt.Sprintf("malformed plugin metadata in %s (%s): %s (%s)", e.Path, e.Field, e.Reason, action)
	}
	return fmt.Sprintf("malformed plugin metadata in %s: %s (%s)", e.Path, e.Reason, action)
}
