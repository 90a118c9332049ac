package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/platinummonkey/conflictmapper/pkg/snapshot"
)

// ArchiveKey returns the object key of an archived snapshot:
// snapshots/<yyyy>/<mm>/<id>-<run_id>.json
func ArchiveKey(snap *snapshot.Snapshot) string {
	ts := snap.Timestamp.UTC()
	return path.Join("snapshots",
		fmt.Sprintf("%04d", ts.Year()),
		fmt.Sprintf("%02d", int(ts.Month())),
		fmt.Sprintf("%d-%s.json", snap.ID, snap.RunID),
	)
}

// FileArchiver writes snapshot JSON below a local directory
type FileArchiver struct {
	rootDir string
}

// NewFileArchiver creates a new filesystem-based archiver
func NewFileArchiver(rootDir string) (*FileArchiver, error) {
	if err := os.MkdirAll(rootDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}
	return &FileArchiver{rootDir: rootDir}, nil
}

// Archive implements Archiver
func (a *FileArchiver) Archive(ctx context.Context, snap *snapshot.Snapshot) (string, error) {
	data, err := snapshot.Marshal(snap)
	if err != nil {
		return "", err
	}

	filePath := filepath.Join(a.rootDir, filepath.FromSlash(ArchiveKey(snap)))
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return "", fmt.Errorf("failed to create archive directory: %w", err)
	}

	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write archive file: %w", err)
	}

	return filePath, nil
}

// NewArchiver builds the archiver selected by config, or nil when archiving
// is disabled.
func NewArchiver(config Config) (Archiver, error) {
	switch {
	case config.S3Bucket != "":
		a, err := NewS3Archiver(config)
		if err != nil {
			return nil, err
		}
		return a, nil
	case config.ArchiveDir != "":
		a, err := NewFileArchiver(config.ArchiveDir)
		if err != nil {
			return nil, err
		}
		return a, nil
	default:
		return nil, nil
	}
}
