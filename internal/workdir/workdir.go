// Package workdir manages the directory holding transient capture and
// normalization artifacts.
package workdir

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Dir is the working directory for screenshot artifacts.
type Dir struct {
	path string
}

// New ensures the directory exists and is writable.
func New(path string) (*Dir, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("workdir path is required")
	}

	info, err := os.Stat(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("stat workdir: %w", err)
		}
		if mkErr := os.MkdirAll(path, 0o750); mkErr != nil {
			return nil, fmt.Errorf("create workdir: %w", mkErr)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("workdir path is not a directory")
	}

	probe := filepath.Join(path, ".writable_test")
	if err := os.WriteFile(probe, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("workdir is not writable: %w", err)
	}
	if err := os.Remove(probe); err != nil {
		return nil, fmt.Errorf("clean up write probe: %w", err)
	}

	return &Dir{path: path}, nil
}

// TempPath returns a unique path inside the directory for a new artifact.
func (d *Dir) TempPath(prefix, ext string) string {
	name := fmt.Sprintf("%s_%s%s", prefix, uuid.NewString()[:8], ext)
	return filepath.Join(d.path, name)
}

// Path returns the directory path.
func (d *Dir) Path() string {
	return d.path
}

// PurgeOlderThan removes regular files whose modification time is older
// than maxAge. Artifacts from failed runs must not accumulate unboundedly.
func (d *Dir) PurgeOlderThan(maxAge time.Duration, now time.Time, logger *zap.Logger) int {
	if logger == nil {
		logger = zap.NewNop()
	}
	entries, err := os.ReadDir(d.path)
	if err != nil {
		logger.Warn("read workdir for purge", zap.Error(err))
		return 0
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) <= maxAge {
			continue
		}
		full := filepath.Join(d.path, entry.Name())
		if err := os.Remove(full); err != nil {
			logger.Warn("purge stale artifact", zap.String("path", full), zap.Error(err))
			continue
		}
		removed++
	}
	if removed > 0 {
		logger.Info("purged stale artifacts", zap.Int("count", removed))
	}
	return removed
}
