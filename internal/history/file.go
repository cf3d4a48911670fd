// Package history persists publication history so cooldown decisions
// survive process restarts.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/cryptoradar/radarshot/internal/radar"
)

// fileRecord is the on-disk JSON shape. Timestamps stay strings so a
// malformed entry can be detected and failed open instead of poisoning
// the whole file.
type fileRecord struct {
	LastPublished   map[string]string    `json:"last_published"`
	LastPublication *publicationSnapshot `json:"last_publication,omitempty"`
}

type publicationSnapshot struct {
	Source      string          `json:"source"`
	Name        string          `json:"name"`
	PublishedAt string          `json:"published_at"`
	Channels    map[string]bool `json:"channels"`
}

// FileStore keeps history in a single JSON file, rewritten atomically
// after every publish attempt.
type FileStore struct {
	path   string
	logger *zap.Logger
}

// NewFileStore creates a FileStore. The file itself is created lazily on
// the first Record call.
func NewFileStore(path string, logger *zap.Logger) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("history path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileStore{path: path, logger: logger}, nil
}

// LastPublished returns the recorded timestamp for sourceID. A missing
// file, missing entry, or unparsable timestamp all report ok=false; the
// cooldown check fails open rather than blocking a source forever.
func (s *FileStore) LastPublished(_ context.Context, sourceID string) (time.Time, bool, error) {
	rec, err := s.load()
	if err != nil {
		return time.Time{}, false, err
	}
	raw, ok := rec.LastPublished[sourceID]
	if !ok {
		return time.Time{}, false, nil
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		s.logger.Warn("malformed history timestamp, treating as no prior record",
			zap.String("source", sourceID), zap.String("value", raw))
		return time.Time{}, false, nil
	}
	return ts, true, nil
}

// Record updates the per-source timestamp and the most-recent-publication
// snapshot, then rewrites the file via a temp file plus rename.
func (s *FileStore) Record(_ context.Context, pub radar.Publication) error {
	rec, err := s.load()
	if err != nil {
		// A corrupt file must not block recording fresh state.
		s.logger.Warn("history unreadable, starting fresh", zap.Error(err))
		rec = fileRecord{}
	}
	if rec.LastPublished == nil {
		rec.LastPublished = map[string]string{}
	}
	stamp := pub.PublishedAt.UTC().Format(time.RFC3339)
	rec.LastPublished[pub.Source] = stamp
	rec.LastPublication = &publicationSnapshot{
		Source:      pub.Source,
		Name:        pub.Name,
		PublishedAt: stamp,
		Channels:    pub.Channels,
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return fmt.Errorf("create history dir: %w", err)
	}
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write history: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace history: %w", err)
	}
	return nil
}

func (s *FileStore) load() (fileRecord, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return fileRecord{}, nil
		}
		return fileRecord{}, fmt.Errorf("read history: %w", err)
	}
	var rec fileRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return fileRecord{}, fmt.Errorf("decode history: %w", err)
	}
	return rec, nil
}
