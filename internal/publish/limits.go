// Package publish contains one adapter per destination channel. Adapters
// are independent: a failing channel never blocks its siblings.
package publish

import (
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/cryptoradar/radarshot/internal/imageproc"
)

// ErrTooLarge reports an artifact that exceeds a channel's byte ceiling
// even after the recompression pass.
var ErrTooLarge = errors.New("artifact exceeds channel size limit")

// ensureUnderLimit returns a path whose file size fits under limit. When
// the artifact is already small enough it is returned as-is; otherwise
// exactly one aggressive recompression pass is attempted into a distinct
// temporary file. The returned cleanup func is never nil and removes that
// temporary file; callers must defer it so the temp file disappears on
// every exit path, success or failure.
func ensureUnderLimit(path string, limit int64, quality int, logger *zap.Logger) (string, func(), error) {
	noop := func() {}

	info, err := os.Stat(path)
	if err != nil {
		return "", noop, fmt.Errorf("stat artifact: %w", err)
	}
	if info.Size() <= limit {
		return path, noop, nil
	}

	logger.Warn("artifact over channel limit, recompressing",
		zap.Int64("size", info.Size()), zap.Int64("limit", limit))

	compressed, err := imageproc.Recompress(path, quality)
	if err != nil {
		return "", noop, fmt.Errorf("recompress: %w", err)
	}
	cleanup := func() {
		if rmErr := os.Remove(compressed); rmErr != nil && !os.IsNotExist(rmErr) {
			logger.Warn("remove compressed temp", zap.String("path", compressed), zap.Error(rmErr))
		}
	}

	cinfo, err := os.Stat(compressed)
	if err != nil {
		cleanup()
		return "", noop, fmt.Errorf("stat compressed artifact: %w", err)
	}
	if cinfo.Size() > limit {
		cleanup()
		return "", noop, fmt.Errorf("still %d bytes after recompression (limit %d): %w",
			cinfo.Size(), limit, ErrTooLarge)
	}
	return compressed, cleanup, nil
}
