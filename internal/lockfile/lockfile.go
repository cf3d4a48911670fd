// Package lockfile enforces cross-invocation mutual exclusion through a
// pid lock file with stale-lock recovery.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/zap"
)

// ErrBusy is returned when another live process holds the lock. Callers
// must exit without side effects; the invoking scheduler retries later.
var ErrBusy = errors.New("another pipeline run is in progress")

// Handle represents a held lock. Release is idempotent and safe on a
// handle that failed to fully initialize.
type Handle struct {
	path     string
	flock    *flock.Flock
	logger   *zap.Logger
	mu       sync.Mutex
	released bool
}

// Acquire takes the pipeline lock at path. An existing lock file owned by
// a live process yields ErrBusy with no filesystem mutation; a stale or
// corrupt lock file is removed and acquisition proceeds. On success the
// file records the current pid and timestamp and an advisory flock is held
// for the process lifetime.
func Acquire(path string, clock func() time.Time, logger *zap.Logger) (*Handle, error) {
	if path == "" {
		return nil, fmt.Errorf("lock path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = time.Now
	}

	if data, err := os.ReadFile(path); err == nil {
		pid, parseErr := ownerPID(data)
		switch {
		case parseErr != nil:
			logger.Warn("corrupt lock file, removing",
				zap.String("path", path), zap.Error(parseErr))
		case processAlive(pid):
			logger.Info("lock held by live process",
				zap.String("path", path), zap.Int("pid", pid))
			return nil, fmt.Errorf("pid %d holds %s: %w", pid, path, ErrBusy)
		default:
			logger.Warn("stale lock from dead process, removing",
				zap.String("path", path), zap.Int("pid", pid))
		}
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			return nil, fmt.Errorf("remove stale lock: %w", rmErr)
		}
	} else if !os.IsNotExist(err) {
		// Unreadable counts as corrupt: reclaim rather than wedge forever.
		logger.Warn("unreadable lock file, removing",
			zap.String("path", path), zap.Error(err))
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			return nil, fmt.Errorf("remove unreadable lock: %w", rmErr)
		}
	}

	fl := flock.New(path)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("flock %s: %w", path, err)
	}
	if !locked {
		return nil, fmt.Errorf("flock contended on %s: %w", path, ErrBusy)
	}

	record := fmt.Sprintf("%d\n%s\n", os.Getpid(), clock().UTC().Format(time.RFC3339))
	if err := os.WriteFile(path, []byte(record), 0o600); err != nil {
		if unlockErr := fl.Unlock(); unlockErr != nil {
			logger.Warn("unlock after failed write", zap.Error(unlockErr))
		}
		return nil, fmt.Errorf("write lock record: %w", err)
	}

	logger.Info("lock acquired", zap.String("path", path), zap.Int("pid", os.Getpid()))
	return &Handle{path: path, flock: fl, logger: logger}, nil
}

// Release drops the advisory lock and removes the lock file. It may be
// called multiple times and on a nil handle.
func (h *Handle) Release() {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return
	}
	h.released = true

	if h.flock != nil {
		if err := h.flock.Unlock(); err != nil {
			h.logger.Warn("flock unlock", zap.Error(err))
		}
	}
	if err := os.Remove(h.path); err != nil && !os.IsNotExist(err) {
		h.logger.Warn("remove lock file", zap.String("path", h.path), zap.Error(err))
		return
	}
	h.logger.Info("lock released", zap.String("path", h.path))
}

func ownerPID(data []byte) (int, error) {
	line, _, _ := strings.Cut(strings.TrimSpace(string(data)), "\n")
	pid, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil {
		return 0, fmt.Errorf("parse owner pid: %w", err)
	}
	if pid <= 0 {
		return 0, fmt.Errorf("invalid owner pid %d", pid)
	}
	return pid, nil
}

// processAlive probes liveness with signal 0. EPERM means the process
// exists but belongs to another user, so it still counts as alive.
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}
