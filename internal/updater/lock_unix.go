// SPDX-License-Identifier: MPL-2.0

//go:build unix

package updater

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// InstallLock is an advisory lock on a game directory. The kernel releases
// it when the process exits, so an orphaned lock file is harmless.
type InstallLock struct {
	file *os.File
}

// AcquireLock takes a non-blocking exclusive flock on "<dir>/.nsm.lock".
// It fails with ErrLocked when another nsm process holds it.
func AcquireLock(dir string) (*InstallLock, error) {
	lockPath := filepath.Join(dir, LockFileName)

	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open lock file %s: %w", lockPath, err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("%w: %s", ErrLocked, lockPath)
		}
		return nil, fmt.Errorf("flock %s: %w", lockPath, err)
	}

	return &InstallLock{file: f}, nil
}

// Release unlocks and closes the lock file. Calling it more than once is a no-op.
func (l *InstallLock) Release() {
	if l == nil || l.file == nil {
		return
	}
	if err := unix.Flock(int(l.file.Fd()), unix.LOCK_UN); err != nil {
		slog.Debug("flock unlock failed", "error", err)
	}
	if err := l.file.Close(); err != nil {
		slog.Debug("lock file close failed", "error", err)
	}
	l.file = nil
}
