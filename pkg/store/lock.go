package store

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

// FileLock provides file-based locking via flock so concurrent FileStore
// processes never interleave writes to the same path.
type FileLock struct {
	file     *os.File
	path     string
	isLocked bool
}

// NewFileLock creates a lock file alongside path (path + ".lock").
func NewFileLock(path string) (*FileLock, error) {
	lockPath := path + ".lock"

	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create lock file: %w", err)
	}

	return &FileLock{file: file, path: lockPath}, nil
}

// Lock acquires an exclusive lock, blocking until it is available.
func (fl *FileLock) Lock() error {
	if fl.isLocked {
		return fmt.Errorf("lock already held")
	}
	if err := syscall.Flock(int(fl.file.Fd()), syscall.LOCK_EX); err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	fl.isLocked = true
	return nil
}

// TryLock attempts to acquire the lock without blocking.
func (fl *FileLock) TryLock() (bool, error) {
	if fl.isLocked {
		return false, fmt.Errorf("lock already held by this instance")
	}
	err := syscall.Flock(int(fl.file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
	if err != nil {
		if err == syscall.EWOULDBLOCK {
			return false, nil
		}
		return false, fmt.Errorf("try lock: %w", err)
	}
	fl.isLocked = true
	return true, nil
}

// Unlock releases the lock, if held.
func (fl *FileLock) Unlock() error {
	if !fl.isLocked {
		return nil
	}
	if err := syscall.Flock(int(fl.file.Fd()), syscall.LOCK_UN); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	fl.isLocked = false
	return nil
}

// Close releases the lock if held and closes the underlying file.
func (fl *FileLock) Close() error {
	if fl.isLocked {
		if err := fl.Unlock(); err != nil {
			return err
		}
	}
	if fl.file != nil {
		if err := fl.file.Close(); err != nil {
			return fmt.Errorf("close lock file: %w", err)
		}
		fl.file = nil
	}
	return nil
}
