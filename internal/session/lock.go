package session

import (
	"errors"
	"fmt"

	"github.com/gofrs/flock"

	"storyloom/internal/config"
)

// ErrLocked indicates another tracker already supervises this session.
var ErrLocked = errors.New("another tracker is already supervising this session")

// Lock guards a session key so only one tracker polls a job at a time.
type Lock struct {
	path string
	lock *flock.Flock
}

// NewLock builds the lock for a session key without acquiring it.
func NewLock(cfg *config.Config, sessionKey string) *Lock {
	path := cfg.SessionLockPath(sessionKey)
	return &Lock{path: path, lock: flock.New(path)}
}

// Path returns the lock file location.
func (l *Lock) Path() string {
	return l.path
}

// Acquire takes the lock without blocking. A held lock returns ErrLocked.
func (l *Lock) Acquire() error {
	ok, err := l.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire session lock %s: %w", l.path, err)
	}
	if !ok {
		return fmt.Errorf("%w (lock %s)", ErrLocked, l.path)
	}
	return nil
}

// Release drops the lock. Safe to call when not held.
func (l *Lock) Release() error {
	return l.lock.Unlock()
}
