package outbox

import (
	"errors"
	"fmt"

	"github.com/gofrs/flock"
)

// ErrLocked is returned when another process holds the resume lock.
var ErrLocked = errors.New("outbox resume lock held by another process")

// ResumeLock is an exclusive advisory lock on the outbox.
type ResumeLock struct {
	lock *flock.Flock
}

// Lock takes the resume lock without blocking.
func (s *Store) Lock() (*ResumeLock, error) {
	lock := flock.New(s.path + ".lock")
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, ErrLocked
	}
	return &ResumeLock{lock: lock}, nil
}

// Release drops the lock.
func (l *ResumeLock) Release() error {
	if l == nil || l.lock == nil {
		return nil
	}
	return l.lock.Unlock()
}
