package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrLockNotAcquired indicates another holder kept the lock past the wait budget.
	ErrLockNotAcquired = errors.New("lock not acquired")
	// ErrLockLost indicates the lock expired before release.
	ErrLockLost = errors.New("lock lost before release")
)
