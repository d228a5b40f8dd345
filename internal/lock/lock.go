// Package lock provides named, leased mutual exclusion. A lease bounds how
// long a crashed holder can wedge the name.
package lock

import (
	"context"
	"errors"
	"time"
)

// ErrNotAcquired is returned when the lock is held elsewhere and the caller
// asked not to wait.
var ErrNotAcquired = errors.New("lock: not acquired")

// Lease is an acquired lock. Release must run on every exit path; the TTL
// bounds the damage if it does not.
type Lease struct {
	Name    string
	Token   string
	release func(context.Context) error
}

// Release gives up the lease. Releasing an already-expired lease is a no-op.
func (l *Lease) Release(ctx context.Context) error {
	if l == nil || l.release == nil {
		return nil
	}
	return l.release(ctx)
}

// Locker acquires named leases. wait is how long to contend for the lock
// (zero means fail fast); lease is the TTL granted on success.
type Locker interface {
	TryAcquire(ctx context.Context, name string, wait, lease time.Duration) (*Lease, error)
}
