package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryLocker implements Locker in-process. It is the fallback for
// single-instance deployments without Redis, and what tests run against.
type MemoryLocker struct {
	mu     sync.Mutex
	leases map[string]memoryLease
}

type memoryLease struct {
	token     string
	expiresAt time.Time
}

var _ Locker = (*MemoryLocker)(nil)

// NewMemoryLocker constructs an empty MemoryLocker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{leases: make(map[string]memoryLease)}
}

// TryAcquire grants the lease if the name is free or its current lease has
// expired.
func (l *MemoryLocker) TryAcquire(ctx context.Context, name string, wait, lease time.Duration) (*Lease, error) {
	deadline := time.Now().Add(wait)
	for {
		if token, ok := l.tryGrant(name, lease); ok {
			return &Lease{
				Name:  name,
				Token: token,
				release: func(context.Context) error {
					l.releaseName(name, token)
					return nil
				},
			}, nil
		}
		if !time.Now().Add(acquirePollInterval).Before(deadline) {
			return nil, ErrNotAcquired
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(acquirePollInterval):
		}
	}
}

func (l *MemoryLocker) tryGrant(name string, lease time.Duration) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	if current, ok := l.leases[name]; ok && now.Before(current.expiresAt) {
		return "", false
	}
	token := uuid.NewString()
	l.leases[name] = memoryLease{token: token, expiresAt: now.Add(lease)}
	return token, true
}

func (l *MemoryLocker) releaseName(name, token string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if current, ok := l.leases[name]; ok && current.token == token {
		delete(l.leases, name)
	}
}
