package lock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestMemoryLockerMutualExclusion(t *testing.T) {
	locker := NewMemoryLocker()
	ctx := context.Background()

	lease, err := locker.TryAcquire(ctx, "resource", 0, time.Minute)
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	if _, err := locker.TryAcquire(ctx, "resource", 0, time.Minute); !errors.Is(err, ErrNotAcquired) {
		t.Fatalf("second acquire should fail fast, got %v", err)
	}

	if err := lease.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	second, err := locker.TryAcquire(ctx, "resource", 0, time.Minute)
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	second.Release(ctx)
}

func TestMemoryLockerIndependentNames(t *testing.T) {
	locker := NewMemoryLocker()
	ctx := context.Background()

	a, err := locker.TryAcquire(ctx, "a", 0, time.Minute)
	if err != nil {
		t.Fatalf("acquire a: %v", err)
	}
	defer a.Release(ctx)

	b, err := locker.TryAcquire(ctx, "b", 0, time.Minute)
	if err != nil {
		t.Fatalf("acquire b: %v", err)
	}
	b.Release(ctx)
}

func TestMemoryLockerLeaseExpiry(t *testing.T) {
	locker := NewMemoryLocker()
	ctx := context.Background()

	stale, err := locker.TryAcquire(ctx, "resource", 0, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	fresh, err := locker.TryAcquire(ctx, "resource", 0, time.Minute)
	if err != nil {
		t.Fatalf("acquire after expiry: %v", err)
	}
	defer fresh.Release(ctx)

	// The stale holder's release must not free the fresh lease.
	if err := stale.Release(ctx); err != nil {
		t.Fatalf("stale release: %v", err)
	}
	if _, err := locker.TryAcquire(ctx, "resource", 0, time.Minute); !errors.Is(err, ErrNotAcquired) {
		t.Fatalf("fresh lease should still hold, got %v", err)
	}
}

func TestMemoryLockerWaitSucceeds(t *testing.T) {
	locker := NewMemoryLocker()
	ctx := context.Background()

	lease, err := locker.TryAcquire(ctx, "resource", 0, time.Minute)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		waiting, err := locker.TryAcquire(ctx, "resource", time.Second, time.Minute)
		if err == nil {
			waiting.Release(ctx)
		}
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	lease.Release(ctx)

	if err := <-done; err != nil {
		t.Fatalf("waiting acquire: %v", err)
	}
}

func TestMemoryLockerSingleWinner(t *testing.T) {
	locker := NewMemoryLocker()
	ctx := context.Background()

	const contenders = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := locker.TryAcquire(ctx, "resource", 0, time.Minute); err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if winners != 1 {
		t.Fatalf("winners = %d, want exactly 1", winners)
	}
}
