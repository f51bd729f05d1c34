package dispatch

import (
	"context"
	"testing"
	"time"
)

func TestGlobalLock_AcquireRelease(t *testing.T) {
	l := NewGlobalLock()
	if err := l.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	l.Release()
	if err := l.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire after Release: %v", err)
	}
	l.Release()
}

func TestGlobalLock_TryAcquireContested(t *testing.T) {
	l := NewGlobalLock()
	if err := l.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer l.Release()

	start := time.Now()
	if l.TryAcquire(context.Background(), 50*time.Millisecond) {
		t.Fatal("TryAcquire succeeded while lock was held")
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Fatalf("TryAcquire returned too early: %v", elapsed)
	}
}

func TestGlobalLock_TryAcquireNonBlocking(t *testing.T) {
	l := NewGlobalLock()
	l.Acquire(context.Background())
	defer l.Release()

	start := time.Now()
	if l.TryAcquire(context.Background(), 0) {
		t.Fatal("TryAcquire(0) succeeded while lock was held")
	}
	if elapsed := time.Since(start); elapsed > 20*time.Millisecond {
		t.Fatalf("TryAcquire(0) should return immediately, took %v", elapsed)
	}
}

func TestGlobalLock_TryAcquireSucceedsWhenFree(t *testing.T) {
	l := NewGlobalLock()
	if !l.TryAcquire(context.Background(), time.Second) {
		t.Fatal("TryAcquire failed on a free lock")
	}
	l.Release()
}

func TestGlobalLock_AcquireRespectsContextCancellation(t *testing.T) {
	l := NewGlobalLock()
	l.Acquire(context.Background())
	defer l.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.Acquire(ctx); err == nil {
		t.Fatal("Acquire should have been canceled by context deadline")
	}
}
