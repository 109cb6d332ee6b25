package gamelock

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLocker(t *testing.T) (*Locker, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb), mr
}

func TestAcquireRelease(t *testing.T) {
	l, mr := newTestLocker(t)
	ctx := context.Background()

	token, err := l.Acquire(ctx, "abc123")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if !mr.Exists("lock:game:abc123") {
		t.Fatal("lock key missing after acquire")
	}
	if err := l.Release(ctx, "abc123", token); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if mr.Exists("lock:game:abc123") {
		t.Fatal("lock key still present after release")
	}
}

func TestAcquireBlocksSecondHolder(t *testing.T) {
	l, _ := newTestLocker(t)

	if _, err := l.Acquire(context.Background(), "abc123"); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if _, err := l.Acquire(ctx, "abc123"); err == nil {
		t.Fatal("second acquire should not succeed while held")
	}
}

func TestReleaseRequiresOwnership(t *testing.T) {
	l, mr := newTestLocker(t)
	ctx := context.Background()

	if _, err := l.Acquire(ctx, "abc123"); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := l.Release(ctx, "abc123", "stale-token"); err != nil {
		t.Fatalf("Release with stale token: %v", err)
	}
	if !mr.Exists("lock:game:abc123") {
		t.Fatal("foreign token must not delete the lock")
	}
}

func TestWithRunsUnderLock(t *testing.T) {
	l, mr := newTestLocker(t)
	ctx := context.Background()

	ran := false
	err := l.With(ctx, "abc123", func() error {
		ran = true
		if !mr.Exists("lock:game:abc123") {
			t.Fatal("lock not held inside With")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("With: %v", err)
	}
	if !ran {
		t.Fatal("fn did not run")
	}
	if mr.Exists("lock:game:abc123") {
		t.Fatal("lock not released after With")
	}
}

func TestWithPropagatesError(t *testing.T) {
	l, _ := newTestLocker(t)
	sentinel := errors.New("boom")
	if err := l.With(context.Background(), "abc123", func() error { return sentinel }); !errors.Is(err, sentinel) {
		t.Fatalf("want sentinel error, got %v", err)
	}
}
