package token

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/FeliciaLa/ExpertA-sub000/internal/identity"
)

func sampleSession() Session {
	return Session{
		Credential: Credential{AccessToken: "acc-1", RefreshToken: "ref-1"},
		Identity:   identity.Identity{ID: "u-1", Email: "u@x.com", Name: "User", Role: identity.RoleUser},
	}
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	ctx := context.Background()

	if err := store.Save(ctx, "sid-1", sampleSession()); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := store.Load(ctx, "sid-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got != sampleSession() {
		t.Fatalf("round-trip mismatch: %+v", got)
	}
}

func TestMemoryStoreClearIsIdempotent(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	ctx := context.Background()

	if err := store.Save(ctx, "sid-1", sampleSession()); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Clear(ctx, "sid-1"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if err := store.Clear(ctx, "sid-1"); err != nil {
		t.Fatalf("second clear: %v", err)
	}
	if _, err := store.Load(ctx, "sid-1"); err != ErrNoSession {
		t.Fatalf("expected ErrNoSession after clear, got %v", err)
	}
}

func TestMemoryStoreFailsClosedOnPartialSession(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	ctx := context.Background()

	partial := sampleSession()
	partial.Identity.Email = ""
	if err := store.Save(ctx, "sid-1", partial); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := store.Load(ctx, "sid-1"); err != ErrNoSession {
		t.Fatalf("expected ErrNoSession for partial session, got %v", err)
	}
}

func newRedisStore(t *testing.T) (Store, *redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { cache.Close() })

	return NewRedisStore(cache, time.Hour), cache, mr
}

func TestRedisStoreRoundTrip(t *testing.T) {
	store, _, _ := newRedisStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, "sid-1", sampleSession()); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := store.Load(ctx, "sid-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got != sampleSession() {
		t.Fatalf("round-trip mismatch: %+v", got)
	}
}

func TestRedisStoreFailsClosedOnCorruptRecord(t *testing.T) {
	store, _, mr := newRedisStore(t)
	ctx := context.Background()

	mr.Set(sessionKeyPrefix+"sid-1", "{not json")

	if _, err := store.Load(ctx, "sid-1"); err != ErrNoSession {
		t.Fatalf("expected ErrNoSession for corrupt record, got %v", err)
	}
	// The corrupt record is dropped, not left half-readable.
	if mr.Exists(sessionKeyPrefix + "sid-1") {
		t.Fatalf("corrupt record should have been removed")
	}
}

func TestRedisStoreClearRemovesKey(t *testing.T) {
	store, _, mr := newRedisStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, "sid-1", sampleSession()); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Clear(ctx, "sid-1"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if mr.Exists(sessionKeyPrefix + "sid-1") {
		t.Fatalf("expected no orphaned session key after clear")
	}
	if _, err := store.Load(ctx, "sid-1"); err != ErrNoSession {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
}

func TestRedisStoreSessionsExpire(t *testing.T) {
	store, _, mr := newRedisStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, "sid-1", sampleSession()); err != nil {
		t.Fatalf("save: %v", err)
	}
	mr.FastForward(2 * time.Hour)

	if _, err := store.Load(ctx, "sid-1"); err != ErrNoSession {
		t.Fatalf("expected expired session to read as logged out, got %v", err)
	}
}
