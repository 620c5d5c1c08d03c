package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Sternrassler/catalog-api/pkg/clock"
)

func newTestMemoryStore() (*MemoryStore, *clock.Mock) {
	clk := clock.NewMock(time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))
	return NewMemoryStore(clk), clk
}

func TestMemoryStore_SetAndGet(t *testing.T) {
	store, _ := newTestMemoryStore()
	ctx := context.Background()
	key := NewKey("category").With("market", "US")

	if err := store.Set(ctx, key, []byte(`{"page":1}`), DefaultTTL); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != `{"page":1}` {
		t.Errorf("Get() = %s, want %s", got, `{"page":1}`)
	}
}

func TestMemoryStore_Get_CacheMiss(t *testing.T) {
	store, _ := newTestMemoryStore()

	_, err := store.Get(context.Background(), NewKey("nonexistent"))
	if !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected ErrCacheMiss, got %v", err)
	}
}

func TestMemoryStore_Expiry(t *testing.T) {
	store, clk := newTestMemoryStore()
	ctx := context.Background()
	key := NewKey("section").With("id", "s1")

	if err := store.Set(ctx, key, []byte(`"v"`), 10*time.Second); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	clk.Advance(9*time.Second + 999*time.Millisecond)
	if _, err := store.Get(ctx, key); err != nil {
		t.Fatalf("entry should still be live just before ttl: %v", err)
	}

	clk.Advance(1 * time.Millisecond)
	if _, err := store.Get(ctx, key); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected ErrCacheMiss at ttl, got %v", err)
	}
	if store.Len() != 0 {
		t.Errorf("expired entry should be removed on access, Len() = %d", store.Len())
	}
}

func TestMemoryStore_SetResetsExpiry(t *testing.T) {
	store, clk := newTestMemoryStore()
	ctx := context.Background()
	key := NewKey("section").With("id", "s1")

	if err := store.Set(ctx, key, []byte(`"old"`), 10*time.Second); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	clk.Advance(8 * time.Second)
	if err := store.Set(ctx, key, []byte(`"new"`), 10*time.Second); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	clk.Advance(8 * time.Second)
	got, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("overwritten entry should use the new ttl: %v", err)
	}
	if string(got) != `"new"` {
		t.Errorf("Get() = %s, want %s", got, `"new"`)
	}
}

func TestMemoryStore_Set_InvalidTTL(t *testing.T) {
	store, _ := newTestMemoryStore()

	if err := store.Set(context.Background(), NewKey("x"), []byte(`1`), 0); err == nil {
		t.Error("Set with zero ttl should return error")
	}
}

func TestMemoryStore_Delete(t *testing.T) {
	store, _ := newTestMemoryStore()
	ctx := context.Background()
	key := NewKey("x")

	if err := store.Set(ctx, key, []byte(`1`), time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Get(ctx, key); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected ErrCacheMiss after Delete, got %v", err)
	}
	if err := store.Delete(ctx, key); err != nil {
		t.Errorf("Delete of absent key should not fail: %v", err)
	}
}

func TestMemoryStore_Sweep(t *testing.T) {
	store, clk := newTestMemoryStore()
	ctx := context.Background()

	_ = store.Set(ctx, NewKey("short"), []byte(`1`), 5*time.Second)
	_ = store.Set(ctx, NewKey("long"), []byte(`2`), time.Hour)

	clk.Advance(time.Minute)

	if removed := store.Sweep(); removed != 1 {
		t.Errorf("Sweep() removed %d, want 1", removed)
	}
	if store.Len() != 1 {
		t.Errorf("Len() = %d, want 1", store.Len())
	}
	if _, err := store.Get(ctx, NewKey("long")); err != nil {
		t.Errorf("live entry lost by Sweep: %v", err)
	}
}
