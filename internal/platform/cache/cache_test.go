package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestInMemoryStore_SetGet(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	s.Set(ctx, "k1", []byte("v1"), time.Minute)

	data, ok := s.Get(ctx, "k1")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if string(data) != "v1" {
		t.Errorf("expected v1, got %s", data)
	}
}

func TestInMemoryStore_Miss(t *testing.T) {
	s := NewInMemoryStore()
	if _, ok := s.Get(context.Background(), "missing"); ok {
		t.Error("expected cache miss for unknown key")
	}
}

func TestInMemoryStore_Expiry(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	s.Set(ctx, "k1", []byte("v1"), 10*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	if _, ok := s.Get(ctx, "k1"); ok {
		t.Error("expected expired entry to be a miss")
	}
}

func TestInMemoryStore_Delete(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	s.Set(ctx, "k1", []byte("v1"), time.Minute)
	s.Delete(ctx, "k1")

	if _, ok := s.Get(ctx, "k1"); ok {
		t.Error("expected miss after delete")
	}
}

func TestInMemoryStore_Clear(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	s.Set(ctx, "k1", []byte("v1"), time.Minute)
	s.Set(ctx, "k2", []byte("v2"), time.Minute)
	s.Clear(ctx)

	if _, ok := s.Get(ctx, "k1"); ok {
		t.Error("expected empty cache after clear")
	}
	if _, ok := s.Get(ctx, "k2"); ok {
		t.Error("expected empty cache after clear")
	}
}

func TestRedisStore_SetGet(t *testing.T) {
	srv := miniredis.RunT(t)
	ctx := context.Background()

	s, err := NewRedisStore(ctx, "redis://"+srv.Addr())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer s.Close()

	s.Set(ctx, "k1", []byte("v1"), time.Minute)

	data, ok := s.Get(ctx, "k1")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if string(data) != "v1" {
		t.Errorf("expected v1, got %s", data)
	}
}

func TestRedisStore_Expiry(t *testing.T) {
	srv := miniredis.RunT(t)
	ctx := context.Background()

	s, err := NewRedisStore(ctx, "redis://"+srv.Addr())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer s.Close()

	s.Set(ctx, "k1", []byte("v1"), 10*time.Millisecond)
	srv.FastForward(time.Second)

	if _, ok := s.Get(ctx, "k1"); ok {
		t.Error("expected expired entry to be a miss")
	}
}

func TestRedisStore_DeleteAndClear(t *testing.T) {
	srv := miniredis.RunT(t)
	ctx := context.Background()

	s, err := NewRedisStore(ctx, "redis://"+srv.Addr())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer s.Close()

	s.Set(ctx, "k1", []byte("v1"), time.Minute)
	s.Delete(ctx, "k1")
	if _, ok := s.Get(ctx, "k1"); ok {
		t.Error("expected miss after delete")
	}

	s.Set(ctx, "k2", []byte("v2"), time.Minute)
	s.Clear(ctx)
	if _, ok := s.Get(ctx, "k2"); ok {
		t.Error("expected miss after clear")
	}
}

func TestRedisStore_BadURL(t *testing.T) {
	if _, err := NewRedisStore(context.Background(), "not-a-url"); err == nil {
		t.Error("expected error for invalid redis url")
	}
}
