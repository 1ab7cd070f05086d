package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
)

func TestCodeStoreReserveAndRelease(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	store := NewCodeStore(newClient(mr), time.Hour)
	ctx := context.Background()

	ok, err := store.Reserve(ctx, "123456", "session-a")
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if !ok {
		t.Fatal("expected first reservation to succeed")
	}

	ok, err = store.Reserve(ctx, "123456", "session-b")
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if ok {
		t.Fatal("expected duplicate reservation to fail")
	}

	if err := store.Release(ctx, "123456"); err != nil {
		t.Fatalf("release: %v", err)
	}

	ok, err = store.Reserve(ctx, "123456", "session-b")
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if !ok {
		t.Fatal("expected reservation to succeed after release")
	}
}

func TestCodeStoreReservationExpires(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	store := NewCodeStore(newClient(mr), time.Minute)
	ctx := context.Background()

	if ok, _ := store.Reserve(ctx, "654321", "session-a"); !ok {
		t.Fatal("expected reservation to succeed")
	}
	mr.FastForward(2 * time.Minute)

	ok, err := store.Reserve(ctx, "654321", "session-b")
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if !ok {
		t.Fatal("expected reservation to succeed after the TTL lapsed")
	}
}
