package devotp

import (
	"context"
	"sync"
	"testing"
	"time"

	"esign-workflow/internal/otp"
)

func TestMemoryStore_PutGet(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	store.Put(ctx, "challenge-1", "123456", time.Now().UTC().Add(5*time.Minute))

	code, ok := store.Get(ctx, "challenge-1")
	if !ok || code != "123456" {
		t.Errorf("Get = %q, %v; want 123456, true", code, ok)
	}
	if _, ok := store.Get(ctx, "nonexistent"); ok {
		t.Error("Get should return false when missing")
	}
}

func TestMemoryStore_ExpiresWithClock(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore()
	store.nowF = func() time.Time { return now }
	ctx := context.Background()

	store.Put(ctx, "challenge-1", "123456", now.Add(10*time.Minute))
	now = now.Add(9 * time.Minute)
	if _, ok := store.Get(ctx, "challenge-1"); !ok {
		t.Fatal("code should still be available before expiry")
	}
	now = now.Add(2 * time.Minute)
	if _, ok := store.Get(ctx, "challenge-1"); ok {
		t.Fatal("code should be gone after expiry")
	}
	store.mu.RLock()
	_, still := store.m["challenge-1"]
	store.mu.RUnlock()
	if still {
		t.Error("expired entry should be removed on read")
	}
}

func TestMemoryStore_ConcurrentAccess(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	exp := time.Now().UTC().Add(time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() { defer wg.Done(); store.Put(ctx, "c", "111111", exp) }()
		go func() { defer wg.Done(); store.Get(ctx, "c") }()
	}
	wg.Wait()
}

func TestSender_StoresByChallenge(t *testing.T) {
	store := NewMemoryStore()
	s := NewSender(store)
	err := s.Send(context.Background(), otp.Delivery{
		ChallengeID: "ch-9", Channel: "sms", Destination: "+1555", Code: "909090",
		ExpiresAt: time.Now().UTC().Add(time.Minute),
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if code, ok := store.Get(context.Background(), "ch-9"); !ok || code != "909090" {
		t.Errorf("stored code = %q, %v", code, ok)
	}
}
