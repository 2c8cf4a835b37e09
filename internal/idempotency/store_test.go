package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewStoreWithClient(client, time.Hour), mr
}

func TestMarkAndCheckProcessed(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	leadID := uuid.New()

	processed, _, err := store.IsProcessed(ctx, "key-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if processed {
		t.Fatal("fresh key should not be processed")
	}

	if err := store.MarkProcessed(ctx, "key-1", leadID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	processed, gotLead, err := store.IsProcessed(ctx, "key-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !processed {
		t.Fatal("marked key should be processed")
	}
	if gotLead != leadID {
		t.Fatalf("expected lead %s, got %s", leadID, gotLead)
	}
}

func TestMarkerExpires(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	if err := store.MarkProcessed(ctx, "key-2", uuid.New()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mr.FastForward(2 * time.Hour)

	processed, _, err := store.IsProcessed(ctx, "key-2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if processed {
		t.Fatal("expired marker should allow reprocessing")
	}
}

func TestFingerprintDeterministic(t *testing.T) {
	tenantID := uuid.New()
	a := Fingerprint("+5511999999999", tenantID)
	b := Fingerprint("+5511999999999", tenantID)
	if a != b {
		t.Fatal("same phone and tenant must produce the same fingerprint")
	}

	other := Fingerprint("+5511999999999", uuid.New())
	if a == other {
		t.Fatal("different tenants must not collide")
	}
	if Fingerprint("+5511888888888", tenantID) == a {
		t.Fatal("different phones must not collide")
	}
}

func TestKeyBucketsByHour(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 5, 0, 0, time.UTC)
	sameBucket := Key("acme", "11999999999", "a@b.com", "quero orçamento", base.Add(30*time.Minute))
	first := Key("acme", "11999999999", "a@b.com", "quero orçamento", base)
	if first != sameBucket {
		t.Fatal("submissions within the same hour must share a key")
	}

	nextBucket := Key("acme", "11999999999", "a@b.com", "quero orçamento", base.Add(time.Hour))
	if first == nextBucket {
		t.Fatal("a later hour bucket must produce a fresh key")
	}
}
