package clinic

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/clinic-scheduler/pkg/apperrors"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewStore(client)
}

func TestStoreRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	cfg := laserCatalog()
	cfg.Timezone = "America/Sao_Paulo"
	cfg.Rules = []AvailabilityRule{{Weekday: 1, Start: MustTime("09:00"), End: MustTime("18:00"), Active: true}}
	cfg.Discount = &DiscountRule{FirstSessionPercent: 20, Tiers: []DiscountTier{{MinAreas: 2, MaxAreas: 4, Percent: 10}}}

	if err := store.Set(ctx, cfg); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}
	got, err := store.Get(ctx, "clinic-1")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if got.Rules[0].Start != MustTime("09:00") || got.Discount.FirstSessionPercent != 20 {
		t.Fatalf("unexpected catalog: %+v", got)
	}
	if got.Location().String() != "America/Sao_Paulo" {
		t.Fatalf("unexpected location %s", got.Location())
	}
}

func TestStoreGetUnknownClinic(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Get(context.Background(), "nope")
	if !apperrors.IsNotFound(err) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func TestStoreSetRejectsInvalid(t *testing.T) {
	store := newTestStore(t)
	cfg := laserCatalog()
	cfg.Rules = []AvailabilityRule{{Weekday: 7, Start: MustTime("09:00"), End: MustTime("18:00"), Active: true}}
	if err := store.Set(context.Background(), cfg); !apperrors.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
