package clinic

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-scheduler/pkg/apperrors"
)

func laserCatalog() *Config {
	return &Config{
		ClinicID:                      "clinic-1",
		DefaultServiceDurationMinutes: 20,
		Services: []Service{
			{ID: "consult", Name: "Consultation", DurationMinutes: 45, PriceCents: 15000},
			{ID: "laser", Name: "Laser Hair Removal", PriceCents: 10000, Areas: []Area{
				{ID: "legs", Name: "Legs", DurationMinutes: 40, PriceCents: 30000},
				{ID: "armpits", Name: "Armpits"},
			}},
		},
	}
}

func TestQuotePlainService(t *testing.T) {
	q, err := laserCatalog().Quote(Selection{ServiceID: "consult"})
	require.NoError(t, err)
	assert.Equal(t, 45*time.Minute, q.Duration)
	assert.Equal(t, int64(15000), q.PriceCents)
}

func TestQuoteAreasUseDefaults(t *testing.T) {
	q, err := laserCatalog().Quote(Selection{ServiceID: "laser", AreaIDs: []string{"legs", "armpits"}})
	require.NoError(t, err)
	assert.Equal(t, 60*time.Minute, q.Duration, "armpits falls back to the 20 minute default")
	assert.Equal(t, int64(40000), q.PriceCents, "armpits falls back to the service price")
	assert.Equal(t, []string{"Legs", "Armpits"}, q.AreaNames())
}

func TestQuoteErrors(t *testing.T) {
	cfg := laserCatalog()

	_, err := cfg.Quote(Selection{ServiceID: "missing"})
	assert.True(t, apperrors.IsNotFound(err))

	_, err = cfg.Quote(Selection{ServiceID: "laser"})
	assert.True(t, apperrors.IsValidation(err))

	_, err = cfg.Quote(Selection{ServiceID: "laser", AreaIDs: []string{"face"}})
	assert.True(t, apperrors.IsNotFound(err))
}

func TestDiscountTierContains(t *testing.T) {
	bounded := DiscountTier{MinAreas: 2, MaxAreas: 4, Percent: 10}
	open := DiscountTier{MinAreas: 5, Percent: 15}

	assert.False(t, bounded.Contains(1))
	assert.True(t, bounded.Contains(2))
	assert.True(t, bounded.Contains(4))
	assert.False(t, bounded.Contains(5))
	assert.True(t, open.Contains(50))
}
