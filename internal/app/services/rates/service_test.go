package rates

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gridwise/utility-rates/internal/app/domain/association"
	"github.com/gridwise/utility-rates/internal/app/domain/provider"
	"github.com/gridwise/utility-rates/internal/app/domain/rate"
	"github.com/gridwise/utility-rates/internal/app/storage/memory"
)

func setup(t *testing.T) (*Service, *memory.Store, string) {
	t.Helper()
	store := memory.New()
	p, err := store.CreateProvider(context.Background(), provider.Provider{Name: "Cascade Power"})
	require.NoError(t, err)
	return New(store, store, store, nil), store, p.ID
}

func TestCreateFlatStructure(t *testing.T) {
	svc, _, providerID := setup(t)

	created, err := svc.Create(context.Background(), rate.Structure{
		ProviderID:  providerID,
		Name:        "Residential Flat",
		Kind:        rate.KindFlat,
		PricePerKWh: 0.14,
	})
	require.NoError(t, err)
	require.Equal(t, "USD", created.Currency)
	require.True(t, created.Active)
	require.False(t, created.EffectiveFrom.IsZero())
}

func TestCreateRejectsUnknownProvider(t *testing.T) {
	svc, _, _ := setup(t)
	_, err := svc.Create(context.Background(), rate.Structure{
		ProviderID:  "no-such-provider",
		Name:        "Flat",
		Kind:        rate.KindFlat,
		PricePerKWh: 0.14,
	})
	require.Error(t, err)
}

func TestCreateValidation(t *testing.T) {
	svc, _, providerID := setup(t)
	ctx := context.Background()

	cases := []struct {
		name string
		rs   rate.Structure
	}{
		{"flat without price", rate.Structure{
			ProviderID: providerID, Name: "Flat", Kind: rate.KindFlat,
		}},
		{"unknown kind", rate.Structure{
			ProviderID: providerID, Name: "X", Kind: rate.Kind("demand"), PricePerKWh: 0.1,
		}},
		{"tiered without tiers", rate.Structure{
			ProviderID: providerID, Name: "Tiered", Kind: rate.KindTiered,
		}},
		{"tiers out of order", rate.Structure{
			ProviderID: providerID, Name: "Tiered", Kind: rate.KindTiered,
			Tiers: []rate.Tier{
				{UpToKWh: 500, PricePerKWh: 0.11},
				{UpToKWh: 300, PricePerKWh: 0.15},
			},
		}},
		{"tou overlapping hours", rate.Structure{
			ProviderID: providerID, Name: "TOU", Kind: rate.KindTimeOfUse,
			TimeOfUse: []rate.TOUPeriod{
				{StartHour: 0, EndHour: 12, PricePerKWh: 0.1},
				{StartHour: 10, EndHour: 20, PricePerKWh: 0.2},
			},
		}},
		{"negative fixed charge", rate.Structure{
			ProviderID: providerID, Name: "Flat", Kind: rate.KindFlat,
			PricePerKWh: 0.14, FixedMonthlyCharge: -1,
		}},
		{"effective window inverted", rate.Structure{
			ProviderID: providerID, Name: "Flat", Kind: rate.KindFlat,
			PricePerKWh:    0.14,
			EffectiveFrom:  time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
			EffectiveUntil: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tc.rs)
			require.Error(t, err)
		})
	}
}

func TestCreateAcceptsWrappingTOUWindow(t *testing.T) {
	svc, _, providerID := setup(t)

	_, err := svc.Create(context.Background(), rate.Structure{
		ProviderID: providerID,
		Name:       "TOU",
		Kind:       rate.KindTimeOfUse,
		TimeOfUse: []rate.TOUPeriod{
			{Label: "off-peak", StartHour: 22, EndHour: 6, PricePerKWh: 0.08},
			{Label: "day", StartHour: 6, EndHour: 22, PricePerKWh: 0.15},
		},
	})
	require.NoError(t, err)
}

func TestCreateAcceptsFullDayTOUWindow(t *testing.T) {
	svc, _, providerID := setup(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, rate.Structure{
		ProviderID: providerID,
		Name:       "All Day",
		Kind:       rate.KindTimeOfUse,
		TimeOfUse: []rate.TOUPeriod{
			{Label: "all-day", StartHour: 0, EndHour: 24, PricePerKWh: 0.12},
		},
	})
	require.NoError(t, err)

	// a full-day window leaves no room for a second period
	_, err = svc.Create(ctx, rate.Structure{
		ProviderID: providerID,
		Name:       "Overlapping",
		Kind:       rate.KindTimeOfUse,
		TimeOfUse: []rate.TOUPeriod{
			{Label: "all-day", StartHour: 0, EndHour: 24, PricePerKWh: 0.12},
			{Label: "peak", StartHour: 16, EndHour: 22, PricePerKWh: 0.30},
		},
	})
	require.Error(t, err)
}

func TestUpdatePatchSemantics(t *testing.T) {
	svc, _, providerID := setup(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, rate.Structure{
		ProviderID:  providerID,
		Name:        "Residential Flat",
		Kind:        rate.KindFlat,
		PricePerKWh: 0.14,
	})
	require.NoError(t, err)

	price := 0.16
	updated, err := svc.Update(ctx, created.ID, nil, nil, &price, nil, nil, nil, nil)
	require.NoError(t, err)
	require.Equal(t, 0.16, updated.PricePerKWh)
	require.Equal(t, "Residential Flat", updated.Name)

	inactive := false
	updated, err = svc.Update(ctx, created.ID, nil, nil, nil, nil, nil, nil, &inactive)
	require.NoError(t, err)
	require.False(t, updated.Active)
}

func TestResolveUserRatesPicksLatestEffective(t *testing.T) {
	svc, store, providerID := setup(t)
	ctx := context.Background()
	now := time.Now().UTC()

	old, err := svc.Create(ctx, rate.Structure{
		ProviderID:    providerID,
		Name:          "Old Flat",
		Kind:          rate.KindFlat,
		PricePerKWh:   0.12,
		EffectiveFrom: now.AddDate(-1, 0, 0),
	})
	require.NoError(t, err)

	current, err := svc.Create(ctx, rate.Structure{
		ProviderID:    providerID,
		Name:          "Current Flat",
		Kind:          rate.KindFlat,
		PricePerKWh:   0.15,
		EffectiveFrom: now.AddDate(0, -1, 0),
	})
	require.NoError(t, err)

	_, err = svc.Create(ctx, rate.Structure{
		ProviderID:    providerID,
		Name:          "Future Flat",
		Kind:          rate.KindFlat,
		PricePerKWh:   0.18,
		EffectiveFrom: now.AddDate(0, 1, 0),
	})
	require.NoError(t, err)

	_, err = store.CreateAssociation(ctx, association.Association{
		UserID: "user-1", ProviderID: providerID, AccountNumber: "A-100",
	})
	require.NoError(t, err)

	resolved, err := svc.ResolveUserRates(ctx, "user-1", now)
	require.NoError(t, err)
	require.Len(t, resolved, 1)
	require.Equal(t, current.ID, resolved[0].Structure.ID)
	require.NotEqual(t, old.ID, resolved[0].Structure.ID)
	require.Equal(t, "Cascade Power", resolved[0].ProviderName)
}

func TestResolveUserRatesSkipsProvidersWithoutEffectiveStructure(t *testing.T) {
	svc, store, providerID := setup(t)
	ctx := context.Background()

	_, err := store.CreateAssociation(ctx, association.Association{
		UserID: "user-1", ProviderID: providerID, AccountNumber: "A-100",
	})
	require.NoError(t, err)

	resolved, err := svc.ResolveUserRates(ctx, "user-1", time.Now().UTC())
	require.NoError(t, err)
	require.Empty(t, resolved)
}

type fakeCache struct {
	data        map[string][]rate.UserRate
	hits        int
	invalidated []string
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: make(map[string][]rate.UserRate)}
}

func (c *fakeCache) Get(_ context.Context, userID string) ([]rate.UserRate, bool) {
	rates, ok := c.data[userID]
	if ok {
		c.hits++
	}
	return rates, ok
}

func (c *fakeCache) Set(_ context.Context, userID string, rates []rate.UserRate) {
	c.data[userID] = rates
}

func (c *fakeCache) Invalidate(_ context.Context, userID string) {
	delete(c.data, userID)
	c.invalidated = append(c.invalidated, userID)
}

func TestResolveUserRatesUsesCache(t *testing.T) {
	svc, store, providerID := setup(t)
	cache := newFakeCache()
	svc.AttachCache(cache)
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := svc.Create(ctx, rate.Structure{
		ProviderID:    providerID,
		Name:          "Flat",
		Kind:          rate.KindFlat,
		PricePerKWh:   0.14,
		EffectiveFrom: now.AddDate(0, 0, -1),
	})
	require.NoError(t, err)
	_, err = store.CreateAssociation(ctx, association.Association{
		UserID: "user-1", ProviderID: providerID, AccountNumber: "A-100",
	})
	require.NoError(t, err)

	first, err := svc.ResolveUserRates(ctx, "user-1", now)
	require.NoError(t, err)
	require.Len(t, first, 1)
	require.Zero(t, cache.hits)

	second, err := svc.ResolveUserRates(ctx, "user-1", now)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, 1, cache.hits)

	svc.InvalidateUser(ctx, "user-1")
	require.Equal(t, []string{"user-1"}, cache.invalidated)
}
