package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gridwise/utility-rates/internal/app/domain/association"
	"github.com/gridwise/utility-rates/internal/app/domain/forecast"
	"github.com/gridwise/utility-rates/internal/app/domain/provider"
	"github.com/gridwise/utility-rates/internal/app/domain/rate"
)

func TestProviderCRUD(t *testing.T) {
	store := New()
	ctx := context.Background()

	created, err := store.CreateProvider(ctx, provider.Provider{Name: "Cascade Power", Region: "us-northwest"})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	require.False(t, created.CreatedAt.IsZero())

	got, err := store.GetProvider(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, "Cascade Power", got.Name)

	got.Name = "Cascade Power & Light"
	updated, err := store.UpdateProvider(ctx, got)
	require.NoError(t, err)
	require.Equal(t, "Cascade Power & Light", updated.Name)

	list, err := store.ListProviders(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, store.DeleteProvider(ctx, created.ID))
	_, err = store.GetProvider(ctx, created.ID)
	require.Error(t, err)
}

func TestProviderCloneIsolation(t *testing.T) {
	store := New()
	ctx := context.Background()

	created, err := store.CreateProvider(ctx, provider.Provider{
		Name:     "Sunbelt",
		Metadata: map[string]string{"tier": "coop"},
	})
	require.NoError(t, err)

	// mutating the returned copy must not affect the stored record
	created.Metadata["tier"] = "corporate"

	got, err := store.GetProvider(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, "coop", got.Metadata["tier"])
}

func TestRateStructureCRUD(t *testing.T) {
	store := New()
	ctx := context.Background()

	p, err := store.CreateProvider(ctx, provider.Provider{Name: "Sunbelt"})
	require.NoError(t, err)

	rs, err := store.CreateRateStructure(ctx, rate.Structure{
		ProviderID:  p.ID,
		Name:        "Residential Flat",
		Kind:        rate.KindFlat,
		Currency:    "USD",
		PricePerKWh: 0.14,
		Active:      true,
	})
	require.NoError(t, err)
	require.NotEmpty(t, rs.ID)

	other, err := store.CreateRateStructure(ctx, rate.Structure{
		ProviderID: "someone-else",
		Name:       "Other",
		Kind:       rate.KindFlat,
	})
	require.NoError(t, err)

	list, err := store.ListRateStructures(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, rs.ID, list[0].ID)

	require.NoError(t, store.DeleteRateStructure(ctx, rs.ID))
	_, err = store.GetRateStructure(ctx, rs.ID)
	require.Error(t, err)

	_, err = store.GetRateStructure(ctx, other.ID)
	require.NoError(t, err)
}

func TestAssociationListing(t *testing.T) {
	store := New()
	ctx := context.Background()

	a1, err := store.CreateAssociation(ctx, association.Association{
		UserID: "user-1", ProviderID: "prov-1", AccountNumber: "A-100",
	})
	require.NoError(t, err)
	_, err = store.CreateAssociation(ctx, association.Association{
		UserID: "user-2", ProviderID: "prov-1", AccountNumber: "A-200",
	})
	require.NoError(t, err)

	byUser, err := store.ListAssociationsByUser(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, byUser, 1)
	require.Equal(t, a1.ID, byUser[0].ID)

	byProvider, err := store.ListAssociationsByProvider(ctx, "prov-1")
	require.NoError(t, err)
	require.Len(t, byProvider, 2)

	require.NoError(t, store.DeleteAssociation(ctx, a1.ID))
	byUser, err = store.ListAssociationsByUser(ctx, "user-1")
	require.NoError(t, err)
	require.Empty(t, byUser)
}

func TestForecastStore(t *testing.T) {
	store := New()
	ctx := context.Background()

	f, err := store.CreateForecast(ctx, forecast.Forecast{
		UserID:        "user-1",
		AssociationID: "assoc-1",
		ProjectedKWh:  420,
		EstimatedCost: 61.25,
		ComputedAt:    time.Now().UTC(),
	})
	require.NoError(t, err)
	require.NotEmpty(t, f.ID)

	f.EstimatedCost = 70
	updated, err := store.UpdateForecast(ctx, f)
	require.NoError(t, err)
	require.Equal(t, 70.0, updated.EstimatedCost)

	byUser, err := store.ListForecastsByUser(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, byUser, 1)

	all, err := store.ListForecasts(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestListForecastsByUserNewestFirst(t *testing.T) {
	store := New()
	ctx := context.Background()
	now := time.Now().UTC()

	for _, age := range []time.Duration{48 * time.Hour, 0, 24 * time.Hour} {
		_, err := store.CreateForecast(ctx, forecast.Forecast{
			UserID:        "user-1",
			AssociationID: "assoc-1",
			ComputedAt:    now.Add(-age),
		})
		require.NoError(t, err)
	}

	byUser, err := store.ListForecastsByUser(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, byUser, 3)
	require.Equal(t, now, byUser[0].ComputedAt)
	require.Equal(t, now.Add(-24*time.Hour), byUser[1].ComputedAt)
	require.Equal(t, now.Add(-48*time.Hour), byUser[2].ComputedAt)
}
