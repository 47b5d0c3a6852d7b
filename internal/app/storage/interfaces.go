package storage

import (
	"context"

	"github.com/gridwise/utility-rates/internal/app/domain/association"
	"github.com/gridwise/utility-rates/internal/app/domain/forecast"
	"github.com/gridwise/utility-rates/internal/app/domain/provider"
	"github.com/gridwise/utility-rates/internal/app/domain/rate"
)

// ProviderStore persists utility provider records.
type ProviderStore interface {
	CreateProvider(ctx context.Context, p provider.Provider) (provider.Provider, error)
	UpdateProvider(ctx context.Context, p provider.Provider) (provider.Provider, error)
	GetProvider(ctx context.Context, id string) (provider.Provider, error)
	ListProviders(ctx context.Context) ([]provider.Provider, error)
	DeleteProvider(ctx context.Context, id string) error
}

// RateStore persists rate structures.
type RateStore interface {
	CreateRateStructure(ctx context.Context, rs rate.Structure) (rate.Structure, error)
	UpdateRateStructure(ctx context.Context, rs rate.Structure) (rate.Structure, error)
	GetRateStructure(ctx context.Context, id string) (rate.Structure, error)
	ListRateStructures(ctx context.Context, providerID string) ([]rate.Structure, error)
	DeleteRateStructure(ctx context.Context, id string) error
}

// AssociationStore persists user-provider associations.
type AssociationStore interface {
	CreateAssociation(ctx context.Context, a association.Association) (association.Association, error)
	GetAssociation(ctx context.Context, id string) (association.Association, error)
	ListAssociationsByUser(ctx context.Context, userID string) ([]association.Association, error)
	ListAssociationsByProvider(ctx context.Context, providerID string) ([]association.Association, error)
	DeleteAssociation(ctx context.Context, id string) error
}

// ForecastStore persists cost forecasts.
type ForecastStore interface {
	CreateForecast(ctx context.Context, f forecast.Forecast) (forecast.Forecast, error)
	UpdateForecast(ctx context.Context, f forecast.Forecast) (forecast.Forecast, error)
	GetForecast(ctx context.Context, id string) (forecast.Forecast, error)
	ListForecastsByUser(ctx context.Context, userID string) ([]forecast.Forecast, error)
	ListForecasts(ctx context.Context) ([]forecast.Forecast, error)
}
