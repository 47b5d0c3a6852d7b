// Package app wires the utility rates domain services together and manages
// their lifecycle.
package app

import (
	"context"
	"fmt"

	"github.com/gridwise/utility-rates/internal/app/services/associations"
	forecastsvc "github.com/gridwise/utility-rates/internal/app/services/forecast"
	"github.com/gridwise/utility-rates/internal/app/services/providers"
	ratesvc "github.com/gridwise/utility-rates/internal/app/services/rates"
	"github.com/gridwise/utility-rates/internal/app/storage"
	"github.com/gridwise/utility-rates/internal/app/storage/memory"
	"github.com/gridwise/utility-rates/internal/app/system"
	"github.com/gridwise/utility-rates/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Providers    storage.ProviderStore
	Rates        storage.RateStore
	Associations storage.AssociationStore
	Forecasts    storage.ForecastStore
}

// Options customises application construction.
type Options struct {
	// UserRatesCache, when set, caches resolved user rates.
	UserRatesCache ratesvc.UserRatesCache
	// RecomputeSchedule is a five-field cron expression for the forecast
	// recompute worker. Empty disables the worker.
	RecomputeSchedule string
	// Workers sizes the forecast recompute pool.
	Workers int
	// BillingPeriodDays sets the projected billing period length.
	BillingPeriodDays int
}

// Application ties domain services together and manages their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Providers    *providers.Service
	Rates        *ratesvc.Service
	Associations *associations.Service
	Forecasts    *forecastsvc.Service
}

// New builds a fully initialised application with the provided stores.
func New(stores Stores, opts Options, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}

	mem := memory.New()
	if stores.Providers == nil {
		stores.Providers = mem
	}
	if stores.Rates == nil {
		stores.Rates = mem
	}
	if stores.Associations == nil {
		stores.Associations = mem
	}
	if stores.Forecasts == nil {
		stores.Forecasts = mem
	}

	manager := system.NewManager()

	providerService := providers.New(stores.Providers, stores.Rates, stores.Associations, log)
	rateService := ratesvc.New(stores.Providers, stores.Rates, stores.Associations, log)
	if opts.UserRatesCache != nil {
		rateService.AttachCache(opts.UserRatesCache)
	}
	associationService := associations.New(stores.Providers, stores.Associations, log)
	associationService.AttachInvalidator(rateService)

	var forecastOpts []forecastsvc.Option
	if opts.BillingPeriodDays > 0 {
		forecastOpts = append(forecastOpts, forecastsvc.WithBillingPeriodDays(opts.BillingPeriodDays))
	}
	forecastService := forecastsvc.New(rateService, stores.Forecasts, log, forecastOpts...)

	for _, name := range []string{"providers", "rates", "associations"} {
		if err := manager.Register(system.NoopService{ServiceName: name}); err != nil {
			return nil, fmt.Errorf("register %s service: %w", name, err)
		}
	}

	if opts.RecomputeSchedule != "" {
		recomputer, err := forecastsvc.NewRecomputer(forecastService, opts.RecomputeSchedule, opts.Workers, log)
		if err != nil {
			return nil, fmt.Errorf("configure forecast recomputer: %w", err)
		}
		if err := manager.Register(recomputer); err != nil {
			return nil, fmt.Errorf("register %s: %w", recomputer.Name(), err)
		}
	}

	return &Application{
		manager:      manager,
		log:          log,
		Providers:    providerService,
		Rates:        rateService,
		Associations: associationService,
		Forecasts:    forecastService,
	}, nil
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
