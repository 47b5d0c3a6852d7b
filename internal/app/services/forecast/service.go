// Package forecast projects billing-period costs from usage history and
// resolved rate structures.
package forecast

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/gridwise/utility-rates/internal/app/domain/forecast"
	"github.com/gridwise/utility-rates/internal/app/domain/rate"
	"github.com/gridwise/utility-rates/internal/app/metrics"
	ratesvc "github.com/gridwise/utility-rates/internal/app/services/rates"
	"github.com/gridwise/utility-rates/internal/app/storage"
	"github.com/gridwise/utility-rates/pkg/logger"
)

// DefaultBillingPeriodDays is used when no period length is configured.
const DefaultBillingPeriodDays = 30

// ErrNotOwner is returned when a user addresses a forecast they do not own.
var ErrNotOwner = errors.New("forecast not owned by user")

// Service computes and persists cost forecasts.
type Service struct {
	rates             *ratesvc.Service
	store             storage.ForecastStore
	billingPeriodDays int
	log               *logger.Logger
}

// Option customises the forecast service.
type Option func(*Service)

// WithBillingPeriodDays overrides the projected billing period length.
func WithBillingPeriodDays(days int) Option {
	return func(s *Service) {
		if days > 0 {
			s.billingPeriodDays = days
		}
	}
}

// New constructs a forecast service.
func New(rates *ratesvc.Service, store storage.ForecastStore, log *logger.Logger, opts ...Option) *Service {
	if log == nil {
		log = logger.NewDefault("forecast")
	}
	s := &Service{
		rates:             rates,
		store:             store,
		billingPeriodDays: DefaultBillingPeriodDays,
		log:               log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Compute projects a billing-period cost for each of the user's provider
// associations with an effective rate structure, and persists one forecast
// per association.
func (s *Service) Compute(ctx context.Context, userID string, samples []forecast.UsageSample) ([]forecast.Forecast, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("at least one usage sample is required")
	}
	for i, sample := range samples {
		if sample.KWh < 0 {
			return nil, fmt.Errorf("sample %d: kwh must not be negative", i)
		}
		if sample.Timestamp.IsZero() {
			return nil, fmt.Errorf("sample %d: timestamp is required", i)
		}
	}

	started := time.Now()
	now := started.UTC()
	resolved, err := s.rates.ResolveUserRates(ctx, userID, now)
	if err != nil {
		metrics.RecordForecastComputation("compute", time.Since(started), false)
		return nil, err
	}
	if len(resolved) == 0 {
		return nil, fmt.Errorf("no effective rates for user %s", userID)
	}

	projected := projectKWh(samples, s.billingPeriodDays)
	periodStart := now.Truncate(24 * time.Hour)
	periodEnd := periodStart.AddDate(0, 0, s.billingPeriodDays)

	var results []forecast.Forecast
	for _, ur := range resolved {
		cost := ur.Structure.FixedMonthlyCharge + priceEnergy(ur.Structure, projected, samples)

		f, err := s.store.CreateForecast(ctx, forecast.Forecast{
			UserID:          userID,
			AssociationID:   ur.AssociationID,
			ProviderID:      ur.ProviderID,
			RateStructureID: ur.Structure.ID,
			PeriodStart:     periodStart,
			PeriodEnd:       periodEnd,
			ProjectedKWh:    round2(projected),
			EstimatedCost:   round2(cost),
			Currency:        ur.Structure.Currency,
			ComputedAt:      now,
		})
		if err != nil {
			metrics.RecordForecastComputation("compute", time.Since(started), false)
			return nil, err
		}
		results = append(results, f)
	}

	metrics.RecordForecastComputation("compute", time.Since(started), true)
	s.log.WithField("user_id", userID).
		WithField("forecasts", len(results)).
		Info("cost forecast computed")
	return results, nil
}

// Recompute refreshes a stored forecast against the rate structure currently
// effective for its association, keeping the stored consumption projection.
func (s *Service) Recompute(ctx context.Context, f forecast.Forecast) (forecast.Forecast, error) {
	now := time.Now().UTC()

	resolved, err := s.rates.ResolveUserRates(ctx, f.UserID, now)
	if err != nil {
		return forecast.Forecast{}, err
	}

	var current *rate.UserRate
	for i := range resolved {
		if resolved[i].AssociationID == f.AssociationID {
			current = &resolved[i]
			break
		}
	}
	if current == nil {
		return forecast.Forecast{}, fmt.Errorf("association %s has no effective rate", f.AssociationID)
	}

	f.RateStructureID = current.Structure.ID
	f.ProviderID = current.ProviderID
	f.Currency = current.Structure.Currency
	f.EstimatedCost = round2(current.Structure.FixedMonthlyCharge + priceEnergy(current.Structure, f.ProjectedKWh, nil))
	f.ComputedAt = now

	return s.store.UpdateForecast(ctx, f)
}

// Get retrieves a forecast, enforcing ownership.
func (s *Service) Get(ctx context.Context, userID, id string) (forecast.Forecast, error) {
	f, err := s.store.GetForecast(ctx, id)
	if err != nil {
		return forecast.Forecast{}, err
	}
	if f.UserID != userID {
		return forecast.Forecast{}, fmt.Errorf("forecast %s: %w", id, ErrNotOwner)
	}
	return f, nil
}

// ListForUser returns the user's forecast history, most recent first.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]forecast.Forecast, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	return s.store.ListForecastsByUser(ctx, userID)
}

// ListAll returns every stored forecast. Used by the recompute worker.
func (s *Service) ListAll(ctx context.Context) ([]forecast.Forecast, error) {
	return s.store.ListForecasts(ctx)
}

// projectKWh extrapolates average daily consumption across the billing
// period. Samples spanning less than a day count as one day of usage.
func projectKWh(samples []forecast.UsageSample, periodDays int) float64 {
	var (
		total    float64
		earliest time.Time
		latest   time.Time
	)
	for _, s := range samples {
		total += s.KWh
		if earliest.IsZero() || s.Timestamp.Before(earliest) {
			earliest = s.Timestamp
		}
		if latest.IsZero() || s.Timestamp.After(latest) {
			latest = s.Timestamp
		}
	}

	days := latest.Sub(earliest).Hours() / 24
	if days < 1 {
		days = 1
	}
	return total / days * float64(periodDays)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
