// Package rates manages provider rate structures and resolves effective rates
// for users.
package rates

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/gridwise/utility-rates/internal/app/domain/rate"
	"github.com/gridwise/utility-rates/internal/app/storage"
	"github.com/gridwise/utility-rates/pkg/logger"
)

// UserRatesCache is an optional read-through cache for resolved user rates.
type UserRatesCache interface {
	Get(ctx context.Context, userID string) ([]rate.UserRate, bool)
	Set(ctx context.Context, userID string, rates []rate.UserRate)
	Invalidate(ctx context.Context, userID string)
}

// Service manages rate structures.
type Service struct {
	providers    storage.ProviderStore
	store        storage.RateStore
	associations storage.AssociationStore
	cache        UserRatesCache
	log          *logger.Logger
}

// New constructs a rate service.
func New(providers storage.ProviderStore, store storage.RateStore, associations storage.AssociationStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("rates")
	}
	return &Service{providers: providers, store: store, associations: associations, log: log}
}

// AttachCache wires a user-rates cache. Safe to skip; resolution then always
// hits the store.
func (s *Service) AttachCache(cache UserRatesCache) {
	s.cache = cache
}

// Create registers a rate structure under a provider.
func (s *Service) Create(ctx context.Context, rs rate.Structure) (rate.Structure, error) {
	rs.Name = strings.TrimSpace(rs.Name)
	rs.Currency = strings.ToUpper(strings.TrimSpace(rs.Currency))

	if rs.ProviderID == "" {
		return rate.Structure{}, fmt.Errorf("provider_id is required")
	}
	if rs.Name == "" {
		return rate.Structure{}, fmt.Errorf("name is required")
	}
	if rs.Currency == "" {
		rs.Currency = "USD"
	}
	if rs.EffectiveFrom.IsZero() {
		rs.EffectiveFrom = time.Now().UTC()
	}

	if err := validateStructure(rs); err != nil {
		return rate.Structure{}, err
	}

	if s.providers != nil {
		if _, err := s.providers.GetProvider(ctx, rs.ProviderID); err != nil {
			return rate.Structure{}, fmt.Errorf("provider validation failed: %w", err)
		}
	}

	rs.Active = true
	created, err := s.store.CreateRateStructure(ctx, rs)
	if err != nil {
		return rate.Structure{}, err
	}
	s.log.WithField("rate_structure_id", created.ID).
		WithField("provider_id", created.ProviderID).
		WithField("kind", string(created.Kind)).
		Info("rate structure created")
	return created, nil
}

// Update overwrites mutable fields of a rate structure. Pointer arguments
// follow the PATCH semantics of the HTTP layer: nil leaves a field unchanged.
func (s *Service) Update(ctx context.Context, id string, name *string, fixedCharge, pricePerKWh *float64, tiers []rate.Tier, tou []rate.TOUPeriod, effectiveUntil *time.Time, active *bool) (rate.Structure, error) {
	existing, err := s.store.GetRateStructure(ctx, id)
	if err != nil {
		return rate.Structure{}, err
	}

	if name != nil && strings.TrimSpace(*name) != "" {
		existing.Name = strings.TrimSpace(*name)
	}
	if fixedCharge != nil {
		existing.FixedMonthlyCharge = *fixedCharge
	}
	if pricePerKWh != nil {
		existing.PricePerKWh = *pricePerKWh
	}
	if tiers != nil {
		existing.Tiers = tiers
	}
	if tou != nil {
		existing.TimeOfUse = tou
	}
	if effectiveUntil != nil {
		existing.EffectiveUntil = *effectiveUntil
	}
	if active != nil {
		existing.Active = *active
	}

	if err := validateStructure(existing); err != nil {
		return rate.Structure{}, err
	}

	updated, err := s.store.UpdateRateStructure(ctx, existing)
	if err != nil {
		return rate.Structure{}, err
	}
	s.log.WithField("rate_structure_id", id).Info("rate structure updated")
	return updated, nil
}

// Get retrieves a rate structure by identifier.
func (s *Service) Get(ctx context.Context, id string) (rate.Structure, error) {
	return s.store.GetRateStructure(ctx, id)
}

// List returns the rate structures published by a provider.
func (s *Service) List(ctx context.Context, providerID string) ([]rate.Structure, error) {
	return s.store.ListRateStructures(ctx, providerID)
}

// Delete removes a rate structure.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteRateStructure(ctx, id); err != nil {
		return err
	}
	s.log.WithField("rate_structure_id", id).Info("rate structure deleted")
	return nil
}

// ResolveUserRates returns, for each of the user's provider associations, the
// provider's rate structure effective at the given instant. Associations whose
// provider has no effective structure are skipped.
func (s *Service) ResolveUserRates(ctx context.Context, userID string, at time.Time) ([]rate.UserRate, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}

	if s.cache != nil {
		if rates, ok := s.cache.Get(ctx, userID); ok {
			return rates, nil
		}
	}

	assocs, err := s.associations.ListAssociationsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	var resolved []rate.UserRate
	for _, assoc := range assocs {
		structures, err := s.store.ListRateStructures(ctx, assoc.ProviderID)
		if err != nil {
			return nil, err
		}
		best, ok := pickEffective(structures, at)
		if !ok {
			continue
		}

		providerName := ""
		if s.providers != nil {
			if p, err := s.providers.GetProvider(ctx, assoc.ProviderID); err == nil {
				providerName = p.Name
			}
		}

		resolved = append(resolved, rate.UserRate{
			AssociationID: assoc.ID,
			ProviderID:    assoc.ProviderID,
			ProviderName:  providerName,
			Structure:     best,
			ResolvedAt:    at,
		})
	}

	if s.cache != nil {
		s.cache.Set(ctx, userID, resolved)
	}
	return resolved, nil
}

// InvalidateUser drops any cached rates for the user. Called when the user's
// associations change.
func (s *Service) InvalidateUser(ctx context.Context, userID string) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, userID)
	}
}

// pickEffective selects the effective structure with the latest
// effective-from instant.
func pickEffective(structures []rate.Structure, at time.Time) (rate.Structure, bool) {
	var (
		best  rate.Structure
		found bool
	)
	for _, rs := range structures {
		if !rs.EffectiveAt(at) {
			continue
		}
		if !found || rs.EffectiveFrom.After(best.EffectiveFrom) {
			best = rs
			found = true
		}
	}
	return best, found
}

func validateStructure(rs rate.Structure) error {
	switch rs.Kind {
	case rate.KindFlat:
		if rs.PricePerKWh <= 0 {
			return fmt.Errorf("price_per_kwh must be positive for flat structures")
		}
	case rate.KindTiered:
		if err := validateTiers(rs.Tiers); err != nil {
			return err
		}
	case rate.KindTimeOfUse:
		if err := validateTOU(rs.TimeOfUse); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unsupported rate kind %q", rs.Kind)
	}

	if rs.FixedMonthlyCharge < 0 {
		return fmt.Errorf("fixed_monthly_charge must not be negative")
	}
	if !rs.EffectiveUntil.IsZero() && !rs.EffectiveUntil.After(rs.EffectiveFrom) {
		return fmt.Errorf("effective_until must be after effective_from")
	}
	return nil
}

func validateTiers(tiers []rate.Tier) error {
	if len(tiers) == 0 {
		return fmt.Errorf("tiered structures require at least one tier")
	}
	prev := 0.0
	for i, tier := range tiers {
		if tier.PricePerKWh <= 0 {
			return fmt.Errorf("tier %d: price_per_kwh must be positive", i)
		}
		last := i == len(tiers)-1
		if last && tier.UpToKWh == 0 {
			// open-ended final tier
			continue
		}
		if tier.UpToKWh <= prev {
			return fmt.Errorf("tier %d: up_to_kwh must exceed the previous boundary", i)
		}
		prev = tier.UpToKWh
	}
	return nil
}

func validateTOU(periods []rate.TOUPeriod) error {
	if len(periods) == 0 {
		return fmt.Errorf("time-of-use structures require at least one period")
	}

	covered := make([]bool, 24)
	sorted := make([]rate.TOUPeriod, len(periods))
	copy(sorted, periods)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].StartHour < sorted[j].StartHour })

	for i, p := range sorted {
		if p.PricePerKWh <= 0 {
			return fmt.Errorf("time-of-use period %d: price_per_kwh must be positive", i)
		}
		if p.StartHour < 0 || p.StartHour > 23 || p.EndHour < 0 || p.EndHour > 24 {
			return fmt.Errorf("time-of-use period %d: hours out of range", i)
		}
		if p.StartHour == p.EndHour {
			return fmt.Errorf("time-of-use period %d: empty hour window", i)
		}
		for _, h := range hoursIn(p) {
			if covered[h] {
				return fmt.Errorf("time-of-use period %d: hour %d covered twice", i, h)
			}
			covered[h] = true
		}
	}
	return nil
}

// hoursIn expands a period into the hours it covers, handling windows that
// wrap midnight. A window whose end lands back on its start hour spans the
// whole day.
func hoursIn(p rate.TOUPeriod) []int {
	count := (p.EndHour%24 - p.StartHour + 24) % 24
	if count == 0 {
		count = 24
	}
	hours := make([]int, 0, count)
	h := p.StartHour
	for i := 0; i < count; i++ {
		hours = append(hours, h)
		h = (h + 1) % 24
	}
	return hours
}
