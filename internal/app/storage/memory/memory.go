// Package memory provides an in-memory implementation of the storage
// interfaces. It is safe for concurrent use and is primarily intended for
// tests and local development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gridwise/utility-rates/internal/app/domain/association"
	"github.com/gridwise/utility-rates/internal/app/domain/forecast"
	"github.com/gridwise/utility-rates/internal/app/domain/provider"
	"github.com/gridwise/utility-rates/internal/app/domain/rate"
	"github.com/gridwise/utility-rates/internal/app/storage"
)

// Store holds every entity in mutex-guarded maps.
type Store struct {
	mu           sync.RWMutex
	nextID       int64
	providers    map[string]provider.Provider
	rates        map[string]rate.Structure
	associations map[string]association.Association
	forecasts    map[string]forecast.Forecast
}

var _ storage.ProviderStore = (*Store)(nil)
var _ storage.RateStore = (*Store)(nil)
var _ storage.AssociationStore = (*Store)(nil)
var _ storage.ForecastStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		nextID:       1,
		providers:    make(map[string]provider.Provider),
		rates:        make(map[string]rate.Structure),
		associations: make(map[string]association.Association),
		forecasts:    make(map[string]forecast.Forecast),
	}
}

func (s *Store) nextIDLocked() string {
	id := s.nextID
	s.nextID++
	return fmt.Sprintf("%d", id)
}

// ProviderStore implementation ------------------------------------------------

func (s *Store) CreateProvider(_ context.Context, p provider.Provider) (provider.Provider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == "" {
		p.ID = s.nextIDLocked()
	} else if _, exists := s.providers[p.ID]; exists {
		return provider.Provider{}, fmt.Errorf("provider %s already exists", p.ID)
	}

	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	p.Metadata = cloneMap(p.Metadata)

	s.providers[p.ID] = p
	return cloneProvider(p), nil
}

func (s *Store) UpdateProvider(_ context.Context, p provider.Provider) (provider.Provider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.providers[p.ID]
	if !ok {
		return provider.Provider{}, fmt.Errorf("provider %s not found", p.ID)
	}

	p.CreatedAt = original.CreatedAt
	p.UpdatedAt = time.Now().UTC()
	p.Metadata = cloneMap(p.Metadata)

	s.providers[p.ID] = p
	return cloneProvider(p), nil
}

func (s *Store) GetProvider(_ context.Context, id string) (provider.Provider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.providers[id]
	if !ok {
		return provider.Provider{}, fmt.Errorf("provider %s not found", id)
	}
	return cloneProvider(p), nil
}

func (s *Store) ListProviders(_ context.Context) ([]provider.Provider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]provider.Provider, 0, len(s.providers))
	for _, p := range s.providers {
		result = append(result, cloneProvider(p))
	}
	sortByCreated(result, func(p provider.Provider) time.Time { return p.CreatedAt })
	return result, nil
}

func (s *Store) DeleteProvider(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.providers[id]; !ok {
		return fmt.Errorf("provider %s not found", id)
	}
	delete(s.providers, id)
	return nil
}

// RateStore implementation ----------------------------------------------------

func (s *Store) CreateRateStructure(_ context.Context, rs rate.Structure) (rate.Structure, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rs.ID == "" {
		rs.ID = s.nextIDLocked()
	} else if _, exists := s.rates[rs.ID]; exists {
		return rate.Structure{}, fmt.Errorf("rate structure %s already exists", rs.ID)
	}

	now := time.Now().UTC()
	rs.CreatedAt = now
	rs.UpdatedAt = now

	s.rates[rs.ID] = cloneStructure(rs)
	return cloneStructure(rs), nil
}

func (s *Store) UpdateRateStructure(_ context.Context, rs rate.Structure) (rate.Structure, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.rates[rs.ID]
	if !ok {
		return rate.Structure{}, fmt.Errorf("rate structure %s not found", rs.ID)
	}

	rs.ProviderID = original.ProviderID
	rs.CreatedAt = original.CreatedAt
	rs.UpdatedAt = time.Now().UTC()

	s.rates[rs.ID] = cloneStructure(rs)
	return cloneStructure(rs), nil
}

func (s *Store) GetRateStructure(_ context.Context, id string) (rate.Structure, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rs, ok := s.rates[id]
	if !ok {
		return rate.Structure{}, fmt.Errorf("rate structure %s not found", id)
	}
	return cloneStructure(rs), nil
}

func (s *Store) ListRateStructures(_ context.Context, providerID string) ([]rate.Structure, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []rate.Structure
	for _, rs := range s.rates {
		if providerID == "" || rs.ProviderID == providerID {
			result = append(result, cloneStructure(rs))
		}
	}
	sortByCreated(result, func(rs rate.Structure) time.Time { return rs.CreatedAt })
	return result, nil
}

func (s *Store) DeleteRateStructure(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rates[id]; !ok {
		return fmt.Errorf("rate structure %s not found", id)
	}
	delete(s.rates, id)
	return nil
}

// AssociationStore implementation ---------------------------------------------

func (s *Store) CreateAssociation(_ context.Context, a association.Association) (association.Association, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.ID == "" {
		a.ID = s.nextIDLocked()
	} else if _, exists := s.associations[a.ID]; exists {
		return association.Association{}, fmt.Errorf("association %s already exists", a.ID)
	}

	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now

	s.associations[a.ID] = a
	return a, nil
}

func (s *Store) GetAssociation(_ context.Context, id string) (association.Association, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.associations[id]
	if !ok {
		return association.Association{}, fmt.Errorf("association %s not found", id)
	}
	return a, nil
}

func (s *Store) ListAssociationsByUser(_ context.Context, userID string) ([]association.Association, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []association.Association
	for _, a := range s.associations {
		if a.UserID == userID {
			result = append(result, a)
		}
	}
	sortByCreated(result, func(a association.Association) time.Time { return a.CreatedAt })
	return result, nil
}

func (s *Store) ListAssociationsByProvider(_ context.Context, providerID string) ([]association.Association, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []association.Association
	for _, a := range s.associations {
		if a.ProviderID == providerID {
			result = append(result, a)
		}
	}
	sortByCreated(result, func(a association.Association) time.Time { return a.CreatedAt })
	return result, nil
}

func (s *Store) DeleteAssociation(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.associations[id]; !ok {
		return fmt.Errorf("association %s not found", id)
	}
	delete(s.associations, id)
	return nil
}

// ForecastStore implementation ------------------------------------------------

func (s *Store) CreateForecast(_ context.Context, f forecast.Forecast) (forecast.Forecast, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if f.ID == "" {
		f.ID = s.nextIDLocked()
	} else if _, exists := s.forecasts[f.ID]; exists {
		return forecast.Forecast{}, fmt.Errorf("forecast %s already exists", f.ID)
	}

	now := time.Now().UTC()
	f.CreatedAt = now
	f.UpdatedAt = now

	s.forecasts[f.ID] = f
	return f, nil
}

func (s *Store) UpdateForecast(_ context.Context, f forecast.Forecast) (forecast.Forecast, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.forecasts[f.ID]
	if !ok {
		return forecast.Forecast{}, fmt.Errorf("forecast %s not found", f.ID)
	}

	f.UserID = original.UserID
	f.AssociationID = original.AssociationID
	f.CreatedAt = original.CreatedAt
	f.UpdatedAt = time.Now().UTC()

	s.forecasts[f.ID] = f
	return f, nil
}

func (s *Store) GetForecast(_ context.Context, id string) (forecast.Forecast, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.forecasts[id]
	if !ok {
		return forecast.Forecast{}, fmt.Errorf("forecast %s not found", id)
	}
	return f, nil
}

func (s *Store) ListForecastsByUser(_ context.Context, userID string) ([]forecast.Forecast, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []forecast.Forecast
	for _, f := range s.forecasts {
		if f.UserID == userID {
			result = append(result, f)
		}
	}
	// most recent computation first, matching the SQL store
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].ComputedAt.After(result[j].ComputedAt)
	})
	return result, nil
}

func (s *Store) ListForecasts(_ context.Context) ([]forecast.Forecast, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]forecast.Forecast, 0, len(s.forecasts))
	for _, f := range s.forecasts {
		result = append(result, f)
	}
	sortByCreated(result, func(f forecast.Forecast) time.Time { return f.CreatedAt })
	return result, nil
}

// helpers ---------------------------------------------------------------------

func cloneMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneProvider(p provider.Provider) provider.Provider {
	p.Metadata = cloneMap(p.Metadata)
	return p
}

func cloneStructure(rs rate.Structure) rate.Structure {
	if rs.Tiers != nil {
		tiers := make([]rate.Tier, len(rs.Tiers))
		copy(tiers, rs.Tiers)
		rs.Tiers = tiers
	}
	if rs.TimeOfUse != nil {
		tou := make([]rate.TOUPeriod, len(rs.TimeOfUse))
		copy(tou, rs.TimeOfUse)
		rs.TimeOfUse = tou
	}
	return rs
}

func sortByCreated[T any](items []T, created func(T) time.Time) {
	sort.SliceStable(items, func(i, j int) bool {
		return created(items[i]).Before(created(items[j]))
	})
}
