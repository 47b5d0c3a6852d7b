// Package providers manages utility provider records.
package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gridwise/utility-rates/internal/app/domain/provider"
	"github.com/gridwise/utility-rates/internal/app/storage"
	"github.com/gridwise/utility-rates/pkg/logger"
)

// ErrNameTaken is returned when a provider with the same name already exists.
var ErrNameTaken = errors.New("provider name already in use")

// ErrProviderInUse is returned when deletion is blocked by dependent records.
var ErrProviderInUse = errors.New("provider has dependent rate structures or associations")

// Service manages utility providers.
type Service struct {
	store        storage.ProviderStore
	rates        storage.RateStore
	associations storage.AssociationStore
	log          *logger.Logger
}

// New constructs a provider service. The rate and association stores guard
// deletion; either may be nil, which skips the corresponding check.
func New(store storage.ProviderStore, rates storage.RateStore, associations storage.AssociationStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("providers")
	}
	return &Service{store: store, rates: rates, associations: associations, log: log}
}

// Create registers a new utility provider. Names are unique
// case-insensitively.
func (s *Service) Create(ctx context.Context, p provider.Provider) (provider.Provider, error) {
	p.Name = strings.TrimSpace(p.Name)
	p.Region = strings.TrimSpace(p.Region)
	p.Website = strings.TrimSpace(p.Website)

	if p.Name == "" {
		return provider.Provider{}, fmt.Errorf("name is required")
	}

	if err := s.ensureNameAvailable(ctx, p.Name, ""); err != nil {
		return provider.Provider{}, err
	}

	created, err := s.store.CreateProvider(ctx, p)
	if err != nil {
		return provider.Provider{}, err
	}
	s.log.WithField("provider_id", created.ID).
		WithField("name", created.Name).
		Info("provider created")
	return created, nil
}

// Update overwrites mutable fields of a provider. Empty fields keep their
// current value.
func (s *Service) Update(ctx context.Context, p provider.Provider) (provider.Provider, error) {
	existing, err := s.store.GetProvider(ctx, p.ID)
	if err != nil {
		return provider.Provider{}, err
	}

	if strings.TrimSpace(p.Name) == "" {
		p.Name = existing.Name
	} else {
		p.Name = strings.TrimSpace(p.Name)
		if err := s.ensureNameAvailable(ctx, p.Name, p.ID); err != nil {
			return provider.Provider{}, err
		}
	}
	if p.Region == "" {
		p.Region = existing.Region
	}
	if p.Website == "" {
		p.Website = existing.Website
	}
	if p.Metadata == nil {
		p.Metadata = existing.Metadata
	}

	updated, err := s.store.UpdateProvider(ctx, p)
	if err != nil {
		return provider.Provider{}, err
	}
	s.log.WithField("provider_id", p.ID).Info("provider updated")
	return updated, nil
}

// Get retrieves a provider by identifier.
func (s *Service) Get(ctx context.Context, id string) (provider.Provider, error) {
	return s.store.GetProvider(ctx, id)
}

// List returns all providers.
func (s *Service) List(ctx context.Context) ([]provider.Provider, error) {
	return s.store.ListProviders(ctx)
}

// Delete removes a provider. Deletion is refused while rate structures or
// user associations still reference it.
func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := s.store.GetProvider(ctx, id); err != nil {
		return err
	}

	if s.rates != nil {
		structures, err := s.rates.ListRateStructures(ctx, id)
		if err != nil {
			return err
		}
		if len(structures) > 0 {
			return fmt.Errorf("delete provider %s: %w", id, ErrProviderInUse)
		}
	}
	if s.associations != nil {
		assocs, err := s.associations.ListAssociationsByProvider(ctx, id)
		if err != nil {
			return err
		}
		if len(assocs) > 0 {
			return fmt.Errorf("delete provider %s: %w", id, ErrProviderInUse)
		}
	}

	if err := s.store.DeleteProvider(ctx, id); err != nil {
		return err
	}
	s.log.WithField("provider_id", id).Info("provider deleted")
	return nil
}

func (s *Service) ensureNameAvailable(ctx context.Context, name, excludeID string) error {
	existing, err := s.store.ListProviders(ctx)
	if err != nil {
		return err
	}
	for _, p := range existing {
		if p.ID != excludeID && strings.EqualFold(p.Name, name) {
			return fmt.Errorf("provider %q: %w", name, ErrNameTaken)
		}
	}
	return nil
}
