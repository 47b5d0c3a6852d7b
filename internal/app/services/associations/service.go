// Package associations links authenticated users to utility provider
// accounts.
package associations

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gridwise/utility-rates/internal/app/domain/association"
	"github.com/gridwise/utility-rates/internal/app/storage"
	"github.com/gridwise/utility-rates/pkg/logger"
)

// ErrDuplicate is returned when the user already has an association with the
// provider.
var ErrDuplicate = errors.New("user already associated with provider")

// ErrNotOwner is returned when a user addresses an association they do not
// own.
var ErrNotOwner = errors.New("association not owned by user")

// Invalidator receives cache invalidation signals when a user's associations
// change.
type Invalidator interface {
	InvalidateUser(ctx context.Context, userID string)
}

// Service manages user-provider associations.
type Service struct {
	providers   storage.ProviderStore
	store       storage.AssociationStore
	invalidator Invalidator
	log         *logger.Logger
}

// New constructs an association service.
func New(providers storage.ProviderStore, store storage.AssociationStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("associations")
	}
	return &Service{providers: providers, store: store, log: log}
}

// AttachInvalidator wires the user-rates cache invalidation hook.
func (s *Service) AttachInvalidator(inv Invalidator) {
	s.invalidator = inv
}

// Create links a user to a provider account. A user may hold at most one
// association per provider.
func (s *Service) Create(ctx context.Context, userID, providerID, accountNumber, nickname string) (association.Association, error) {
	userID = strings.TrimSpace(userID)
	providerID = strings.TrimSpace(providerID)
	accountNumber = strings.TrimSpace(accountNumber)

	if userID == "" {
		return association.Association{}, fmt.Errorf("user id is required")
	}
	if providerID == "" {
		return association.Association{}, fmt.Errorf("provider_id is required")
	}
	if accountNumber == "" {
		return association.Association{}, fmt.Errorf("account_number is required")
	}

	if s.providers != nil {
		if _, err := s.providers.GetProvider(ctx, providerID); err != nil {
			return association.Association{}, fmt.Errorf("provider validation failed: %w", err)
		}
	}

	existing, err := s.store.ListAssociationsByUser(ctx, userID)
	if err != nil {
		return association.Association{}, err
	}
	for _, a := range existing {
		if a.ProviderID == providerID {
			return association.Association{}, fmt.Errorf("provider %s: %w", providerID, ErrDuplicate)
		}
	}

	created, err := s.store.CreateAssociation(ctx, association.Association{
		UserID:        userID,
		ProviderID:    providerID,
		AccountNumber: accountNumber,
		Nickname:      strings.TrimSpace(nickname),
	})
	if err != nil {
		return association.Association{}, err
	}

	if s.invalidator != nil {
		s.invalidator.InvalidateUser(ctx, userID)
	}
	s.log.WithField("association_id", created.ID).
		WithField("user_id", userID).
		WithField("provider_id", providerID).
		Info("association created")
	return created, nil
}

// Get retrieves an association, enforcing ownership.
func (s *Service) Get(ctx context.Context, userID, id string) (association.Association, error) {
	a, err := s.store.GetAssociation(ctx, id)
	if err != nil {
		return association.Association{}, err
	}
	if a.UserID != userID {
		return association.Association{}, fmt.Errorf("association %s: %w", id, ErrNotOwner)
	}
	return a, nil
}

// ListForUser returns the user's associations.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]association.Association, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	return s.store.ListAssociationsByUser(ctx, userID)
}

// Delete removes an association owned by the user.
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return err
	}
	if err := s.store.DeleteAssociation(ctx, id); err != nil {
		return err
	}
	if s.invalidator != nil {
		s.invalidator.InvalidateUser(ctx, userID)
	}
	s.log.WithField("association_id", id).
		WithField("user_id", userID).
		Info("association deleted")
	return nil
}
