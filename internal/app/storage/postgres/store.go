// Package postgres implements the storage interfaces backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/gridwise/utility-rates/internal/app/domain/association"
	"github.com/gridwise/utility-rates/internal/app/domain/forecast"
	"github.com/gridwise/utility-rates/internal/app/domain/provider"
	"github.com/gridwise/utility-rates/internal/app/domain/rate"
	"github.com/gridwise/utility-rates/internal/app/storage"
)

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ storage.ProviderStore = (*Store)(nil)
var _ storage.RateStore = (*Store)(nil)
var _ storage.AssociationStore = (*Store)(nil)
var _ storage.ForecastStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// --- ProviderStore ----------------------------------------------------------

func (s *Store) CreateProvider(ctx context.Context, p provider.Provider) (provider.Provider, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	metadataJSON, err := json.Marshal(p.Metadata)
	if err != nil {
		return provider.Provider{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO utility_providers (id, name, region, website, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, p.ID, p.Name, p.Region, p.Website, metadataJSON, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return provider.Provider{}, err
	}
	return p, nil
}

func (s *Store) UpdateProvider(ctx context.Context, p provider.Provider) (provider.Provider, error) {
	existing, err := s.GetProvider(ctx, p.ID)
	if err != nil {
		return provider.Provider{}, err
	}

	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = time.Now().UTC()

	metadataJSON, err := json.Marshal(p.Metadata)
	if err != nil {
		return provider.Provider{}, err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE utility_providers
		SET name = $2, region = $3, website = $4, metadata = $5, updated_at = $6
		WHERE id = $1
	`, p.ID, p.Name, p.Region, p.Website, metadataJSON, p.UpdatedAt)
	if err != nil {
		return provider.Provider{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return provider.Provider{}, sql.ErrNoRows
	}
	return p, nil
}

func (s *Store) GetProvider(ctx context.Context, id string) (provider.Provider, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, region, website, metadata, created_at, updated_at
		FROM utility_providers
		WHERE id = $1
	`, id)
	return scanProvider(row)
}

func (s *Store) ListProviders(ctx context.Context) ([]provider.Provider, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, region, website, metadata, created_at, updated_at
		FROM utility_providers
		ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []provider.Provider
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func (s *Store) DeleteProvider(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM utility_providers WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProvider(row rowScanner) (provider.Provider, error) {
	var (
		p           provider.Provider
		metadataRaw []byte
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Region, &p.Website, &metadataRaw, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return provider.Provider{}, err
	}
	if len(metadataRaw) > 0 {
		_ = json.Unmarshal(metadataRaw, &p.Metadata)
	}
	return p, nil
}

// --- RateStore --------------------------------------------------------------

func (s *Store) CreateRateStructure(ctx context.Context, rs rate.Structure) (rate.Structure, error) {
	if rs.ID == "" {
		rs.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	rs.CreatedAt = now
	rs.UpdatedAt = now

	tiersJSON, err := json.Marshal(rs.Tiers)
	if err != nil {
		return rate.Structure{}, err
	}
	touJSON, err := json.Marshal(rs.TimeOfUse)
	if err != nil {
		return rate.Structure{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO rate_structures (id, provider_id, name, kind, currency, fixed_monthly_charge, price_per_kwh, tiers, time_of_use, effective_from, effective_until, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, rs.ID, rs.ProviderID, rs.Name, string(rs.Kind), rs.Currency, rs.FixedMonthlyCharge, rs.PricePerKWh, tiersJSON, touJSON, rs.EffectiveFrom, toNullTime(rs.EffectiveUntil), rs.Active, rs.CreatedAt, rs.UpdatedAt)
	if err != nil {
		return rate.Structure{}, err
	}
	return rs, nil
}

func (s *Store) UpdateRateStructure(ctx context.Context, rs rate.Structure) (rate.Structure, error) {
	existing, err := s.GetRateStructure(ctx, rs.ID)
	if err != nil {
		return rate.Structure{}, err
	}

	rs.ProviderID = existing.ProviderID
	rs.CreatedAt = existing.CreatedAt
	rs.UpdatedAt = time.Now().UTC()

	tiersJSON, err := json.Marshal(rs.Tiers)
	if err != nil {
		return rate.Structure{}, err
	}
	touJSON, err := json.Marshal(rs.TimeOfUse)
	if err != nil {
		return rate.Structure{}, err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE rate_structures
		SET name = $2, kind = $3, currency = $4, fixed_monthly_charge = $5, price_per_kwh = $6, tiers = $7, time_of_use = $8, effective_from = $9, effective_until = $10, active = $11, updated_at = $12
		WHERE id = $1
	`, rs.ID, rs.Name, string(rs.Kind), rs.Currency, rs.FixedMonthlyCharge, rs.PricePerKWh, tiersJSON, touJSON, rs.EffectiveFrom, toNullTime(rs.EffectiveUntil), rs.Active, rs.UpdatedAt)
	if err != nil {
		return rate.Structure{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return rate.Structure{}, sql.ErrNoRows
	}
	return rs, nil
}

func (s *Store) GetRateStructure(ctx context.Context, id string) (rate.Structure, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, provider_id, name, kind, currency, fixed_monthly_charge, price_per_kwh, tiers, time_of_use, effective_from, effective_until, active, created_at, updated_at
		FROM rate_structures
		WHERE id = $1
	`, id)
	return scanRateStructure(row)
}

func (s *Store) ListRateStructures(ctx context.Context, providerID string) ([]rate.Structure, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, provider_id, name, kind, currency, fixed_monthly_charge, price_per_kwh, tiers, time_of_use, effective_from, effective_until, active, created_at, updated_at
		FROM rate_structures
		WHERE $1 = '' OR provider_id = $1
		ORDER BY created_at
	`, providerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []rate.Structure
	for rows.Next() {
		rs, err := scanRateStructure(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rs)
	}
	return result, rows.Err()
}

func (s *Store) DeleteRateStructure(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM rate_structures WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func scanRateStructure(row rowScanner) (rate.Structure, error) {
	var (
		rs             rate.Structure
		kind           string
		tiersRaw       []byte
		touRaw         []byte
		effectiveUntil sql.NullTime
	)
	if err := row.Scan(&rs.ID, &rs.ProviderID, &rs.Name, &kind, &rs.Currency, &rs.FixedMonthlyCharge, &rs.PricePerKWh, &tiersRaw, &touRaw, &rs.EffectiveFrom, &effectiveUntil, &rs.Active, &rs.CreatedAt, &rs.UpdatedAt); err != nil {
		return rate.Structure{}, err
	}
	rs.Kind = rate.Kind(kind)
	if len(tiersRaw) > 0 {
		_ = json.Unmarshal(tiersRaw, &rs.Tiers)
	}
	if len(touRaw) > 0 {
		_ = json.Unmarshal(touRaw, &rs.TimeOfUse)
	}
	if effectiveUntil.Valid {
		rs.EffectiveUntil = effectiveUntil.Time.UTC()
	}
	return rs, nil
}

// --- AssociationStore -------------------------------------------------------

func (s *Store) CreateAssociation(ctx context.Context, a association.Association) (association.Association, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_provider_associations (id, user_id, provider_id, account_number, nickname, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, a.ID, a.UserID, a.ProviderID, a.AccountNumber, a.Nickname, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return association.Association{}, err
	}
	return a, nil
}

func (s *Store) GetAssociation(ctx context.Context, id string) (association.Association, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, provider_id, account_number, nickname, created_at, updated_at
		FROM user_provider_associations
		WHERE id = $1
	`, id)

	var a association.Association
	if err := row.Scan(&a.ID, &a.UserID, &a.ProviderID, &a.AccountNumber, &a.Nickname, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return association.Association{}, err
	}
	return a, nil
}

func (s *Store) ListAssociationsByUser(ctx context.Context, userID string) ([]association.Association, error) {
	return s.listAssociations(ctx, `
		SELECT id, user_id, provider_id, account_number, nickname, created_at, updated_at
		FROM user_provider_associations
		WHERE user_id = $1
		ORDER BY created_at
	`, userID)
}

func (s *Store) ListAssociationsByProvider(ctx context.Context, providerID string) ([]association.Association, error) {
	return s.listAssociations(ctx, `
		SELECT id, user_id, provider_id, account_number, nickname, created_at, updated_at
		FROM user_provider_associations
		WHERE provider_id = $1
		ORDER BY created_at
	`, providerID)
}

func (s *Store) listAssociations(ctx context.Context, query string, arg any) ([]association.Association, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []association.Association
	for rows.Next() {
		var a association.Association
		if err := rows.Scan(&a.ID, &a.UserID, &a.ProviderID, &a.AccountNumber, &a.Nickname, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

func (s *Store) DeleteAssociation(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM user_provider_associations WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// --- ForecastStore ----------------------------------------------------------

func (s *Store) CreateForecast(ctx context.Context, f forecast.Forecast) (forecast.Forecast, error) {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	f.CreatedAt = now
	f.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cost_forecasts (id, user_id, association_id, provider_id, rate_structure_id, period_start, period_end, projected_kwh, estimated_cost, currency, computed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, f.ID, f.UserID, f.AssociationID, f.ProviderID, f.RateStructureID, f.PeriodStart, f.PeriodEnd, f.ProjectedKWh, f.EstimatedCost, f.Currency, f.ComputedAt, f.CreatedAt, f.UpdatedAt)
	if err != nil {
		return forecast.Forecast{}, err
	}
	return f, nil
}

func (s *Store) UpdateForecast(ctx context.Context, f forecast.Forecast) (forecast.Forecast, error) {
	existing, err := s.GetForecast(ctx, f.ID)
	if err != nil {
		return forecast.Forecast{}, err
	}

	f.UserID = existing.UserID
	f.AssociationID = existing.AssociationID
	f.CreatedAt = existing.CreatedAt
	f.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE cost_forecasts
		SET provider_id = $2, rate_structure_id = $3, period_start = $4, period_end = $5, projected_kwh = $6, estimated_cost = $7, currency = $8, computed_at = $9, updated_at = $10
		WHERE id = $1
	`, f.ID, f.ProviderID, f.RateStructureID, f.PeriodStart, f.PeriodEnd, f.ProjectedKWh, f.EstimatedCost, f.Currency, f.ComputedAt, f.UpdatedAt)
	if err != nil {
		return forecast.Forecast{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return forecast.Forecast{}, sql.ErrNoRows
	}
	return f, nil
}

func (s *Store) GetForecast(ctx context.Context, id string) (forecast.Forecast, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, association_id, provider_id, rate_structure_id, period_start, period_end, projected_kwh, estimated_cost, currency, computed_at, created_at, updated_at
		FROM cost_forecasts
		WHERE id = $1
	`, id)
	return scanForecast(row)
}

func (s *Store) ListForecastsByUser(ctx context.Context, userID string) ([]forecast.Forecast, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, association_id, provider_id, rate_structure_id, period_start, period_end, projected_kwh, estimated_cost, currency, computed_at, created_at, updated_at
		FROM cost_forecasts
		WHERE user_id = $1
		ORDER BY computed_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectForecasts(rows)
}

func (s *Store) ListForecasts(ctx context.Context) ([]forecast.Forecast, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, association_id, provider_id, rate_structure_id, period_start, period_end, projected_kwh, estimated_cost, currency, computed_at, created_at, updated_at
		FROM cost_forecasts
		ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectForecasts(rows)
}

func scanForecast(row rowScanner) (forecast.Forecast, error) {
	var f forecast.Forecast
	if err := row.Scan(&f.ID, &f.UserID, &f.AssociationID, &f.ProviderID, &f.RateStructureID, &f.PeriodStart, &f.PeriodEnd, &f.ProjectedKWh, &f.EstimatedCost, &f.Currency, &f.ComputedAt, &f.CreatedAt, &f.UpdatedAt); err != nil {
		return forecast.Forecast{}, err
	}
	return f, nil
}

func collectForecasts(rows *sql.Rows) ([]forecast.Forecast, error) {
	var result []forecast.Forecast
	for rows.Next() {
		f, err := scanForecast(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, f)
	}
	return result, rows.Err()
}

func toNullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
