// Package forecast defines cost forecast records and their inputs.
package forecast

import "time"

// UsageSample is one metered consumption reading.
type UsageSample struct {
	Timestamp time.Time `json:"timestamp"`
	KWh       float64   `json:"kwh"`
}

// Forecast is a projected billing-period cost for one provider association.
type Forecast struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	AssociationID   string    `json:"association_id"`
	ProviderID      string    `json:"provider_id"`
	RateStructureID string    `json:"rate_structure_id"`
	PeriodStart     time.Time `json:"period_start"`
	PeriodEnd       time.Time `json:"period_end"`
	ProjectedKWh    float64   `json:"projected_kwh"`
	EstimatedCost   float64   `json:"estimated_cost"`
	Currency        string    `json:"currency"`
	ComputedAt      time.Time `json:"computed_at"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}
