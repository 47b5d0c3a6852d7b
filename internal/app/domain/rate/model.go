// Package rate defines tariff structures published by utility providers.
package rate

import "time"

// Kind discriminates how a structure prices consumption.
type Kind string

const (
	KindFlat      Kind = "flat"
	KindTiered    Kind = "tiered"
	KindTimeOfUse Kind = "time_of_use"
)

// Tier prices consumption up to a kWh boundary. UpToKWh of zero marks the
// open-ended final tier.
type Tier struct {
	UpToKWh     float64 `json:"up_to_kwh"`
	PricePerKWh float64 `json:"price_per_kwh"`
}

// TOUPeriod prices consumption that falls inside a daily hour window.
// EndHour is exclusive; a window may wrap midnight (StartHour > EndHour).
type TOUPeriod struct {
	Label       string  `json:"label"`
	StartHour   int     `json:"start_hour"`
	EndHour     int     `json:"end_hour"`
	PricePerKWh float64 `json:"price_per_kwh"`
}

// Structure is a provider's published rate structure. Exactly one of
// PricePerKWh, Tiers or TimeOfUse carries pricing, selected by Kind.
type Structure struct {
	ID                 string      `json:"id"`
	ProviderID         string      `json:"provider_id"`
	Name               string      `json:"name"`
	Kind               Kind        `json:"kind"`
	Currency           string      `json:"currency"`
	FixedMonthlyCharge float64     `json:"fixed_monthly_charge"`
	PricePerKWh        float64     `json:"price_per_kwh,omitempty"`
	Tiers              []Tier      `json:"tiers,omitempty"`
	TimeOfUse          []TOUPeriod `json:"time_of_use,omitempty"`
	EffectiveFrom      time.Time   `json:"effective_from"`
	EffectiveUntil     time.Time   `json:"effective_until"`
	Active             bool        `json:"active"`
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`
}

// EffectiveAt reports whether the structure is active and covers the instant.
func (s Structure) EffectiveAt(at time.Time) bool {
	if !s.Active {
		return false
	}
	if !s.EffectiveFrom.IsZero() && at.Before(s.EffectiveFrom) {
		return false
	}
	if !s.EffectiveUntil.IsZero() && !at.Before(s.EffectiveUntil) {
		return false
	}
	return true
}

// UserRate is a resolved rate for one of a user's provider associations.
type UserRate struct {
	AssociationID string    `json:"association_id"`
	ProviderID    string    `json:"provider_id"`
	ProviderName  string    `json:"provider_name"`
	Structure     Structure `json:"structure"`
	ResolvedAt    time.Time `json:"resolved_at"`
}
