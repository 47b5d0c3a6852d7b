package provider

import "time"

// Provider represents a utility company whose tariffs the service tracks.
type Provider struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Region    string            `json:"region,omitempty"`
	Website   string            `json:"website,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}
