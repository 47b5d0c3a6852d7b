package association

import "time"

// Association links an authenticated user to a utility provider account.
type Association struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	ProviderID    string    `json:"provider_id"`
	AccountNumber string    `json:"account_number"`
	Nickname      string    `json:"nickname,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
