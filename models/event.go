package models

import (
	"time"
)

type Event struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	Venue         string    `json:"venue"`
	StartsAt      time.Time `json:"starts_at"`
	PriceCents    int       `json:"price_cents"` // 0 means free
	Currency      string    `json:"currency"`
	PayoutAddress string    `json:"payout_address"`
	OrganizerID   string    `json:"organizer_id"`
	Status        string    `json:"status"` // draft, published, ended
}

// Free reports whether the event bypasses payment verification.
func (e *Event) Free() bool {
	return e.PriceCents <= 0
}
