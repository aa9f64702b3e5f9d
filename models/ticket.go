package models

import (
	"time"
)

// Ticket proves a successful purchase. Exactly one per paid order, at most
// one per (event, buyer) pair. CheckedInAt is set once and never cleared.
type Ticket struct {
	ID          string     `json:"id"`
	EventID     string     `json:"event_id"`
	BuyerID     string     `json:"buyer_id"`
	OrderID     string     `json:"order_id"`
	Code        string     `json:"code"`
	CheckedInAt *time.Time `json:"checked_in_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

func (t *Ticket) CheckedIn() bool {
	return t.CheckedInAt != nil && !t.CheckedInAt.IsZero()
}
