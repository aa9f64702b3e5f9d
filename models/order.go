package models

import (
	"time"
)

const (
	OrderStatusPendingVerification = "pending_verification"
	OrderStatusPaid                = "paid"
)

// Order is a single purchase attempt. TxHash is empty until the buyer
// submits a payment and globally unique once set; the only allowed status
// transition is pending_verification -> paid.
type Order struct {
	ID              string    `json:"id"`
	EventID         string    `json:"event_id"`
	BuyerID         string    `json:"buyer_id"`
	AmountBaseUnits int64     `json:"amount_base_units"`
	Status          string    `json:"status"`
	TxHash          string    `json:"tx_hash,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}
