package models

// AttendancePayload is the claim set of a signed attendance credential.
// Derived on demand from a checked-in ticket, never persisted.
type AttendancePayload struct {
	Subject     string `json:"sub"` // wallet address when available, else user id
	EventID     string `json:"event_id"`
	EventTitle  string `json:"event_title"`
	CheckedInAt string `json:"checked_in_at"` // RFC 3339
	Issuer      string `json:"iss"`
	IssuedAt    int64  `json:"iat"` // unix seconds
}
