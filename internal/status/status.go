package status

import "errors"

// Error taxonomy shared by the services and handlers. Handlers map these to
// HTTP responses; services wrap them with context via fmt.Errorf("...: %w", err).
var (
	// ErrValidation covers malformed input, free/paid mismatches, missing
	// payout addresses and insufficient claimed amounts. Never retried.
	ErrValidation = errors.New("validation failed")

	// ErrConflict marks a transaction hash already bound to another buyer.
	// Permanent rejection.
	ErrConflict = errors.New("payment already used")

	// ErrUnauthorized marks an action by a caller who is not allowed to
	// perform it (check-in by a non-organizer, sweep without the secret).
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotConfigured marks an optional feature whose configuration is
	// absent (credential signing key). Feature unavailable, not a fault.
	ErrNotConfigured = errors.New("not configured")

	// ErrExternalService marks an unreachable or malformed upstream (price
	// oracle, ledger RPC). Safe to retry; no partial state is left behind.
	ErrExternalService = errors.New("external service unavailable")

	// ErrTicketExists is returned by the store when a unique ticket
	// constraint rejects an insert. Callers treat it as "someone else won
	// the race" and adopt the existing ticket.
	ErrTicketExists = errors.New("ticket already exists")

	// ErrNotFound marks a missing record (event, ticket, checked-in ticket).
	ErrNotFound = errors.New("not found")
)
