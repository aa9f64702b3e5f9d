// Package store persists orders, tickets and events through PocketBase
// collections. Uniqueness is enforced by the collection indexes, so this
// layer only has to translate constraint violations into the sentinel errors
// the services act on.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"eventpass/internal/status"
	"eventpass/models"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
)

const (
	collectionEvents  = "events"
	collectionOrders  = "orders"
	collectionTickets = "tickets"
	collectionUsers   = "users"
)

type PB struct {
	app core.App
}

func NewPB(app core.App) *PB {
	return &PB{app: app}
}

func (s *PB) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	record, err := s.app.FindRecordById(collectionEvents, id)
	if err != nil {
		return nil, notFoundOr(err, "event")
	}
	return recordToEvent(record), nil
}

func (s *PB) GetUser(ctx context.Context, id string) (*models.User, error) {
	record, err := s.app.FindRecordById(collectionUsers, id)
	if err != nil {
		return nil, notFoundOr(err, "user")
	}
	return &models.User{
		ID:            record.Id,
		Email:         record.GetString("email"),
		WalletAddress: record.GetString("wallet_address"),
	}, nil
}

func (s *PB) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	record, err := s.app.FindRecordById(collectionOrders, id)
	if err != nil {
		return nil, notFoundOr(err, "order")
	}
	return recordToOrder(record), nil
}

func (s *PB) CreateOrder(ctx context.Context, o *models.Order) error {
	collection, err := s.app.FindCollectionByNameOrId(collectionOrders)
	if err != nil {
		return fmt.Errorf("CreateOrder: %w", err)
	}
	record := core.NewRecord(collection)
	record.Set("event", o.EventID)
	record.Set("buyer", o.BuyerID)
	record.Set("amount_base_units", o.AmountBaseUnits)
	record.Set("status", o.Status)
	record.Set("tx_hash", o.TxHash)
	if err := s.app.Save(record); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("CreateOrder: %w", status.ErrConflict)
		}
		return fmt.Errorf("CreateOrder: %w", err)
	}
	o.ID = record.Id
	o.CreatedAt = record.GetDateTime("created").Time()
	o.UpdatedAt = record.GetDateTime("updated").Time()
	return nil
}

func (s *PB) UpdateOrderTxHash(ctx context.Context, orderID, txHash string) error {
	record, err := s.app.FindRecordById(collectionOrders, orderID)
	if err != nil {
		return notFoundOr(err, "order")
	}
	record.Set("tx_hash", txHash)
	if err := s.app.Save(record); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("UpdateOrderTxHash: %w", status.ErrConflict)
		}
		return fmt.Errorf("UpdateOrderTxHash: %w", err)
	}
	return nil
}

// MarkOrderPaid is a conditional update so that out of many concurrent
// verifiers exactly one observes the pending to paid transition.
func (s *PB) MarkOrderPaid(ctx context.Context, orderID string) (bool, error) {
	res, err := s.app.DB().NewQuery(
		"UPDATE orders SET status = {:paid}, updated = strftime('%Y-%m-%d %H:%M:%fZ') WHERE id = {:id} AND status = {:pending}",
	).Bind(dbx.Params{
		"paid":    models.OrderStatusPaid,
		"pending": models.OrderStatusPendingVerification,
		"id":      orderID,
	}).WithContext(ctx).Execute()
	if err != nil {
		return false, fmt.Errorf("MarkOrderPaid: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("MarkOrderPaid: %w", err)
	}
	return affected > 0, nil
}

func (s *PB) FindOrderByTxHash(ctx context.Context, txHash string) (*models.Order, error) {
	record, err := s.app.FindFirstRecordByFilter(collectionOrders,
		"tx_hash = {:hash} && tx_hash != ''", dbx.Params{"hash": txHash})
	if err != nil {
		return nilIfMissingOrder(err)
	}
	return recordToOrder(record), nil
}

func (s *PB) FindOrderForBuyer(ctx context.Context, eventID, buyerID string) (*models.Order, error) {
	record, err := s.app.FindFirstRecordByFilter(collectionOrders,
		"event = {:event} && buyer = {:buyer}", dbx.Params{"event": eventID, "buyer": buyerID})
	if err != nil {
		return nilIfMissingOrder(err)
	}
	return recordToOrder(record), nil
}

func (s *PB) ListPendingOrders(ctx context.Context) ([]*models.Order, error) {
	records, err := s.app.FindRecordsByFilter(collectionOrders,
		"status = {:status}", "created", 0, 0,
		dbx.Params{"status": models.OrderStatusPendingVerification})
	if err != nil {
		return nil, fmt.Errorf("ListPendingOrders: %w", err)
	}
	return recordsToOrders(records), nil
}

func (s *PB) CreateTicket(ctx context.Context, t *models.Ticket) error {
	collection, err := s.app.FindCollectionByNameOrId(collectionTickets)
	if err != nil {
		return fmt.Errorf("CreateTicket: %w", err)
	}
	record := core.NewRecord(collection)
	record.Set("event", t.EventID)
	record.Set("buyer", t.BuyerID)
	record.Set("order", t.OrderID)
	record.Set("code", t.Code)
	if err := s.app.Save(record); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("CreateTicket: %w", status.ErrTicketExists)
		}
		return fmt.Errorf("CreateTicket: %w", err)
	}
	t.ID = record.Id
	t.CreatedAt = record.GetDateTime("created").Time()
	return nil
}

func (s *PB) FindTicketByOrder(ctx context.Context, orderID string) (*models.Ticket, error) {
	record, err := s.app.FindFirstRecordByFilter(collectionTickets,
		"order = {:order}", dbx.Params{"order": orderID})
	if err != nil {
		return nilIfMissingTicket(err)
	}
	return recordToTicket(record), nil
}

func (s *PB) FindTicketForBuyer(ctx context.Context, eventID, buyerID string) (*models.Ticket, error) {
	record, err := s.app.FindFirstRecordByFilter(collectionTickets,
		"event = {:event} && buyer = {:buyer}", dbx.Params{"event": eventID, "buyer": buyerID})
	if err != nil {
		return nilIfMissingTicket(err)
	}
	return recordToTicket(record), nil
}

func (s *PB) FindTicketByCode(ctx context.Context, code string) (*models.Ticket, error) {
	record, err := s.app.FindFirstRecordByFilter(collectionTickets,
		"code = {:code}", dbx.Params{"code": code})
	if err != nil {
		return nilIfMissingTicket(err)
	}
	return recordToTicket(record), nil
}

func (s *PB) SetCheckedIn(ctx context.Context, ticketID string, at time.Time) error {
	record, err := s.app.FindRecordById(collectionTickets, ticketID)
	if err != nil {
		return notFoundOr(err, "ticket")
	}
	record.Set("checked_in_at", at.UTC().Format(time.RFC3339))
	if err := s.app.Save(record); err != nil {
		return fmt.Errorf("SetCheckedIn: %w", err)
	}
	return nil
}

func recordToEvent(r *core.Record) *models.Event {
	return &models.Event{
		ID:            r.Id,
		Title:         r.GetString("title"),
		Description:   r.GetString("description"),
		Venue:         r.GetString("venue"),
		StartsAt:      r.GetDateTime("starts_at").Time(),
		PriceCents:    r.GetInt("price_cents"),
		Currency:      r.GetString("currency"),
		PayoutAddress: r.GetString("payout_address"),
		OrganizerID:   r.GetString("organizer"),
		Status:        r.GetString("status"),
	}
}

func recordToOrder(r *core.Record) *models.Order {
	return &models.Order{
		ID:              r.Id,
		EventID:         r.GetString("event"),
		BuyerID:         r.GetString("buyer"),
		AmountBaseUnits: int64(r.GetFloat("amount_base_units")),
		Status:          r.GetString("status"),
		TxHash:          r.GetString("tx_hash"),
		CreatedAt:       r.GetDateTime("created").Time(),
		UpdatedAt:       r.GetDateTime("updated").Time(),
	}
}

func recordsToOrders(records []*core.Record) []*models.Order {
	orders := make([]*models.Order, 0, len(records))
	for _, r := range records {
		orders = append(orders, recordToOrder(r))
	}
	return orders
}

func recordToTicket(r *core.Record) *models.Ticket {
	ticket := &models.Ticket{
		ID:        r.Id,
		EventID:   r.GetString("event"),
		BuyerID:   r.GetString("buyer"),
		OrderID:   r.GetString("order"),
		Code:      r.GetString("code"),
		CreatedAt: r.GetDateTime("created").Time(),
	}
	if checkedIn := r.GetDateTime("checked_in_at"); !checkedIn.IsZero() {
		at := checkedIn.Time()
		ticket.CheckedInAt = &at
	}
	return ticket
}

func notFoundOr(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, status.ErrNotFound)
	}
	return err
}

func nilIfMissingOrder(err error) (*models.Order, error) {
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return nil, err
}

func nilIfMissingTicket(err error) (*models.Ticket, error) {
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return nil, err
}

// isUniqueViolation matches both SQLite's raw constraint error and the
// validation error PocketBase raises for unique index fields.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "must be unique") ||
		strings.Contains(msg, "value already exists")
}
