package services

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"eventpass/internal/services/ledger"
	"eventpass/internal/status"
	"eventpass/models"
	"eventpass/monitoring"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// Trigger labels for verification attempts, used in logs and metrics.
const (
	TriggerSubmit = "submit"
	TriggerViewer = "viewer"
	TriggerSweep  = "sweep"
)

const sweepLockKey = "reconcile:sweep:lock"
const sweepLockTTL = 60 * time.Second

// Store is the persistence surface the reconciliation engine needs. The
// PocketBase-backed implementation lives in internal/store; tests swap in an
// in-memory fake.
//
// Get* methods return status.ErrNotFound for missing rows. Find* methods
// return (nil, nil) when no row matches.
type Store interface {
	GetEvent(ctx context.Context, id string) (*models.Event, error)
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetOrder(ctx context.Context, id string) (*models.Order, error)

	// CreateOrder persists a new order and fills in its ID. A unique index
	// violation (tx hash or event/buyer pair taken) maps to status.ErrConflict.
	CreateOrder(ctx context.Context, o *models.Order) error
	UpdateOrderTxHash(ctx context.Context, orderID, txHash string) error

	// MarkOrderPaid flips a pending order to paid. It reports false when the
	// order was not in pending state, so concurrent verifiers race safely.
	MarkOrderPaid(ctx context.Context, orderID string) (bool, error)

	FindOrderByTxHash(ctx context.Context, txHash string) (*models.Order, error)
	FindOrderForBuyer(ctx context.Context, eventID, buyerID string) (*models.Order, error)
	ListPendingOrders(ctx context.Context) ([]*models.Order, error)

	// CreateTicket persists a new ticket. Any unique index violation (code,
	// order, or event/buyer pair) maps to status.ErrTicketExists.
	CreateTicket(ctx context.Context, t *models.Ticket) error
	FindTicketByOrder(ctx context.Context, orderID string) (*models.Ticket, error)
	FindTicketForBuyer(ctx context.Context, eventID, buyerID string) (*models.Ticket, error)
	FindTicketByCode(ctx context.Context, code string) (*models.Ticket, error)
	SetCheckedIn(ctx context.Context, ticketID string, at time.Time) error
}

// PriceOracle converts an event's fiat price into the minimum number of
// ledger base units a payment must carry.
type PriceOracle interface {
	MinimumRequiredAmount(ctx context.Context, priceMinorUnits int, currency string) (int64, error)
}

// LedgerVerifier answers whether a transaction pays a recipient condition.
type LedgerVerifier interface {
	ResolveRecipientCondition(address string) (ledger.LockScript, error)
	VerifyPayment(ctx context.Context, txHash string, recipient ledger.LockScript, minAmount int64) bool
}

// SweepResult summarizes one pass over pending orders.
type SweepResult struct {
	Checked  int `json:"checked"`
	Verified int `json:"verified"`
}

// PaymentState is the buyer-facing view of an order after reconciliation.
type PaymentState struct {
	OrderID string         `json:"order_id"`
	Status  string         `json:"status"`
	TxHash  string         `json:"tx_hash,omitempty"`
	Ticket  *models.Ticket `json:"ticket,omitempty"`
}

type ReconcileService struct {
	store     Store
	oracle    PriceOracle
	ledger    LedgerVerifier
	tickets   *TicketService
	redis     *redis.Client
	tolerance decimal.Decimal
}

func NewReconcileService(store Store, oracle PriceOracle, verifier LedgerVerifier, tickets *TicketService, redisClient *redis.Client, tolerance decimal.Decimal) *ReconcileService {
	return &ReconcileService{
		store:     store,
		oracle:    oracle,
		ledger:    verifier,
		tickets:   tickets,
		redis:     redisClient,
		tolerance: tolerance,
	}
}

// RegisterFree issues a ticket for a free event without any payment flow.
// Calling it twice for the same buyer returns the same ticket.
func (s *ReconcileService) RegisterFree(ctx context.Context, eventID, buyerID string) (*models.Ticket, error) {
	event, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("RegisterFree: %w", err)
	}
	if !event.Free() {
		return nil, fmt.Errorf("RegisterFree: event requires payment: %w", status.ErrValidation)
	}
	if _, err := s.store.GetUser(ctx, buyerID); err != nil {
		return nil, fmt.Errorf("RegisterFree: %w", err)
	}

	if existing, err := s.store.FindTicketForBuyer(ctx, eventID, buyerID); err != nil {
		return nil, fmt.Errorf("RegisterFree: %w", err)
	} else if existing != nil {
		return existing, nil
	}

	order, err := s.ensureFreeOrder(ctx, eventID, buyerID)
	if err != nil {
		return nil, fmt.Errorf("RegisterFree: %w", err)
	}

	ticket, err := s.tickets.Issue(ctx, event, order)
	if err != nil {
		return nil, fmt.Errorf("RegisterFree: %w", err)
	}
	return ticket, nil
}

func (s *ReconcileService) ensureFreeOrder(ctx context.Context, eventID, buyerID string) (*models.Order, error) {
	order := &models.Order{
		EventID: eventID,
		BuyerID: buyerID,
		Status:  models.OrderStatusPaid,
	}
	err := s.store.CreateOrder(ctx, order)
	if err == nil {
		return order, nil
	}
	if !errors.Is(err, status.ErrConflict) {
		return nil, err
	}
	// Lost the race to another registration for the same buyer.
	existing, ferr := s.store.FindOrderForBuyer(ctx, eventID, buyerID)
	if ferr != nil {
		return nil, ferr
	}
	if existing == nil {
		return nil, err
	}
	return existing, nil
}

// ConfirmPayment records the buyer's claimed transaction against an event
// and immediately attempts verification. claimedAmount is what the buyer
// says the transaction pays, in ledger base units; it must cover the current
// minimum within the tolerance factor. Safe to call repeatedly with the same
// hash.
func (s *ReconcileService) ConfirmPayment(ctx context.Context, eventID, buyerID, txHash string, claimedAmount int64) (*PaymentState, error) {
	hash, err := NormalizeTxHash(txHash)
	if err != nil {
		return nil, fmt.Errorf("ConfirmPayment: %w", err)
	}

	event, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("ConfirmPayment: %w", err)
	}
	if event.Free() {
		return nil, fmt.Errorf("ConfirmPayment: event is free, use registration: %w", status.ErrValidation)
	}
	if event.PayoutAddress == "" {
		return nil, fmt.Errorf("ConfirmPayment: event has no payout address: %w", status.ErrValidation)
	}
	if _, err := s.store.GetUser(ctx, buyerID); err != nil {
		return nil, fmt.Errorf("ConfirmPayment: %w", err)
	}

	order, err := s.claimOrder(ctx, event, buyerID, hash, claimedAmount)
	if err != nil {
		return nil, fmt.Errorf("ConfirmPayment: %w", err)
	}

	if err := s.attemptVerification(ctx, order, event, TriggerSubmit); err != nil {
		slog.Warn("verification attempt failed", "order_id", order.ID, "error", err)
	}
	return s.stateFor(ctx, order.ID)
}

// claimOrder binds the tx hash to an order for this buyer, enforcing that a
// hash can only ever belong to one order and that a buyer never ends up with
// two tickets for the same event.
func (s *ReconcileService) claimOrder(ctx context.Context, event *models.Event, buyerID, hash string, claimedAmount int64) (*models.Order, error) {
	if byHash, err := s.store.FindOrderByTxHash(ctx, hash); err != nil {
		return nil, err
	} else if byHash != nil {
		if byHash.BuyerID != buyerID || byHash.EventID != event.ID {
			return nil, fmt.Errorf("transaction already claimed by another order: %w", status.ErrConflict)
		}
		return byHash, nil
	}

	// A buyer who already holds a ticket gets it back regardless of the
	// submitted hash.
	if ticket, err := s.store.FindTicketForBuyer(ctx, event.ID, buyerID); err != nil {
		return nil, err
	} else if ticket != nil {
		return s.store.GetOrder(ctx, ticket.OrderID)
	}

	existing, err := s.store.FindOrderForBuyer(ctx, event.ID, buyerID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.Status != models.OrderStatusPaid && existing.TxHash != hash {
			if err := s.checkClaimedAmount(ctx, event, claimedAmount); err != nil {
				return nil, err
			}
			if err := s.store.UpdateOrderTxHash(ctx, existing.ID, hash); err != nil {
				return nil, err
			}
			existing.TxHash = hash
		}
		return existing, nil
	}

	if err := s.checkClaimedAmount(ctx, event, claimedAmount); err != nil {
		return nil, err
	}
	order := &models.Order{
		EventID:         event.ID,
		BuyerID:         buyerID,
		AmountBaseUnits: claimedAmount,
		Status:          models.OrderStatusPendingVerification,
		TxHash:          hash,
	}
	if err := s.store.CreateOrder(ctx, order); err != nil {
		if !errors.Is(err, status.ErrConflict) {
			return nil, err
		}
		// Concurrent submit created the row first. Re-read and re-check.
		return s.claimOrder(ctx, event, buyerID, hash, claimedAmount)
	}
	return order, nil
}

// checkClaimedAmount enforces claimedAmount >= floor(minimum * tolerance).
// The tolerance absorbs price drift between the buyer's quote and submission;
// the product is floored so a fractional threshold never rejects the integral
// amount right at the boundary.
func (s *ReconcileService) checkClaimedAmount(ctx context.Context, event *models.Event, claimedAmount int64) error {
	if claimedAmount <= 0 {
		return fmt.Errorf("claimed amount must be positive: %w", status.ErrValidation)
	}
	min, err := s.oracle.MinimumRequiredAmount(ctx, event.PriceCents, event.Currency)
	if err != nil {
		return err
	}
	floor := decimal.NewFromInt(min).Mul(s.tolerance).Floor()
	if decimal.NewFromInt(claimedAmount).LessThan(floor) {
		return fmt.Errorf("claimed amount %d below required minimum %d: %w", claimedAmount, min, status.ErrValidation)
	}
	return nil
}

// ReconcileForViewer re-checks the viewer's pending order for the event so
// the status endpoint reflects a payment that confirmed since the last poll.
func (s *ReconcileService) ReconcileForViewer(ctx context.Context, eventID, buyerID string) error {
	order, err := s.store.FindOrderForBuyer(ctx, eventID, buyerID)
	if err != nil {
		return fmt.Errorf("ReconcileForViewer: %w", err)
	}
	if order == nil || order.Status != models.OrderStatusPendingVerification {
		return nil
	}
	if err := s.attemptVerification(ctx, order, nil, TriggerViewer); err != nil {
		slog.Warn("viewer reconcile attempt failed", "order_id", order.ID, "error", err)
	}
	return nil
}

// PaymentStatus reconciles the viewer's pending order and returns the state
// of their order for the event, including the ticket once issued.
func (s *ReconcileService) PaymentStatus(ctx context.Context, eventID, buyerID string) (*PaymentState, error) {
	if err := s.ReconcileForViewer(ctx, eventID, buyerID); err != nil {
		slog.Warn("reconcile before status read failed", "buyer_id", buyerID, "error", err)
	}

	order, err := s.store.FindOrderForBuyer(ctx, eventID, buyerID)
	if err != nil {
		return nil, fmt.Errorf("PaymentStatus: %w", err)
	}
	if order == nil {
		return nil, fmt.Errorf("PaymentStatus: no order for event: %w", status.ErrNotFound)
	}
	return s.stateFor(ctx, order.ID)
}

// ReconcileAllPending sweeps every pending order once. A short redis lock
// keeps overlapping cron fires from doubling ledger load; the overlapping run
// returns an empty result.
func (s *ReconcileService) ReconcileAllPending(ctx context.Context) (SweepResult, error) {
	var result SweepResult

	if s.redis != nil {
		ok, err := s.redis.SetNX(ctx, sweepLockKey, time.Now().Unix(), sweepLockTTL).Result()
		if err != nil {
			slog.Warn("sweep lock unavailable, proceeding without it", "error", err)
		} else if !ok {
			slog.Info("sweep already running, skipping")
			monitoring.TrackSweep("skipped")
			return result, nil
		} else {
			defer s.redis.Del(context.WithoutCancel(ctx), sweepLockKey)
		}
	}

	pending, err := s.store.ListPendingOrders(ctx)
	if err != nil {
		monitoring.TrackSweep("error")
		return result, fmt.Errorf("ReconcileAllPending: %w", err)
	}

	trackOldestPending(pending)

	for _, order := range pending {
		result.Checked++
		if err := s.attemptVerification(ctx, order, nil, TriggerSweep); err != nil {
			slog.Warn("sweep verification attempt failed", "order_id", order.ID, "error", err)
			continue
		}
		refreshed, err := s.store.GetOrder(ctx, order.ID)
		if err == nil && refreshed.Status == models.OrderStatusPaid {
			result.Verified++
		}
	}

	monitoring.TrackSweep("ok")
	slog.Info("pending order sweep complete", "checked", result.Checked, "verified", result.Verified)
	return result, nil
}

// attemptVerification checks one order against the ledger and, on success,
// transitions it to paid and issues the ticket. event may be nil, in which
// case it is loaded. Already-paid orders only get their ticket backfilled.
func (s *ReconcileService) attemptVerification(ctx context.Context, order *models.Order, event *models.Event, trigger string) error {
	if event == nil {
		var err error
		event, err = s.store.GetEvent(ctx, order.EventID)
		if err != nil {
			return fmt.Errorf("attemptVerification: %w", err)
		}
	}

	if order.Status == models.OrderStatusPaid {
		_, err := s.tickets.Issue(ctx, event, order)
		return err
	}
	if order.TxHash == "" {
		return nil
	}

	recipient, err := s.ledger.ResolveRecipientCondition(event.PayoutAddress)
	if err != nil {
		monitoring.TrackVerification(trigger, "error")
		return fmt.Errorf("attemptVerification: %w", err)
	}

	if !s.ledger.VerifyPayment(ctx, order.TxHash, recipient, order.AmountBaseUnits) {
		monitoring.TrackVerification(trigger, "unverified")
		return nil
	}

	paid, err := s.store.MarkOrderPaid(ctx, order.ID)
	if err != nil {
		monitoring.TrackVerification(trigger, "error")
		return fmt.Errorf("attemptVerification: %w", err)
	}
	if paid {
		monitoring.TrackVerification(trigger, "verified")
		slog.Info("payment verified", "order_id", order.ID, "event_id", order.EventID, "trigger", trigger)
	}
	order.Status = models.OrderStatusPaid

	if _, err := s.tickets.Issue(ctx, event, order); err != nil {
		return fmt.Errorf("attemptVerification: %w", err)
	}
	return nil
}

func (s *ReconcileService) stateFor(ctx context.Context, orderID string) (*PaymentState, error) {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("stateFor: %w", err)
	}
	state := &PaymentState{
		OrderID: order.ID,
		Status:  order.Status,
		TxHash:  order.TxHash,
	}
	if order.Status == models.OrderStatusPaid {
		ticket, err := s.store.FindTicketByOrder(ctx, order.ID)
		if err != nil {
			return nil, fmt.Errorf("stateFor: %w", err)
		}
		state.Ticket = ticket
	}
	return state, nil
}

func trackOldestPending(pending []*models.Order) {
	var oldest time.Time
	for _, o := range pending {
		if oldest.IsZero() || o.CreatedAt.Before(oldest) {
			oldest = o.CreatedAt
		}
	}
	if oldest.IsZero() {
		monitoring.TrackOldestPendingAge(0)
		return
	}
	monitoring.TrackOldestPendingAge(time.Since(oldest))
}

// NormalizeTxHash lowercases a claimed transaction hash and enforces the
// 32-byte hex form, with or without a 0x prefix on input.
func NormalizeTxHash(raw string) (string, error) {
	h := strings.ToLower(strings.TrimSpace(raw))
	h = strings.TrimPrefix(h, "0x")
	if len(h) != 64 {
		return "", fmt.Errorf("transaction hash must be 32 bytes of hex: %w", status.ErrValidation)
	}
	if _, err := hex.DecodeString(h); err != nil {
		return "", fmt.Errorf("transaction hash must be 32 bytes of hex: %w", status.ErrValidation)
	}
	return "0x" + h, nil
}
