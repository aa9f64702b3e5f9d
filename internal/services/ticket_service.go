package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"eventpass/internal/status"
	"eventpass/models"
	"eventpass/monitoring"
	"eventpass/utils"

	pubnub "github.com/pubnub/go"
)

// codeRerollAttempts bounds how many times Issue retries on a ticket code
// collision before giving up.
const codeRerollAttempts = 5

type TicketService struct {
	store  Store
	pubnub *pubnub.PubNub
}

func NewTicketService(store Store, pn *pubnub.PubNub) *TicketService {
	return &TicketService{store: store, pubnub: pn}
}

// Issue creates the ticket for a paid order, or returns the existing one.
// Exactly one ticket ever exists per order; concurrent callers converge on
// the same row through the unique indexes.
func (s *TicketService) Issue(ctx context.Context, event *models.Event, order *models.Order) (*models.Ticket, error) {
	if order.Status != models.OrderStatusPaid {
		return nil, fmt.Errorf("Issue: order not paid: %w", status.ErrValidation)
	}

	if existing, err := s.store.FindTicketByOrder(ctx, order.ID); err != nil {
		return nil, fmt.Errorf("Issue: %w", err)
	} else if existing != nil {
		return existing, nil
	}

	for attempt := 0; attempt < codeRerollAttempts; attempt++ {
		code, err := utils.GenerateTicketCode()
		if err != nil {
			return nil, fmt.Errorf("Issue: %w", err)
		}
		ticket := &models.Ticket{
			EventID: order.EventID,
			BuyerID: order.BuyerID,
			OrderID: order.ID,
			Code:    code,
		}
		err = s.store.CreateTicket(ctx, ticket)
		if err == nil {
			monitoring.TrackTicketIssued()
			slog.Info("ticket issued", "ticket_id", ticket.ID, "event_id", ticket.EventID, "order_id", order.ID)
			s.notifyIssued(event, ticket)
			return ticket, nil
		}
		if !errors.Is(err, status.ErrTicketExists) {
			return nil, fmt.Errorf("Issue: %w", err)
		}
		// Either the code collided or a concurrent verifier already issued
		// for this order or buyer. Adopt the winner if there is one.
		if existing, ferr := s.store.FindTicketByOrder(ctx, order.ID); ferr == nil && existing != nil {
			return existing, nil
		}
		if existing, ferr := s.store.FindTicketForBuyer(ctx, order.EventID, order.BuyerID); ferr == nil && existing != nil {
			return existing, nil
		}
	}
	return nil, fmt.Errorf("Issue: could not allocate a unique ticket code after %d attempts", codeRerollAttempts)
}

// CheckIn marks a ticket as used at the door. The code is scoped to the
// event, only the event organizer may check tickets in, and a second scan of
// the same ticket reports the original check-in time instead of failing.
func (s *TicketService) CheckIn(ctx context.Context, eventID, code, organizerID string) (*models.Ticket, bool, error) {
	ticket, err := s.store.FindTicketByCode(ctx, code)
	if err != nil {
		return nil, false, fmt.Errorf("CheckIn: %w", err)
	}
	if ticket == nil || ticket.EventID != eventID {
		return nil, false, fmt.Errorf("CheckIn: no such ticket for event: %w", status.ErrNotFound)
	}

	event, err := s.store.GetEvent(ctx, ticket.EventID)
	if err != nil {
		return nil, false, fmt.Errorf("CheckIn: %w", err)
	}
	if event.OrganizerID != organizerID {
		return nil, false, fmt.Errorf("CheckIn: only the event organizer can check in tickets: %w", status.ErrUnauthorized)
	}

	if ticket.CheckedIn() {
		return ticket, true, nil
	}

	now := time.Now().UTC()
	if err := s.store.SetCheckedIn(ctx, ticket.ID, now); err != nil {
		return nil, false, fmt.Errorf("CheckIn: %w", err)
	}
	ticket.CheckedInAt = &now
	slog.Info("ticket checked in", "ticket_id", ticket.ID, "event_id", ticket.EventID)
	return ticket, false, nil
}

func (s *TicketService) notifyIssued(event *models.Event, ticket *models.Ticket) {
	if s.pubnub == nil {
		return
	}
	channel := fmt.Sprintf("user-%s", ticket.BuyerID)
	s.pubnub.Publish().
		Channel(channel).
		Message(map[string]any{
			"type":        "ticket_issued",
			"ticket_code": ticket.Code,
			"event_id":    ticket.EventID,
			"event_title": event.Title,
		}).
		Execute()
}
