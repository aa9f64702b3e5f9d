package services

import (
	"context"
	"testing"
	"time"

	"eventpass/internal/status"
	"eventpass/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedPaidOrder(store *fakeStore) (*models.Event, *models.Order) {
	event := &models.Event{ID: "event1", Title: "Go Conference", OrganizerID: "organizer1"}
	store.addEvent(event)
	store.addUser(&models.User{ID: "buyer1"})
	order := &models.Order{
		EventID: "event1",
		BuyerID: "buyer1",
		Status:  models.OrderStatusPaid,
	}
	if err := store.CreateOrder(context.Background(), order); err != nil {
		panic(err)
	}
	return event, order
}

func TestIssue_UnpaidOrderRejected(t *testing.T) {
	store := newFakeStore()
	svc := NewTicketService(store, nil)

	_, err := svc.Issue(context.Background(), &models.Event{ID: "event1"}, &models.Order{
		ID: "order1", EventID: "event1", BuyerID: "buyer1",
		Status: models.OrderStatusPendingVerification,
	})
	assert.ErrorIs(t, err, status.ErrValidation)
}

func TestIssue_OncePerOrder(t *testing.T) {
	store := newFakeStore()
	event, order := seedPaidOrder(store)
	svc := NewTicketService(store, nil)

	first, err := svc.Issue(context.Background(), event, order)
	require.NoError(t, err)
	require.NotEmpty(t, first.Code)

	second, err := svc.Issue(context.Background(), event, order)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, store.ticketCount())
}

func TestIssue_AdoptsConcurrentWinner(t *testing.T) {
	store := newFakeStore()
	event, order := seedPaidOrder(store)
	svc := NewTicketService(store, nil)

	existing := &models.Ticket{
		EventID: order.EventID,
		BuyerID: order.BuyerID,
		OrderID: order.ID,
		Code:    "existingcode",
	}
	require.NoError(t, store.CreateTicket(context.Background(), existing))

	ticket, err := svc.Issue(context.Background(), event, order)
	require.NoError(t, err)
	assert.Equal(t, existing.ID, ticket.ID)
	assert.Equal(t, "existingcode", ticket.Code)
	assert.Equal(t, 1, store.ticketCount())
}

func TestCheckIn_UnknownCode(t *testing.T) {
	store := newFakeStore()
	seedPaidOrder(store)
	svc := NewTicketService(store, nil)

	_, _, err := svc.CheckIn(context.Background(), "event1", "nosuchcode", "organizer1")
	assert.ErrorIs(t, err, status.ErrNotFound)
}

func TestCheckIn_CodeScopedToEvent(t *testing.T) {
	store := newFakeStore()
	event, order := seedPaidOrder(store)
	store.addEvent(&models.Event{ID: "event2", Title: "Other Conference", OrganizerID: "organizer1"})
	svc := NewTicketService(store, nil)

	ticket, err := svc.Issue(context.Background(), event, order)
	require.NoError(t, err)

	_, _, err = svc.CheckIn(context.Background(), "event2", ticket.Code, "organizer1")
	assert.ErrorIs(t, err, status.ErrNotFound)
}

func TestCheckIn_OrganizerOnly(t *testing.T) {
	store := newFakeStore()
	event, order := seedPaidOrder(store)
	svc := NewTicketService(store, nil)

	ticket, err := svc.Issue(context.Background(), event, order)
	require.NoError(t, err)

	_, _, err = svc.CheckIn(context.Background(), "event1", ticket.Code, "buyer1")
	assert.ErrorIs(t, err, status.ErrUnauthorized)
}

func TestCheckIn_SecondScanIsIdempotent(t *testing.T) {
	store := newFakeStore()
	event, order := seedPaidOrder(store)
	svc := NewTicketService(store, nil)

	issued, err := svc.Issue(context.Background(), event, order)
	require.NoError(t, err)

	first, already, err := svc.CheckIn(context.Background(), "event1", issued.Code, "organizer1")
	require.NoError(t, err)
	assert.False(t, already)
	require.NotNil(t, first.CheckedInAt)

	time.Sleep(10 * time.Millisecond)

	second, already, err := svc.CheckIn(context.Background(), "event1", issued.Code, "organizer1")
	require.NoError(t, err)
	assert.True(t, already)
	require.NotNil(t, second.CheckedInAt)
	assert.True(t, second.CheckedInAt.Equal(*first.CheckedInAt))
}
