package handlers

import (
	"log/slog"
	"net/http"

	"eventpass/internal/services"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

type RegistrationHandler struct {
	app       *pocketbase.PocketBase
	reconcile *services.ReconcileService
}

func NewRegistrationHandler(app *pocketbase.PocketBase, reconcile *services.ReconcileService) *RegistrationHandler {
	return &RegistrationHandler{app: app, reconcile: reconcile}
}

// RegisterFree - Claim a ticket for a free event
func (h *RegistrationHandler) RegisterFree(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}
	eventID := e.Request.PathValue("eventId")
	ctx := e.Request.Context()

	ticket, err := h.reconcile.RegisterFree(ctx, eventID, e.Auth.Id)
	if err != nil {
		slog.Warn("free registration failed", "event_id", eventID, "user_id", e.Auth.Id, "error", err)
		return apiError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"ticket_id":   ticket.ID,
		"ticket_code": ticket.Code,
		"event_id":    ticket.EventID,
	})
}

type confirmPaymentRequest struct {
	TxHash          string `json:"tx_hash"`
	AmountBaseUnits int64  `json:"amount_base_units"`
}

// ConfirmPayment - Submit a claimed payment transaction for verification
func (h *RegistrationHandler) ConfirmPayment(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}
	eventID := e.Request.PathValue("eventId")
	ctx := e.Request.Context()

	var req confirmPaymentRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request body", err)
	}

	state, err := h.reconcile.ConfirmPayment(ctx, eventID, e.Auth.Id, req.TxHash, req.AmountBaseUnits)
	if err != nil {
		slog.Warn("confirm payment failed", "event_id", eventID, "user_id", e.Auth.Id, "error", err)
		return apiError(err)
	}

	return e.JSON(http.StatusOK, state)
}

// PaymentStatus - Poll the state of the viewer's order for an event
func (h *RegistrationHandler) PaymentStatus(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}
	eventID := e.Request.PathValue("eventId")
	ctx := e.Request.Context()

	state, err := h.reconcile.PaymentStatus(ctx, eventID, e.Auth.Id)
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, state)
}
