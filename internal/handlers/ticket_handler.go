package handlers

import (
	"net/http"
	"time"

	"eventpass/internal/services"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

type TicketHandler struct {
	app     *pocketbase.PocketBase
	tickets *services.TicketService
}

func NewTicketHandler(app *pocketbase.PocketBase, tickets *services.TicketService) *TicketHandler {
	return &TicketHandler{app: app, tickets: tickets}
}

type checkInRequest struct {
	Code string `json:"code"`
}

// CheckIn - Mark a ticket as used at the door (organizer only)
func (h *TicketHandler) CheckIn(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}
	eventID := e.Request.PathValue("eventId")
	ctx := e.Request.Context()

	var req checkInRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request body", err)
	}

	ticket, alreadyCheckedIn, err := h.tickets.CheckIn(ctx, eventID, req.Code, e.Auth.Id)
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"ticket_id":          ticket.ID,
		"event_id":           ticket.EventID,
		"checked_in_at":      ticket.CheckedInAt.UTC().Format(time.RFC3339),
		"already_checked_in": alreadyCheckedIn,
	})
}
