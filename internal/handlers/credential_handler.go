package handlers

import (
	"net/http"

	"eventpass/internal/services"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

type CredentialHandler struct {
	app         *pocketbase.PocketBase
	credentials *services.CredentialService
}

func NewCredentialHandler(app *pocketbase.PocketBase, credentials *services.CredentialService) *CredentialHandler {
	return &CredentialHandler{app: app, credentials: credentials}
}

// AttendanceCredential - Download a signed proof of attendance for a
// checked-in ticket
func (h *CredentialHandler) AttendanceCredential(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}
	eventID := e.Request.PathValue("eventId")
	ctx := e.Request.Context()

	credential, err := h.credentials.IssueAttendance(ctx, eventID, e.Auth.Id)
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"credential": credential,
		"format":     "jwt",
	})
}

// IssuerDocument - Public verification material for attendance credentials
func (h *CredentialHandler) IssuerDocument(e *core.RequestEvent) error {
	publicKey, err := h.credentials.PublicKeyPEM()
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"id":         h.credentials.IssuerID(),
		"algorithm":  "EdDSA",
		"public_key": publicKey,
	})
}
