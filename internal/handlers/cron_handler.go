package handlers

import (
	"net/http"
	"strings"

	"eventpass/internal/services"
	"eventpass/security"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

type CronHandler struct {
	app       *pocketbase.PocketBase
	reconcile *services.ReconcileService
	secret    string
}

func NewCronHandler(app *pocketbase.PocketBase, reconcile *services.ReconcileService, secret string) *CronHandler {
	return &CronHandler{app: app, reconcile: reconcile, secret: secret}
}

// VerifyPayments - Sweep every pending order against the ledger. Called by
// an external scheduler, authenticated with the shared cron secret.
func (h *CronHandler) VerifyPayments(e *core.RequestEvent) error {
	if !security.VerifySweepSecret(h.secret, presentedSecret(e)) {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	result, err := h.reconcile.ReconcileAllPending(e.Request.Context())
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, result)
}

func presentedSecret(e *core.RequestEvent) string {
	auth := e.Request.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return e.Request.URL.Query().Get("secret")
}
