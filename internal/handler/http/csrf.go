package http

import (
	"log/slog"
	"net/http"

	"github.com/medusa2112/HealiosHealth-sub005/internal/csrf"
)

// CSRFHandler issues double-submit tokens for one realm.
type CSRFHandler struct {
	protector *csrf.Protector
	logger    *slog.Logger
}

// NewCSRFHandler creates a CSRF bootstrap handler for one realm.
func NewCSRFHandler(protector *csrf.Protector, logger *slog.Logger) *CSRFHandler {
	return &CSRFHandler{protector: protector, logger: logger}
}

// Issue handles the safe bootstrap call (GET /api/csrf or
// GET /api/admin/csrf). It sets the realm's CSRF cookie and echoes the token
// in the body so non-browser clients can pick it up without parsing cookies.
// Reissuing is idempotent: a fresh token never invalidates a live session.
func (h *CSRFHandler) Issue(w http.ResponseWriter, r *http.Request) {
	token, err := h.protector.IssueToken()
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to issue csrf token",
			slog.String("error", err.Error()),
		)
		writeJSON(w, http.StatusInternalServerError, response{
			Error: &errorResponse{Code: "INTERNAL_ERROR", Message: "an internal error occurred"},
		})
		return
	}

	http.SetCookie(w, h.protector.Cookie(token))
	writeJSON(w, http.StatusOK, response{Data: map[string]string{"csrf_token": token}})
}
