package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/medusa2112/HealiosHealth-sub005/internal/csrf"
	"github.com/medusa2112/HealiosHealth-sub005/internal/ratelimit"
	"github.com/medusa2112/HealiosHealth-sub005/internal/service"
	"github.com/medusa2112/HealiosHealth-sub005/internal/session"
	"github.com/medusa2112/HealiosHealth-sub005/pkg/validator"
)

// AdminHandler handles HTTP requests for back-office operator auth.
type AdminHandler struct {
	service  *service.AdminService
	sessions *session.Manager
	csrf     *csrf.Protector
	logger   *slog.Logger
}

// NewAdminHandler creates a new admin auth HTTP handler.
func NewAdminHandler(svc *service.AdminService, sessions *session.Manager, protector *csrf.Protector, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{service: svc, sessions: sessions, csrf: protector, logger: logger}
}

// --- Request DTOs ---

// AdminLoginRequest is the JSON request body for admin login. Pin is the
// optional second factor.
type AdminLoginRequest struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,max=128"`
	Pin      string `json:"pin" validate:"omitempty,len=6,numeric"`
}

// VerifyPinRequest is the JSON request body for admin PIN login.
type VerifyPinRequest struct {
	Email string `json:"email" validate:"required,email,max=255"`
	Pin   string `json:"pin" validate:"required,len=6,numeric"`
}

// ChangePasswordRequest is the JSON request body for rotating the admin
// password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required,max=128"`
	NewPassword     string `json:"new_password" validate:"required,max=128"`
}

// --- Handlers ---

// Login handles POST /api/auth/admin/login.
func (h *AdminHandler) Login(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit
	var req AdminLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}
	if err := validator.Validate(req); err != nil {
		writeValidationError(w, err)
		return
	}

	user, err := h.service.Login(r.Context(), service.AdminLoginInput{
		Email:    req.Email,
		Password: req.Password,
		Pin:      req.Pin,
	}, ratelimit.ClientIP(r))
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	if !h.issueSession(w, r, user.ID) {
		return
	}
	writeJSON(w, http.StatusOK, response{Data: user})
}

// SendPin handles POST /api/auth/admin/send-pin.
func (h *AdminHandler) SendPin(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit
	var req SendPinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}
	if err := validator.Validate(req); err != nil {
		writeValidationError(w, err)
		return
	}

	if err := h.service.SendPin(r.Context(), req.Email, ratelimit.ClientIP(r)); err != nil {
		writeAppError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, response{Data: map[string]string{"status": "pin_sent"}})
}

// VerifyPin handles POST /api/auth/admin/verify-pin: PIN-only admin login.
func (h *AdminHandler) VerifyPin(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit
	var req VerifyPinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}
	if err := validator.Validate(req); err != nil {
		writeValidationError(w, err)
		return
	}

	user, err := h.service.LoginWithPin(r.Context(), req.Email, req.Pin, ratelimit.ClientIP(r))
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	if !h.issueSession(w, r, user.ID) {
		return
	}
	writeJSON(w, http.StatusOK, response{Data: user})
}

// ChangePassword handles POST /api/auth/admin/change-password.
func (h *AdminHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	p := PrincipalFromContext(r.Context())
	if p == nil {
		writeJSON(w, http.StatusUnauthorized, response{
			Error: &errorResponse{Code: "UNAUTHORIZED", Message: "user not authenticated"},
		})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit
	var req ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}
	if err := validator.Validate(req); err != nil {
		writeValidationError(w, err)
		return
	}

	if err := h.service.ChangePassword(r.Context(), p.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		writeAppError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, response{Data: map[string]string{"status": "password_changed"}})
}

// Logout handles POST /api/auth/admin/logout. Only the admin session cookie
// is cleared.
func (h *AdminHandler) Logout(w http.ResponseWriter, r *http.Request) {
	p := PrincipalFromContext(r.Context())
	if p == nil {
		writeJSON(w, http.StatusUnauthorized, response{
			Error: &errorResponse{Code: "UNAUTHORIZED", Message: "user not authenticated"},
		})
		return
	}

	if err := h.sessions.Destroy(r.Context(), p.SessionID); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to destroy session",
			slog.String("error", err.Error()),
		)
	}

	http.SetCookie(w, h.sessions.ClearCookie())
	writeJSON(w, http.StatusOK, response{Data: map[string]string{"status": "logged_out"}})
}

// Me handles GET /api/auth/admin/me.
func (h *AdminHandler) Me(w http.ResponseWriter, r *http.Request) {
	p := PrincipalFromContext(r.Context())
	if p == nil {
		writeJSON(w, http.StatusUnauthorized, response{
			Error: &errorResponse{Code: "UNAUTHORIZED", Message: "user not authenticated"},
		})
		return
	}

	user, err := h.service.GetProfile(r.Context(), p.UserID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, response{Data: user})
}

// Session handles GET /api/auth/admin/session: non-throwing session check.
func (h *AdminHandler) Session(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(h.sessions.Domain().SessionCookie())
	if err != nil || cookie.Value == "" {
		writeJSON(w, http.StatusOK, response{Data: map[string]any{"user": nil}})
		return
	}

	sess, err := h.sessions.Resolve(r.Context(), cookie.Value)
	if err != nil {
		writeJSON(w, http.StatusOK, response{Data: map[string]any{"user": nil}})
		return
	}

	user, err := h.service.GetProfile(r.Context(), sess.UserID)
	if err != nil {
		writeJSON(w, http.StatusOK, response{Data: map[string]any{"user": nil}})
		return
	}
	writeJSON(w, http.StatusOK, response{Data: map[string]any{"user": user}})
}

func (h *AdminHandler) issueSession(w http.ResponseWriter, r *http.Request, userID string) bool {
	sess, err := h.sessions.Issue(r.Context(), userID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to issue session",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		writeJSON(w, http.StatusInternalServerError, response{
			Error: &errorResponse{Code: "INTERNAL_ERROR", Message: "an internal error occurred"},
		})
		return false
	}
	http.SetCookie(w, h.sessions.Cookie(sess))
	return true
}
