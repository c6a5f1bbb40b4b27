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

// CustomerHandler handles HTTP requests for storefront shopper auth.
type CustomerHandler struct {
	service  *service.CustomerService
	sessions *session.Manager
	csrf     *csrf.Protector
	logger   *slog.Logger
}

// NewCustomerHandler creates a new customer auth HTTP handler.
func NewCustomerHandler(svc *service.CustomerService, sessions *session.Manager, protector *csrf.Protector, logger *slog.Logger) *CustomerHandler {
	return &CustomerHandler{service: svc, sessions: sessions, csrf: protector, logger: logger}
}

// --- Request DTOs ---

// RegisterRequest is the JSON request body for customer registration.
type RegisterRequest struct {
	Email     string `json:"email" validate:"required,email,max=255"`
	Password  string `json:"password" validate:"required,max=128"`
	FirstName string `json:"first_name" validate:"required,min=1,max=100"`
	LastName  string `json:"last_name" validate:"required,min=1,max=100"`
}

// LoginRequest is the JSON request body for customer password login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,max=128"`
}

// SendPinRequest is the JSON request body for requesting a login PIN.
type SendPinRequest struct {
	Email string `json:"email" validate:"required,email,max=255"`
}

// PinLoginRequest is the JSON request body for PIN login.
type PinLoginRequest struct {
	Email string `json:"email" validate:"required,email,max=255"`
	Pin   string `json:"pin" validate:"required,len=6,numeric"`
}

// --- Handlers ---

// Register handles POST /api/auth/customer/register. A successful
// registration also signs the customer in: the session cookie rides on the
// 201 response.
func (h *CustomerHandler) Register(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit
	var req RegisterRequest
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

	user, err := h.service.Register(r.Context(), service.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	if !h.issueSession(w, r, user.ID) {
		return
	}
	writeJSON(w, http.StatusCreated, response{Data: user})
}

// Login handles POST /api/auth/customer/login.
func (h *CustomerHandler) Login(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit
	var req LoginRequest
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

	user, err := h.service.Login(r.Context(), service.LoginInput{
		Email:    req.Email,
		Password: req.Password,
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

// SendPin handles POST /api/auth/customer/send-pin. The response is 202
// regardless of whether the email maps to an account.
func (h *CustomerHandler) SendPin(w http.ResponseWriter, r *http.Request) {
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

// LoginWithPin handles POST /api/auth/customer/login-pin.
func (h *CustomerHandler) LoginWithPin(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit
	var req PinLoginRequest
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

// Logout handles POST /api/auth/customer/logout. Only the customer session
// cookie is cleared; an admin cookie on the same browser is untouched.
func (h *CustomerHandler) Logout(w http.ResponseWriter, r *http.Request) {
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

// Me handles GET /api/auth/customer/me.
func (h *CustomerHandler) Me(w http.ResponseWriter, r *http.Request) {
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

// Session handles GET /api/auth/customer/session: the non-throwing session
// check. It answers 200 with the profile or with null, never 401.
func (h *CustomerHandler) Session(w http.ResponseWriter, r *http.Request) {
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

// issueSession creates a session for the user and sets the realm cookie.
// Returns false after writing a 500 if session creation fails.
func (h *CustomerHandler) issueSession(w http.ResponseWriter, r *http.Request, userID string) bool {
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
