package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/medusa2112/HealiosHealth-sub005/internal/domain"
	"github.com/medusa2112/HealiosHealth-sub005/internal/notify"
	"github.com/medusa2112/HealiosHealth-sub005/internal/pin"
	"github.com/medusa2112/HealiosHealth-sub005/internal/ratelimit"
	"github.com/medusa2112/HealiosHealth-sub005/internal/repository"
	apperrors "github.com/medusa2112/HealiosHealth-sub005/pkg/errors"
)

// AdminService implements the business logic for back-office operator
// authentication. Admin access is allow-listed: the list of permitted emails
// comes from deployment configuration and is checked before any credential
// work, so an email outside the list gets a flat 403 with no password or PIN
// processing at all.
type AdminService struct {
	users  repository.UserRepository
	pins   *pin.Verifier
	sender notify.Sender
	limits *ratelimit.Tracker
	audit  Auditor
	logger *slog.Logger

	allowlist            map[string]struct{}
	secondFactorRequired bool
}

// NewAdminService creates a new admin auth service. allowlist is the set of
// emails permitted to authenticate as admins; secondFactorRequired forces a
// valid PIN alongside the password on every login.
func NewAdminService(
	users repository.UserRepository,
	pins *pin.Verifier,
	sender notify.Sender,
	limits *ratelimit.Tracker,
	audit Auditor,
	allowlist []string,
	secondFactorRequired bool,
	logger *slog.Logger,
) *AdminService {
	allowed := make(map[string]struct{}, len(allowlist))
	for _, email := range allowlist {
		if normalized := pin.Normalize(email); normalized != "" {
			allowed[normalized] = struct{}{}
		}
	}
	return &AdminService{
		users:                users,
		pins:                 pins,
		sender:               sender,
		limits:               limits,
		audit:                audit,
		logger:               logger,
		allowlist:            allowed,
		secondFactorRequired: secondFactorRequired,
	}
}

// AdminLoginInput holds the parameters for admin password login. Pin carries
// the second factor when one is required.
type AdminLoginInput struct {
	Email    string
	Password string
	Pin      string
}

// Allowed reports whether the email is on the admin allow-list.
func (s *AdminService) Allowed(email string) bool {
	_, ok := s.allowlist[pin.Normalize(email)]
	return ok
}

// SecondFactorRequired reports whether admin logins need a PIN alongside the
// password.
func (s *AdminService) SecondFactorRequired() bool {
	return s.secondFactorRequired
}

// Login authenticates an admin with email and password, plus a PIN second
// factor when required. The allow-list gate runs first.
func (s *AdminService) Login(ctx context.Context, input AdminLoginInput, ip string) (*domain.User, error) {
	if input.Email == "" {
		return nil, apperrors.InvalidInput("email is required")
	}
	if input.Password == "" {
		return nil, apperrors.InvalidInput("password is required")
	}

	if err := s.limits.Check(ratelimit.ClassAdminLogin, ip); err != nil {
		s.audit.Lockout(ctx, string(ratelimit.ClassAdminLogin), ip)
		return nil, err
	}

	if !s.Allowed(input.Email) {
		s.limits.Fail(ratelimit.ClassAdminLogin, ip)
		s.audit.LoginFailed(ctx, domain.DomainAdmin, ip, "password", "not_allowlisted")
		return nil, apperrors.Forbidden("not authorized for admin access")
	}

	if err := s.limits.Delay(ctx, ratelimit.ClassAdminLogin, ip); err != nil {
		return nil, fmt.Errorf("login delay: %w", err)
	}

	user, err := s.users.GetByEmail(ctx, input.Email)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("get user: %w", err)
		}
		return nil, s.failLogin(ctx, ip, "password", "unknown_email")
	}

	if user.Role != domain.RoleAdmin {
		s.limits.Fail(ratelimit.ClassAdminLogin, ip)
		s.audit.CrossDomainRejected(ctx, domain.DomainCustomer, domain.DomainAdmin, ip, "/api/auth/admin/login")
		return nil, apperrors.InvalidUserType()
	}
	if !user.IsActive || !user.HasPassword() || !checkPassword(user.PasswordHash, input.Password) {
		return nil, s.failLogin(ctx, ip, "password", "invalid_credentials")
	}

	if s.secondFactorRequired {
		if input.Pin == "" {
			return nil, s.failLogin(ctx, ip, "password+pin", "missing_second_factor")
		}
		if err := s.pins.Verify(ctx, user.Email, input.Pin); err != nil {
			s.limits.Fail(ratelimit.ClassAdminLogin, ip)
			s.audit.LoginFailed(ctx, domain.DomainAdmin, ip, "password+pin", "invalid_second_factor")
			return nil, err
		}
	}

	return s.completeLogin(ctx, user, ip, "password")
}

// SendPin issues a login PIN to an allow-listed admin. Unlike the customer
// path, an off-list email is a hard Forbidden: the allow-list is deployment
// configuration, not account data, so refusing loudly leaks nothing about
// which accounts exist.
func (s *AdminService) SendPin(ctx context.Context, email, ip string) error {
	if email == "" {
		return apperrors.InvalidInput("email is required")
	}

	if err := s.limits.Check(ratelimit.ClassPasswordReset, ip); err != nil {
		s.audit.Lockout(ctx, string(ratelimit.ClassPasswordReset), ip)
		return err
	}
	s.limits.Fail(ratelimit.ClassPasswordReset, ip)

	if !s.Allowed(email) {
		s.logger.WarnContext(ctx, "admin pin requested for non-allowlisted email",
			slog.String("ip", ip),
		)
		return apperrors.Forbidden("not authorized for admin access")
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil || user.Role != domain.RoleAdmin || !user.IsActive {
		if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
			s.logger.ErrorContext(ctx, "admin pin lookup failed",
				slog.String("ip", ip),
				slog.String("error", err.Error()),
			)
			return nil
		}
		s.logger.InfoContext(ctx, "admin pin requested for unknown or ineligible email",
			slog.String("ip", ip),
		)
		return nil
	}

	code, err := s.pins.Issue(ctx, user.Email)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to issue admin pin",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
		return nil
	}
	if err := s.sender.SendLoginPin(ctx, user.Email, code); err != nil {
		s.logger.ErrorContext(ctx, "failed to deliver admin pin",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

// LoginWithPin authenticates an admin with a one-time PIN alone. The
// allow-list gate still runs first.
func (s *AdminService) LoginWithPin(ctx context.Context, email, code, ip string) (*domain.User, error) {
	if email == "" {
		return nil, apperrors.InvalidInput("email is required")
	}
	if code == "" {
		return nil, apperrors.InvalidInput("pin is required")
	}

	if err := s.limits.Check(ratelimit.ClassAdminLogin, ip); err != nil {
		s.audit.Lockout(ctx, string(ratelimit.ClassAdminLogin), ip)
		return nil, err
	}

	if !s.Allowed(email) {
		s.limits.Fail(ratelimit.ClassAdminLogin, ip)
		s.audit.LoginFailed(ctx, domain.DomainAdmin, ip, "pin", "not_allowlisted")
		return nil, apperrors.Forbidden("not authorized for admin access")
	}

	if err := s.limits.Delay(ctx, ratelimit.ClassAdminLogin, ip); err != nil {
		return nil, fmt.Errorf("login delay: %w", err)
	}

	if err := s.pins.Verify(ctx, email, code); err != nil {
		s.limits.Fail(ratelimit.ClassAdminLogin, ip)
		s.audit.LoginFailed(ctx, domain.DomainAdmin, ip, "pin", "invalid_pin")
		return nil, err
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("get user: %w", err)
		}
		return nil, s.failLogin(ctx, ip, "pin", "unknown_email")
	}
	if user.Role != domain.RoleAdmin {
		s.limits.Fail(ratelimit.ClassAdminLogin, ip)
		s.audit.CrossDomainRejected(ctx, domain.DomainCustomer, domain.DomainAdmin, ip, "/admin/api/auth/verify-pin")
		return nil, apperrors.InvalidUserType()
	}
	if !user.IsActive {
		return nil, s.failLogin(ctx, ip, "pin", "inactive_account")
	}

	return s.completeLogin(ctx, user, ip, "pin")
}

// ChangePassword rotates an admin's password after re-verifying the current
// one.
func (s *AdminService) ChangePassword(ctx context.Context, userID, current, newPassword string) error {
	if current == "" {
		return apperrors.InvalidInput("current password is required")
	}
	if err := validatePassword(newPassword); err != nil {
		return err
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return apperrors.NotFound("user", userID)
		}
		return fmt.Errorf("get user: %w", err)
	}

	if !user.HasPassword() || !checkPassword(user.PasswordHash, current) {
		return apperrors.InvalidCredentials()
	}

	hashed, err := hashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePassword(ctx, user.ID, hashed); err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	s.logger.InfoContext(ctx, "admin password changed",
		slog.String("user_id", user.ID),
	)
	return nil
}

// GetProfile returns the admin's profile for the session check endpoint.
func (s *AdminService) GetProfile(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.NotFound("user", userID)
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

func (s *AdminService) failLogin(ctx context.Context, ip, method, reason string) error {
	s.limits.Fail(ratelimit.ClassAdminLogin, ip)
	s.audit.LoginFailed(ctx, domain.DomainAdmin, ip, method, reason)
	loginsTotal.WithLabelValues(string(domain.DomainAdmin), "failure").Inc()
	return apperrors.InvalidCredentials()
}

func (s *AdminService) completeLogin(ctx context.Context, user *domain.User, ip, method string) (*domain.User, error) {
	s.limits.Clear(ratelimit.ClassAdminLogin, ip)
	loginsTotal.WithLabelValues(string(domain.DomainAdmin), "success").Inc()

	if err := s.users.RecordLogin(ctx, user.ID); err != nil {
		s.logger.WarnContext(ctx, "failed to record login time",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	s.audit.LoginSucceeded(ctx, domain.DomainAdmin, user.ID, ip, method)
	s.logger.InfoContext(ctx, "admin logged in",
		slog.String("user_id", user.ID),
		slog.String("method", method),
	)
	return user, nil
}
