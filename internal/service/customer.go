package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/medusa2112/HealiosHealth-sub005/internal/domain"
	"github.com/medusa2112/HealiosHealth-sub005/internal/notify"
	"github.com/medusa2112/HealiosHealth-sub005/internal/pin"
	"github.com/medusa2112/HealiosHealth-sub005/internal/ratelimit"
	"github.com/medusa2112/HealiosHealth-sub005/internal/repository"
	apperrors "github.com/medusa2112/HealiosHealth-sub005/pkg/errors"
)

// Auditor is the audit event surface the services need. *event.AuditProducer
// implements it.
type Auditor interface {
	CustomerRegistered(ctx context.Context, user *domain.User)
	LoginSucceeded(ctx context.Context, d domain.AuthDomain, userID, ip, method string)
	LoginFailed(ctx context.Context, d domain.AuthDomain, ip, method, reason string)
	Lockout(ctx context.Context, class, ip string)
	CrossDomainRejected(ctx context.Context, presented, required domain.AuthDomain, ip, path string)
}

// CustomerService implements the business logic for storefront shopper
// authentication.
type CustomerService struct {
	users  repository.UserRepository
	pins   *pin.Verifier
	sender notify.Sender
	limits *ratelimit.Tracker
	audit  Auditor
	logger *slog.Logger
}

// NewCustomerService creates a new customer auth service.
func NewCustomerService(
	users repository.UserRepository,
	pins *pin.Verifier,
	sender notify.Sender,
	limits *ratelimit.Tracker,
	audit Auditor,
	logger *slog.Logger,
) *CustomerService {
	return &CustomerService{
		users:  users,
		pins:   pins,
		sender: sender,
		limits: limits,
		audit:  audit,
		logger: logger,
	}
}

// RegisterInput holds the parameters for registering a new customer.
type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// LoginInput holds the parameters for password login.
type LoginInput struct {
	Email    string
	Password string
}

// Register creates a new customer account with a hashed password.
func (s *CustomerService) Register(ctx context.Context, input RegisterInput) (*domain.User, error) {
	if input.Email == "" {
		return nil, apperrors.InvalidInput("email is required")
	}
	if input.FirstName == "" {
		return nil, apperrors.InvalidInput("first name is required")
	}
	if input.LastName == "" {
		return nil, apperrors.InvalidInput("last name is required")
	}
	if err := validatePassword(input.Password); err != nil {
		return nil, err
	}

	hashed, err := hashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	user := &domain.User{
		ID:           uuid.New().String(),
		Email:        pin.Normalize(input.Email),
		PasswordHash: hashed,
		FirstName:    input.FirstName,
		LastName:     input.LastName,
		Role:         domain.RoleCustomer,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.audit.CustomerRegistered(ctx, user)
	s.logger.InfoContext(ctx, "customer registered",
		slog.String("user_id", user.ID),
		slog.String("email", user.Email),
	)

	return user, nil
}

// Login authenticates a customer with email and password. Failed attempts
// count against the caller IP's login budget and accrue a progressive delay;
// a successful login clears the counter.
func (s *CustomerService) Login(ctx context.Context, input LoginInput, ip string) (*domain.User, error) {
	if input.Email == "" {
		return nil, apperrors.InvalidInput("email is required")
	}
	if input.Password == "" {
		return nil, apperrors.InvalidInput("password is required")
	}

	if err := s.limits.Check(ratelimit.ClassLogin, ip); err != nil {
		s.audit.Lockout(ctx, string(ratelimit.ClassLogin), ip)
		return nil, err
	}
	if err := s.limits.Delay(ctx, ratelimit.ClassLogin, ip); err != nil {
		return nil, fmt.Errorf("login delay: %w", err)
	}

	user, err := s.users.GetByEmail(ctx, input.Email)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("get user: %w", err)
		}
		return nil, s.failLogin(ctx, ip, "password", "unknown_email")
	}

	if user.Role != domain.RoleCustomer {
		s.limits.Fail(ratelimit.ClassLogin, ip)
		s.audit.LoginFailed(ctx, domain.DomainCustomer, ip, "password", "wrong_login_type")
		return nil, apperrors.WrongLoginType()
	}
	if !user.IsActive || !user.HasPassword() || !checkPassword(user.PasswordHash, input.Password) {
		return nil, s.failLogin(ctx, ip, "password", "invalid_credentials")
	}

	return s.completeLogin(ctx, user, ip, "password")
}

// SendPin issues a one-time login PIN and delivers it to the customer. The
// response is identical whether or not the email maps to an account, so the
// endpoint cannot be used to enumerate users.
func (s *CustomerService) SendPin(ctx context.Context, email, ip string) error {
	if email == "" {
		return apperrors.InvalidInput("email is required")
	}

	if err := s.limits.Check(ratelimit.ClassPasswordReset, ip); err != nil {
		s.audit.Lockout(ctx, string(ratelimit.ClassPasswordReset), ip)
		return err
	}
	s.limits.Fail(ratelimit.ClassPasswordReset, ip)

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil || user.Role != domain.RoleCustomer || !user.IsActive {
		// The caller still gets the uniform accepted response, but a store
		// failure is not an unknown email and must surface in the logs.
		if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
			s.logger.ErrorContext(ctx, "pin lookup failed",
				slog.String("ip", ip),
				slog.String("error", err.Error()),
			)
			return nil
		}
		s.logger.InfoContext(ctx, "pin requested for unknown or ineligible email",
			slog.String("ip", ip),
		)
		return nil
	}

	code, err := s.pins.Issue(ctx, user.Email)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to issue pin",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
		return nil
	}
	if err := s.sender.SendLoginPin(ctx, user.Email, code); err != nil {
		s.logger.ErrorContext(ctx, "failed to deliver pin",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

// LoginWithPin authenticates a customer with a one-time PIN. The PIN is
// consumed on success and dead afterwards.
func (s *CustomerService) LoginWithPin(ctx context.Context, email, code, ip string) (*domain.User, error) {
	if email == "" {
		return nil, apperrors.InvalidInput("email is required")
	}
	if code == "" {
		return nil, apperrors.InvalidInput("pin is required")
	}

	if err := s.limits.Check(ratelimit.ClassLogin, ip); err != nil {
		s.audit.Lockout(ctx, string(ratelimit.ClassLogin), ip)
		return nil, err
	}
	if err := s.limits.Delay(ctx, ratelimit.ClassLogin, ip); err != nil {
		return nil, fmt.Errorf("login delay: %w", err)
	}

	if err := s.pins.Verify(ctx, email, code); err != nil {
		s.limits.Fail(ratelimit.ClassLogin, ip)
		s.audit.LoginFailed(ctx, domain.DomainCustomer, ip, "pin", "invalid_pin")
		return nil, err
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("get user: %w", err)
		}
		return nil, s.failLogin(ctx, ip, "pin", "unknown_email")
	}
	if user.Role != domain.RoleCustomer {
		s.limits.Fail(ratelimit.ClassLogin, ip)
		s.audit.LoginFailed(ctx, domain.DomainCustomer, ip, "pin", "wrong_login_type")
		return nil, apperrors.WrongLoginType()
	}
	if !user.IsActive {
		return nil, s.failLogin(ctx, ip, "pin", "inactive_account")
	}

	return s.completeLogin(ctx, user, ip, "pin")
}

// GetProfile returns the customer's profile for the session check endpoint.
func (s *CustomerService) GetProfile(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.NotFound("user", userID)
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

func (s *CustomerService) failLogin(ctx context.Context, ip, method, reason string) error {
	s.limits.Fail(ratelimit.ClassLogin, ip)
	s.audit.LoginFailed(ctx, domain.DomainCustomer, ip, method, reason)
	loginsTotal.WithLabelValues(string(domain.DomainCustomer), "failure").Inc()
	return apperrors.InvalidCredentials()
}

func (s *CustomerService) completeLogin(ctx context.Context, user *domain.User, ip, method string) (*domain.User, error) {
	s.limits.Clear(ratelimit.ClassLogin, ip)
	loginsTotal.WithLabelValues(string(domain.DomainCustomer), "success").Inc()

	if err := s.users.RecordLogin(ctx, user.ID); err != nil {
		s.logger.WarnContext(ctx, "failed to record login time",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	s.audit.LoginSucceeded(ctx, domain.DomainCustomer, user.ID, ip, method)
	s.logger.InfoContext(ctx, "customer logged in",
		slog.String("user_id", user.ID),
		slog.String("method", method),
	)
	return user, nil
}
