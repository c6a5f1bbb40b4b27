// Package event publishes security audit events to Kafka. Events carry IPs,
// realms, and outcomes, never credential material: no passwords, PINs, or
// session IDs.
package event

import (
	"context"
	"log/slog"
	"time"

	"github.com/medusa2112/HealiosHealth-sub005/internal/domain"
	"github.com/medusa2112/HealiosHealth-sub005/pkg/kafka"
)

// Audit topic names, one stream per event family.
const (
	TopicCustomerRegistered  = "storefront.auth.customer.registered"
	TopicLoginSucceeded      = "storefront.auth.login.succeeded"
	TopicLoginFailed         = "storefront.auth.login.failed"
	TopicLockout             = "storefront.auth.lockout"
	TopicCrossDomainRejected = "storefront.auth.cross_domain.rejected"
)

const source = "auth-service"

// Publisher abstracts the Kafka producer, letting tests capture events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *kafka.Event) error
}

// AuditProducer emits security audit events. Publishing is best-effort: a
// broker outage must never block or fail an auth request, so errors are
// logged and swallowed.
type AuditProducer struct {
	publisher Publisher
	logger    *slog.Logger
}

// NewAuditProducer creates an audit event producer.
func NewAuditProducer(publisher Publisher, logger *slog.Logger) *AuditProducer {
	return &AuditProducer{
		publisher: publisher,
		logger:    logger.With(slog.String("component", "audit")),
	}
}

// RegisteredData is the payload of a customer registration event.
type RegisteredData struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

// LoginData is the payload of a login outcome event.
type LoginData struct {
	Domain   string    `json:"domain"`
	UserID   string    `json:"user_id,omitempty"`
	IP       string    `json:"ip"`
	Method   string    `json:"method"` // password or pin
	Reason   string    `json:"reason,omitempty"`
	At       time.Time `json:"at"`
	Endpoint string    `json:"endpoint,omitempty"`
}

// LockoutData is the payload of a rate-limit lockout event.
type LockoutData struct {
	Class string    `json:"class"`
	IP    string    `json:"ip"`
	At    time.Time `json:"at"`
}

// CrossDomainData is the payload of a cross-realm credential rejection.
type CrossDomainData struct {
	Presented string    `json:"presented_domain"`
	Required  string    `json:"required_domain"`
	IP        string    `json:"ip"`
	Path      string    `json:"path"`
	At        time.Time `json:"at"`
}

// CustomerRegistered emits a registration event.
func (p *AuditProducer) CustomerRegistered(ctx context.Context, user *domain.User) {
	p.emit(ctx, TopicCustomerRegistered, "auth.customer.registered", user.ID, "user", RegisteredData{
		UserID: user.ID,
		Email:  user.Email,
	})
}

// LoginSucceeded emits a successful login event.
func (p *AuditProducer) LoginSucceeded(ctx context.Context, d domain.AuthDomain, userID, ip, method string) {
	p.emit(ctx, TopicLoginSucceeded, "auth.login.succeeded", userID, "user", LoginData{
		Domain: string(d),
		UserID: userID,
		IP:     ip,
		Method: method,
		At:     time.Now().UTC(),
	})
}

// LoginFailed emits a failed login event. No email or credential material is
// included: failed attempts are keyed by IP only.
func (p *AuditProducer) LoginFailed(ctx context.Context, d domain.AuthDomain, ip, method, reason string) {
	p.emit(ctx, TopicLoginFailed, "auth.login.failed", ip, "ip", LoginData{
		Domain: string(d),
		IP:     ip,
		Method: method,
		Reason: reason,
		At:     time.Now().UTC(),
	})
}

// Lockout emits a rate-limit lockout event.
func (p *AuditProducer) Lockout(ctx context.Context, class, ip string) {
	p.emit(ctx, TopicLockout, "auth.lockout", ip, "ip", LockoutData{
		Class: class,
		IP:    ip,
		At:    time.Now().UTC(),
	})
}

// CrossDomainRejected emits an event for a credential presented against the
// wrong realm.
func (p *AuditProducer) CrossDomainRejected(ctx context.Context, presented, required domain.AuthDomain, ip, path string) {
	p.emit(ctx, TopicCrossDomainRejected, "auth.cross_domain.rejected", ip, "ip", CrossDomainData{
		Presented: string(presented),
		Required:  string(required),
		IP:        ip,
		Path:      path,
		At:        time.Now().UTC(),
	})
}

func (p *AuditProducer) emit(ctx context.Context, topic, eventType, aggregateID, aggregateType string, data any) {
	if p.publisher == nil {
		return
	}

	ev, err := kafka.NewEvent(eventType, aggregateID, aggregateType, source, data)
	if err != nil {
		p.logger.Error("failed to build audit event", slog.String("type", eventType), slog.String("error", err.Error()))
		return
	}
	if err := p.publisher.Publish(ctx, topic, ev); err != nil {
		p.logger.Error("failed to publish audit event", slog.String("topic", topic), slog.String("error", err.Error()))
	}
}
