// Package ratelimit provides per-IP request limiting in two flavors: a
// sliding-window failure tracker with progressive lockout for sensitive
// endpoints, and a token-bucket throttle for general API traffic.
package ratelimit

import (
	"time"
)

// Class names a limiter bucket. Each class keeps independent counters, so
// hammering the login endpoint does not consume the payment budget.
type Class string

const (
	ClassLogin         Class = "login"
	ClassAdminLogin    Class = "admin_login"
	ClassPasswordReset Class = "password_reset"
	ClassPayment       Class = "payment"
	ClassAPI           Class = "api"
	ClassUpload        Class = "upload"
)

// Policy bounds one class: at most MaxFailures strikes per Window, with a
// progressive per-attempt delay of BaseDelay times the strike count, capped
// at MaxDelay.
type Policy struct {
	Window      time.Duration
	MaxFailures int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultPolicies returns the standard per-class limits. Admin login is the
// tightest: fewer strikes, a longer window, and a steeper delay ramp.
func DefaultPolicies() map[Class]Policy {
	return map[Class]Policy{
		ClassLogin:         {Window: 15 * time.Minute, MaxFailures: 5, BaseDelay: 500 * time.Millisecond, MaxDelay: 5 * time.Second},
		ClassAdminLogin:    {Window: 30 * time.Minute, MaxFailures: 3, BaseDelay: time.Second, MaxDelay: 8 * time.Second},
		ClassPasswordReset: {Window: 15 * time.Minute, MaxFailures: 3, BaseDelay: time.Second, MaxDelay: 5 * time.Second},
		ClassPayment:       {Window: time.Hour, MaxFailures: 10, BaseDelay: 0, MaxDelay: 0},
		ClassAPI:           {Window: time.Minute, MaxFailures: 100, BaseDelay: 0, MaxDelay: 0},
		ClassUpload:        {Window: 10 * time.Minute, MaxFailures: 10, BaseDelay: 0, MaxDelay: 0},
	}
}
