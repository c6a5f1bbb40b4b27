package domain

import (
	"net/http"
)

// AuthDomain identifies one of the two fully isolated authentication realms.
// Customer and admin sessions never share cookies, stores, or middleware; a
// credential issued in one realm is meaningless in the other.
type AuthDomain string

const (
	// DomainCustomer is the storefront shopper realm.
	DomainCustomer AuthDomain = "customer"
	// DomainAdmin is the back-office operator realm.
	DomainAdmin AuthDomain = "admin"
)

// Valid reports whether the value is one of the two known realms.
func (d AuthDomain) Valid() bool {
	return d == DomainCustomer || d == DomainAdmin
}

// SessionCookie returns the session cookie name for the realm.
func (d AuthDomain) SessionCookie() string {
	if d == DomainAdmin {
		return "hh_admin_sess"
	}
	return "hh_cust_sess"
}

// CSRFCookie returns the CSRF double-submit cookie name for the realm.
func (d AuthDomain) CSRFCookie() string {
	if d == DomainAdmin {
		return "csrf_admin"
	}
	return "csrf_cust"
}

// CookiePath returns the path attribute for all cookies issued in the realm.
// Admin cookies are scoped under /admin so browsers never send them with
// storefront requests.
func (d AuthDomain) CookiePath() string {
	if d == DomainAdmin {
		return "/admin"
	}
	return "/"
}

// SameSite returns the SameSite attribute for cookies issued in the realm.
func (d AuthDomain) SameSite() http.SameSite {
	if d == DomainAdmin {
		return http.SameSiteStrictMode
	}
	return http.SameSiteLaxMode
}

// Role returns the user role a session in this realm authenticates.
func (d AuthDomain) Role() string {
	if d == DomainAdmin {
		return RoleAdmin
	}
	return RoleCustomer
}
