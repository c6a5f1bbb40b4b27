package session

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/medusa2112/HealiosHealth-sub005/internal/domain"
)

// sessionIDBytes is the entropy of a session ID. 16 bytes = 128 bits.
const sessionIDBytes = 16

var errBadCookieValue = errors.New("malformed or tampered session cookie")

// newSessionID returns a fresh random session ID, base64url without padding.
func newSessionID() (string, error) {
	buf := make([]byte, sessionIDBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// sign computes the realm-bound MAC over a session ID. Binding the realm into
// the MAC input means a customer cookie value replayed against the admin
// realm fails verification even before the store is consulted.
func sign(secret []byte, d domain.AuthDomain, id string) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(d))
	mac.Write([]byte{':'})
	mac.Write([]byte(id))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// encodeValue builds the cookie value "<id>.<mac>".
func encodeValue(secret []byte, d domain.AuthDomain, id string) string {
	return id + "." + sign(secret, d, id)
}

// decodeValue verifies a cookie value and returns the embedded session ID.
// The comparison is constant-time.
func decodeValue(secret []byte, d domain.AuthDomain, value string) (string, error) {
	id, mac, ok := strings.Cut(value, ".")
	if !ok || id == "" || mac == "" {
		return "", errBadCookieValue
	}
	if !hmac.Equal([]byte(mac), []byte(sign(secret, d, id))) {
		return "", errBadCookieValue
	}
	return id, nil
}
