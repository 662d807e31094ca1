package integration

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrTokenExpired is returned when the configured API token has expired.
var ErrTokenExpired = errors.New("crm api token has expired")

// TokenSource supplies the bearer token for CRM API requests. An empty
// token sends the request unauthenticated.
type TokenSource interface {
	Token() (string, error)
}

// StaticToken serves a fixed token. When the token is a JWT its exp claim
// is checked before every request so an expired session fails locally
// instead of as a 401 from every fan-out call. Opaque tokens pass through.
type StaticToken struct {
	token string
	now   func() time.Time
}

// NewStaticToken creates a StaticToken for token.
func NewStaticToken(token string) *StaticToken {
	return &StaticToken{token: strings.TrimSpace(token), now: time.Now}
}

// Token returns the token, or ErrTokenExpired.
func (s *StaticToken) Token() (string, error) {
	if s.token == "" {
		return "", nil
	}
	exp, ok := tokenExpiry(s.token)
	if ok && !s.now().Before(exp) {
		return "", fmt.Errorf("%w (expired %s)", ErrTokenExpired, exp.Format(time.RFC3339))
	}
	return s.token, nil
}

// Subject returns the sub claim of a JWT token, or "".
func (s *StaticToken) Subject() string {
	claims, ok := parseClaims(s.token)
	if !ok {
		return ""
	}
	sub, _ := claims.GetSubject()
	return sub
}

// tokenExpiry reads the exp claim without verifying the signature. The CRM
// verifies it; the client only needs the expiry.
func tokenExpiry(token string) (time.Time, bool) {
	claims, ok := parseClaims(token)
	if !ok {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

func parseClaims(token string) (jwt.MapClaims, bool) {
	if strings.Count(token, ".") != 2 {
		return nil, false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, false
	}
	return claims, true
}
