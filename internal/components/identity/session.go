// Package identity resolves the caller's wallet from the signed session
// cookie or from an external identity lookup endpoint.
package identity

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/hkdf"
)

// DefaultCookieName is the session cookie set by the zkLogin flow.
const DefaultCookieName = "zklogin-session"

// MinSecretLength is the shortest accepted session secret.
const MinSecretLength = 32

const sessionKeyInfo = "tanzanite-session-v1"

var (
	// ErrNoIdentity means no resolvable identity was presented.
	ErrNoIdentity = errors.New("no resolvable identity")

	// ErrInvalidSession means a session token was presented but rejected.
	ErrInvalidSession = errors.New("invalid session")
)

// Identity is the resolved caller.
type Identity struct {
	Wallet string `json:"wallet"`
	Email  string `json:"email,omitempty"`
}

type sessionClaims struct {
	Wallet string `json:"wallet"`
	Email  string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Sessions issues and verifies HS256 session tokens. The signing key is
// derived from the configured secret with HKDF-SHA256.
type Sessions struct {
	key        []byte
	cookieName string
	now        func() time.Time
}

// NewSessions derives the signing key from secret.
func NewSessions(secret, cookieName string) (*Sessions, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("session secret must be at least %d characters", MinSecretLength)
	}
	if cookieName == "" {
		cookieName = DefaultCookieName
	}
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(sessionKeyInfo)), key); err != nil {
		return nil, fmt.Errorf("derive session key: %w", err)
	}
	return &Sessions{key: key, cookieName: cookieName, now: time.Now}, nil
}

// CookieName returns the session cookie name.
func (s *Sessions) CookieName() string { return s.cookieName }

// Issue signs a session token for id valid for ttl.
func (s *Sessions) Issue(id Identity, ttl time.Duration) (string, error) {
	if id.Wallet == "" {
		return "", errors.New("session wallet is required")
	}
	now := s.now()
	claims := sessionClaims{
		Wallet: id.Wallet,
		Email:  id.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
}

// Parse verifies token and returns its identity.
func (s *Sessions) Parse(token string) (*Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrNoIdentity
	}
	var claims sessionClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	if claims.Wallet == "" {
		return nil, fmt.Errorf("%w: wallet claim missing", ErrInvalidSession)
	}
	return &Identity{Wallet: claims.Wallet, Email: claims.Email}, nil
}

// Resolve reads the session cookie of r.
func (s *Sessions) Resolve(r *http.Request) (*Identity, error) {
	c, err := r.Cookie(s.cookieName)
	if err != nil || c.Value == "" {
		return nil, ErrNoIdentity
	}
	return s.Parse(c.Value)
}

// Cookie returns the session cookie carrying token.
func (s *Sessions) Cookie(token string, ttl time.Duration, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     s.cookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}
