package security

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("missing token")
	ErrInvalidToken = errors.New("invalid token")
)

// AuthManager verifies HS256 bearer tokens whose subject is the owner id.
// Issuing tokens for real users is out of scope; Mint exists for the CLI and tests.
type AuthManager struct {
	secret []byte
	now    func() time.Time
}

func NewAuthManager(secret string) *AuthManager {
	return &AuthManager{secret: []byte(secret), now: time.Now}
}

func (a *AuthManager) Mint(ownerID string, ttl time.Duration) (string, error) {
	if ownerID == "" {
		return "", errors.New("empty subject")
	}
	now := a.now()
	claims := jwt.RegisteredClaims{
		Subject:   ownerID,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// OwnerFromRequest reads "Authorization: Bearer <jwt>" and returns the subject.
func (a *AuthManager) OwnerFromRequest(r *http.Request) (string, error) {
	hdr := r.Header.Get("Authorization")
	if len(hdr) < 7 || !strings.EqualFold(hdr[:7], "bearer ") {
		return "", ErrMissingToken
	}
	return a.Parse(strings.TrimSpace(hdr[7:]))
}

func (a *AuthManager) Parse(tok string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	tkn, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(a.now))
	if err != nil || !tkn.Valid {
		return "", ErrInvalidToken
	}
	if claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
