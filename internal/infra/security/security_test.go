package security

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenCipher(t *testing.T) {
	svc, err := NewTokenCipher("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)

	t.Run("should round trip and randomize nonces", func(t *testing.T) {
		a, err := svc.Encrypt("ghp_secret")
		require.NoError(t, err)
		b, err := svc.Encrypt("ghp_secret")
		require.NoError(t, err)
		assert.NotEqual(t, a, b)

		assert.True(t, strings.HasPrefix(a, "v1:"))

		pt, err := svc.Decrypt(a)
		require.NoError(t, err)
		assert.Equal(t, "ghp_secret", pt)
	})

	t.Run("should pass empty strings through", func(t *testing.T) {
		ct, err := svc.Encrypt("")
		require.NoError(t, err)
		assert.Empty(t, ct)
		pt, err := svc.Decrypt("")
		require.NoError(t, err)
		assert.Empty(t, pt)
	})

	t.Run("should reject tampered input", func(t *testing.T) {
		_, err := svc.Decrypt("v1:AAAA")
		assert.ErrorIs(t, err, ErrMalformedToken)
		_, err = svc.Decrypt("v1:not base64!")
		assert.ErrorIs(t, err, ErrMalformedToken)
		_, err = svc.Decrypt("plaintext-token")
		assert.ErrorIs(t, err, ErrMalformedToken, "unversioned values are rejected")

		sealed, err := svc.Encrypt("ghp_secret")
		require.NoError(t, err)
		tampered := []byte(sealed)
		if tampered[5] == 'A' {
			tampered[5] = 'B'
		} else {
			tampered[5] = 'A'
		}
		_, err = svc.Decrypt(string(tampered))
		assert.Error(t, err)

		other, err := NewTokenCipher("fedcba9876543210fedcba9876543210")
		require.NoError(t, err)
		_, err = other.Decrypt(sealed)
		assert.Error(t, err, "a different key cannot open the token")
	})

	t.Run("should reject bad key sizes", func(t *testing.T) {
		_, err := NewTokenCipher("short")
		assert.Error(t, err)
	})
}

func TestAuthManager(t *testing.T) {
	a := NewAuthManager("secret")

	t.Run("should accept a minted token", func(t *testing.T) {
		tok, err := a.Mint("owner-1", time.Hour)
		require.NoError(t, err)

		r := httptest.NewRequest("GET", "/", nil)
		r.Header.Set("Authorization", "Bearer "+tok)
		owner, err := a.OwnerFromRequest(r)
		require.NoError(t, err)
		assert.Equal(t, "owner-1", owner)
	})

	t.Run("should reject missing and foreign tokens", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/", nil)
		_, err := a.OwnerFromRequest(r)
		assert.ErrorIs(t, err, ErrMissingToken)

		other, _ := NewAuthManager("other").Mint("owner-1", time.Hour)
		_, err = a.Parse(other)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("should reject expired tokens", func(t *testing.T) {
		past := NewAuthManager("secret")
		past.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
		tok, err := past.Mint("owner-1", time.Hour)
		require.NoError(t, err)
		_, err = a.Parse(tok)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("should reject tokens without a subject", func(t *testing.T) {
		tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{}).SignedString([]byte("secret"))
		require.NoError(t, err)
		_, err = a.Parse(tok)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}
