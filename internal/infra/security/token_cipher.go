package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"weekly-snippets/internal/domain/ports/repository"
)

var _ repository.TokenCipher = (*TokenCipher)(nil)

// sealedPrefix tags the storage format so the key or cipher can be rotated
// without guessing what a stored value is.
const sealedPrefix = "v1:"

var ErrMalformedToken = errors.New("malformed sealed token")

// TokenCipher seals integration access tokens with AES-GCM before they reach
// storage. Stored form: "v1:" + base64(nonce || ciphertext). An empty token
// stays empty, which is how a disconnected integration is stored.
type TokenCipher struct {
	aead cipher.AEAD
}

// NewTokenCipher takes a raw AES-128/192/256 key.
func NewTokenCipher(key string) (*TokenCipher, error) {
	switch len(key) {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("token cipher key must be 16, 24, or 32 bytes; got %d", len(key))
	}
	block, err := aes.NewCipher([]byte(key))
	if err != nil {
		return nil, fmt.Errorf("token cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("token cipher: %w", err)
	}
	return &TokenCipher{aead: aead}, nil
}

func (c *TokenCipher) Encrypt(token string) (string, error) {
	if token == "" {
		return "", nil
	}
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("seal token: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(token), nil)
	return sealedPrefix + base64.RawStdEncoding.EncodeToString(sealed), nil
}

func (c *TokenCipher) Decrypt(stored string) (string, error) {
	if stored == "" {
		return "", nil
	}
	body, ok := strings.CutPrefix(stored, sealedPrefix)
	if !ok {
		return "", ErrMalformedToken
	}
	raw, err := base64.RawStdEncoding.DecodeString(body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	n := c.aead.NonceSize()
	if len(raw) <= n {
		return "", ErrMalformedToken
	}
	token, err := c.aead.Open(nil, raw[:n], raw[n:], nil)
	if err != nil {
		return "", fmt.Errorf("open token: %w", err)
	}
	return string(token), nil
}
