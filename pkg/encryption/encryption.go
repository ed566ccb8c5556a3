// Package encryption seals profile field values at rest
package encryption

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

// ErrInvalidCiphertext is returned for values that were not produced by the encryptor
var ErrInvalidCiphertext = errors.New("invalid ciphertext")

const sealedPrefix = "v1."

// Encryptor converts JSON values to opaque strings and back
type Encryptor interface {
	Encrypt(value any) (string, error)
	Decrypt(sealed string) (any, error)
}

// Sealer encrypts the JSON encoding of a value with XChaCha20-Poly1305.
// Output is "v1." followed by base64url(nonce || ciphertext).
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer creates a Sealer from a 32-byte key
func NewSealer(key []byte) (*Sealer, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("create XChaCha20-Poly1305: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

// NewSealerFromHex creates a Sealer from a hex-encoded 32-byte key
func NewSealerFromHex(hexKey string) (*Sealer, error) {
	key, err := hex.DecodeString(strings.TrimSpace(hexKey))
	if err != nil {
		return nil, fmt.Errorf("invalid hex encryption key: %w", err)
	}
	return NewSealer(key)
}

func (s *Sealer) Encrypt(value any) (string, error) {
	plaintext, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("encode value: %w", err)
	}

	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plaintext)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := s.aead.Seal(nonce, nonce, plaintext, nil)
	return sealedPrefix + base64.RawURLEncoding.EncodeToString(sealed), nil
}

func (s *Sealer) Decrypt(sealed string) (any, error) {
	encoded, ok := strings.CutPrefix(sealed, sealedPrefix)
	if !ok {
		return nil, fmt.Errorf("%w: missing version prefix", ErrInvalidCiphertext)
	}
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCiphertext, err)
	}
	if len(raw) < s.aead.NonceSize()+s.aead.Overhead() {
		return nil, fmt.Errorf("%w: too short", ErrInvalidCiphertext)
	}

	nonce, ciphertext := raw[:s.aead.NonceSize()], raw[s.aead.NonceSize():]
	plaintext, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCiphertext, err)
	}

	return decodeJSON(plaintext)
}

// Plaintext stores the JSON encoding as-is. Local development only.
type Plaintext struct{}

func (Plaintext) Encrypt(value any) (string, error) {
	b, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("encode value: %w", err)
	}
	return string(b), nil
}

func (Plaintext) Decrypt(sealed string) (any, error) {
	v, err := decodeJSON([]byte(sealed))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCiphertext, err)
	}
	return v, nil
}

func decodeJSON(b []byte) (any, error) {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, fmt.Errorf("decode value: %w", err)
	}
	return v, nil
}
