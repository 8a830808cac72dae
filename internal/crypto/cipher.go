package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

const (
	// NonceSize - размер nonce для AES-GCM (12 bytes стандартный размер)
	NonceSize = 12
	// KeySize - длина ключа AES-256
	KeySize = 32
)

// Cipher шифрует значения AES-256-GCM одним ключом.
// AEAD создается один раз: локальное хранилище шифрует каждую запись.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher creates a Cipher for a 32-byte key.
func NewCipher(key []byte) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d", KeySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &Cipher{aead: aead}, nil
}

// Seal шифрует plaintext. aad (associated data) не шифруется, но аутентифицируется:
// значение, перенесенное под другой ключ, не расшифруется.
// Формат результата: nonce (12 bytes) + ciphertext + auth_tag (16 bytes)
func (c *Cipher) Seal(plaintext, aad []byte) ([]byte, error) {
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("plaintext cannot be empty")
	}

	nonce := make([]byte, NonceSize, NonceSize+len(plaintext)+c.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	// Seal дописывает ciphertext и tag сразу за nonce
	return c.aead.Seal(nonce, nonce, plaintext, aad), nil
}

// Open reverses Seal; aad must match the value given to Seal.
func (c *Cipher) Open(sealed, aad []byte) ([]byte, error) {
	if len(sealed) < NonceSize+c.aead.Overhead() {
		return nil, fmt.Errorf("encrypted data too short")
	}

	plaintext, err := c.aead.Open(nil, sealed[:NonceSize], sealed[NonceSize:], aad)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: authentication failed or corrupted data: %w", err)
	}
	return plaintext, nil
}

// SealToBase64 шифрует строку и возвращает Base64; удобно для хранения в JSON
func (c *Cipher) SealToBase64(plaintext string) (string, error) {
	sealed, err := c.Seal([]byte(plaintext), nil)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// OpenFromBase64 reverses SealToBase64.
func (c *Cipher) OpenFromBase64(encoded string) (string, error) {
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("failed to decode base64: %w", err)
	}
	plaintext, err := c.Open(sealed, nil)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}
