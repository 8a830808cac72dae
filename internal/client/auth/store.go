package auth

import (
	"context"
	"fmt"

	"github.com/iudanet/medsync/internal/client/storage"
	"github.com/iudanet/medsync/internal/crypto"
)

// TokenStore - слой шифрования между сервисом и storage.AuthStorage.
// Токен сохраняется зашифрованным, остальные поля открыты: username и соль
// нужны до того, как известен ключ.
type TokenStore struct {
	storage storage.AuthStorage
}

// NewTokenStore creates a TokenStore.
func NewTokenStore(storage storage.AuthStorage) *TokenStore {
	return &TokenStore{storage: storage}
}

// Save шифрует токен ключом key и сохраняет данные сессии
func (s *TokenStore) Save(ctx context.Context, auth *storage.AuthData, key []byte) error {
	if auth == nil {
		return fmt.Errorf("auth data is nil")
	}

	c, err := crypto.NewCipher(key)
	if err != nil {
		return err
	}
	sealed, err := c.SealToBase64(auth.AccessToken)
	if err != nil {
		return fmt.Errorf("failed to encrypt access token: %w", err)
	}

	authCopy := *auth // входящую структуру не меняем
	authCopy.AccessToken = sealed
	return s.storage.SaveAuth(ctx, &authCopy)
}

// Load загружает данные сессии и расшифровывает токен
func (s *TokenStore) Load(ctx context.Context, key []byte) (*storage.AuthData, error) {
	stored, err := s.storage.GetAuth(ctx)
	if err != nil {
		return nil, err
	}

	c, err := crypto.NewCipher(key)
	if err != nil {
		return nil, err
	}
	token, err := c.OpenFromBase64(stored.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt access token: %w", err)
	}

	auth := *stored
	auth.AccessToken = token
	return &auth, nil
}

// LoadSealed returns the stored session with the token still encrypted.
func (s *TokenStore) LoadSealed(ctx context.Context) (*storage.AuthData, error) {
	return s.storage.GetAuth(ctx)
}

// Delete удаляет данные сессии
func (s *TokenStore) Delete(ctx context.Context) error {
	return s.storage.DeleteAuth(ctx)
}

// IsAuthenticated проверяет наличие неистекшей сессии
func (s *TokenStore) IsAuthenticated(ctx context.Context) (bool, error) {
	return s.storage.IsAuthenticated(ctx)
}
