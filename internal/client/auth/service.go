// Package auth manages the clinician's session: login against the remote system,
// the token sealed at rest and the local data key derived from the password.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/iudanet/medsync/internal/client/storage"
	"github.com/iudanet/medsync/internal/crypto"
	"github.com/iudanet/medsync/internal/validation"
	"github.com/iudanet/medsync/pkg/api"
)

var (
	// ErrNotAuthenticated - сессии нет или она не разблокирована
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrInvalidPassword - пароль не подходит к сохраненной сессии
	ErrInvalidPassword = errors.New("invalid password")
)

// Session - контекст пользователя, который ядро синхронизации читает, но не меняет
type Session struct {
	UserID    string
	Username  string
	ScopeID   string // ScopeID больница пользователя
	Role      string
	Token     string
	ExpiresAt int64 // unix seconds
}

// Expired reports whether the access token has expired at now.
// С истекшим токеном можно работать офлайн, но синхронизация потребует входа.
func (s *Session) Expired(now time.Time) bool {
	return s.ExpiresAt > 0 && now.Unix() >= s.ExpiresAt
}

// Service предоставляет функции авторизации
type Service struct {
	remote  Remote
	tokens  *TokenStore
	keys    KeyHolder
	logger  *slog.Logger
	now     func() time.Time
	session *Session
	mu      sync.RWMutex
}

// NewService создает новый сервис авторизации
func NewService(remote Remote, authStorage storage.AuthStorage, keys KeyHolder, logger *slog.Logger) *Service {
	return &Service{
		remote: remote,
		tokens: NewTokenStore(authStorage),
		keys:   keys,
		logger: logger,
		now:    time.Now,
	}
}

// Register регистрирует сотрудника больницы. Сессия не создается: нужен Login.
func (s *Service) Register(ctx context.Context, username, password, hospitalID, role string) (*api.RegisterResponse, error) {
	if err := validation.ValidateUsername(username); err != nil {
		return nil, fmt.Errorf("invalid username: %w", err)
	}
	if err := validation.ValidatePassword(password); err != nil {
		return nil, fmt.Errorf("invalid password: %w", err)
	}
	if err := validation.ValidateHospitalID(hospitalID); err != nil {
		return nil, fmt.Errorf("invalid hospital id: %w", err)
	}
	if err := validation.ValidateRole(role); err != nil {
		return nil, fmt.Errorf("invalid role: %w", err)
	}

	resp, err := s.remote.Register(ctx, api.RegisterRequest{
		Username:   username,
		Password:   password,
		HospitalID: hospitalID,
		Role:       role,
	})
	if err != nil {
		return nil, fmt.Errorf("registration failed: %w", err)
	}
	return resp, nil
}

// Login выполняет вход на сервере, сохраняет зашифрованный токен и открывает
// локальное хранилище ключом, выведенным из пароля.
func (s *Service) Login(ctx context.Context, username, password string) (*Session, error) {
	if err := validation.ValidateUsername(username); err != nil {
		return nil, fmt.Errorf("invalid username: %w", err)
	}
	if password == "" {
		return nil, fmt.Errorf("invalid password: password cannot be empty")
	}

	resp, err := s.remote.Login(ctx, api.LoginRequest{Username: username, Password: password})
	if err != nil {
		return nil, fmt.Errorf("login failed: %w", err)
	}

	// Соль сохраняется между входами: иначе уже зашифрованные данные не прочитать
	salt, err := s.localSalt(ctx, username)
	if err != nil {
		return nil, err
	}
	key, err := crypto.DeriveLocalKeyFromBase64Salt(password, username, salt)
	if err != nil {
		return nil, fmt.Errorf("failed to derive local key: %w", err)
	}

	data := &storage.AuthData{
		Username:    username,
		UserID:      resp.UserID,
		HospitalID:  resp.HospitalID,
		Role:        resp.Role,
		AccessToken: resp.AccessToken,
		LocalSalt:   salt,
		ExpiresAt:   s.expiresAt(resp),
	}
	if err := s.tokens.Save(ctx, data, key); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	session, err := s.open(data, key)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Logged in", "username", username, "hospital_id", session.ScopeID, "role", session.Role)
	return session, nil
}

// Unlock открывает сохраненную сессию паролем без обращения к серверу
func (s *Service) Unlock(ctx context.Context, password string) (*Session, error) {
	sealed, err := s.tokens.LoadSealed(ctx)
	if errors.Is(err, storage.ErrAuthNotFound) {
		return nil, ErrNotAuthenticated
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	key, err := crypto.DeriveLocalKeyFromBase64Salt(password, sealed.Username, sealed.LocalSalt)
	if err != nil {
		return nil, fmt.Errorf("failed to derive local key: %w", err)
	}
	data, err := s.tokens.Load(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPassword, err)
	}

	session, err := s.open(data, key)
	if err != nil {
		return nil, err
	}
	if session.Expired(s.now()) {
		s.logger.Warn("Session token expired, sync requires login", "username", session.Username)
	}
	return session, nil
}

// Logout удаляет локальную сессию. Данные и очередь остаются: они зашифрованы
// и будут доступны после следующего входа.
func (s *Service) Logout(ctx context.Context) error {
	if err := s.tokens.Delete(ctx); err != nil && !errors.Is(err, storage.ErrAuthNotFound) {
		return fmt.Errorf("failed to delete local auth data: %w", err)
	}

	s.mu.Lock()
	s.session = nil
	s.mu.Unlock()
	s.remote.SetToken("")

	s.logger.Info("Logged out")
	return nil
}

// Session returns the unlocked session.
func (s *Service) Session() (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return nil, ErrNotAuthenticated
	}
	cp := *s.session
	return &cp, nil
}

// Username returns the stored username without unlocking, for password prompts.
func (s *Service) Username(ctx context.Context) (string, error) {
	sealed, err := s.tokens.LoadSealed(ctx)
	if errors.Is(err, storage.ErrAuthNotFound) {
		return "", ErrNotAuthenticated
	}
	if err != nil {
		return "", err
	}
	return sealed.Username, nil
}

// IsAuthenticated reports whether a non-expired session is stored.
func (s *Service) IsAuthenticated(ctx context.Context) (bool, error) {
	return s.tokens.IsAuthenticated(ctx)
}

func (s *Service) open(data *storage.AuthData, key []byte) (*Session, error) {
	if err := s.keys.SetEncryptionKey(key); err != nil {
		return nil, fmt.Errorf("failed to unlock local storage: %w", err)
	}
	s.remote.SetToken(data.AccessToken)

	session := &Session{
		UserID:    data.UserID,
		Username:  data.Username,
		ScopeID:   data.HospitalID,
		Role:      data.Role,
		Token:     data.AccessToken,
		ExpiresAt: data.ExpiresAt,
	}
	s.mu.Lock()
	s.session = session
	s.mu.Unlock()

	cp := *session
	return &cp, nil
}

func (s *Service) localSalt(ctx context.Context, username string) (string, error) {
	existing, err := s.tokens.LoadSealed(ctx)
	switch {
	case err == nil && existing.Username == username && existing.LocalSalt != "":
		return existing.LocalSalt, nil
	case err != nil && !errors.Is(err, storage.ErrAuthNotFound):
		return "", fmt.Errorf("failed to load session: %w", err)
	}

	salt, err := crypto.GenerateSaltBase64()
	if err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}
	return salt, nil
}

// expiresAt берет exp из токена; подпись проверяет сервер, клиенту ключ не нужен
func (s *Service) expiresAt(resp *api.TokenResponse) int64 {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(resp.AccessToken, &claims); err == nil && claims.ExpiresAt != nil {
		return claims.ExpiresAt.Unix()
	}
	return s.now().Add(time.Duration(resp.ExpiresIn) * time.Second).Unix()
}
