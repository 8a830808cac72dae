// Package jwt issues and validates the access tokens of the records API.
// Токен несет больницу пользователя: все запросы к записям ограничены ею.
package jwt

import (
	"context"
	"errors"
	"fmt"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"

	"github.com/iudanet/medsync/internal/models"
)

// Issuer - значение claim iss
const Issuer = "medsync"

// ErrInvalidToken - токен не прошел проверку
var ErrInvalidToken = errors.New("invalid token")

// Claims represents JWT claims
type Claims struct {
	UserID     string `json:"user_id"`
	Username   string `json:"username"`
	HospitalID string `json:"hospital_id"`
	Role       string `json:"role"`
	gojwt.RegisteredClaims
}

// Manager provides JWT token generation and validation
type Manager struct {
	now    func() time.Time
	secret []byte
	ttl    time.Duration
}

// NewManager creates a new JWT manager
// secret should be a cryptographically secure random string
func NewManager(secret string, accessTTL time.Duration) *Manager {
	return &Manager{
		secret: []byte(secret),
		ttl:    accessTTL,
		now:    time.Now,
	}
}

// TTL returns the access token lifetime.
func (m *Manager) TTL() time.Duration { return m.ttl }

// Issue создает access token для пользователя; возвращает токен и срок жизни в секундах
func (m *Manager) Issue(user *models.User) (string, int64, error) {
	now := m.now()

	claims := Claims{
		UserID:     user.ID,
		Username:   user.Username,
		HospitalID: user.HospitalID,
		Role:       user.Role,
		RegisteredClaims: gojwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    Issuer,
			ExpiresAt: gojwt.NewNumericDate(now.Add(m.ttl)),
			IssuedAt:  gojwt.NewNumericDate(now),
			NotBefore: gojwt.NewNumericDate(now),
		},
	}

	token, err := gojwt.NewWithClaims(gojwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", 0, fmt.Errorf("failed to sign token: %w", err)
	}

	return token, int64(m.ttl.Seconds()), nil
}

// Validate проверяет подпись, срок действия и наличие больницы
func (m *Manager) Validate(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := gojwt.ParseWithClaims(token, claims,
		func(t *gojwt.Token) (any, error) {
			return m.secret, nil
		},
		gojwt.WithValidMethods([]string{gojwt.SigningMethodHS256.Alg()}),
		gojwt.WithIssuer(Issuer),
		gojwt.WithExpirationRequired(),
		gojwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !parsed.Valid || claims.UserID == "" || claims.HospitalID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

type claimsKey struct{}

// WithClaims returns a context carrying the authenticated claims.
func WithClaims(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, c)
}

// FromContext извлекает claims, положенные middleware авторизации
func FromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(*Claims)
	return c, ok && c != nil
}
