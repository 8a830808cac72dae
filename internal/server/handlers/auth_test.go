package handlers

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/medsync/internal/models"
	"github.com/iudanet/medsync/internal/server/jwt"
	"github.com/iudanet/medsync/pkg/api"
)

func newAuthMux(t *testing.T) (*http.ServeMux, *jwt.Manager) {
	t.Helper()
	tokens := jwt.NewManager("0123456789abcdef0123456789abcdef", time.Hour)
	h := NewAuthHandler(discardLogger(), newStorage(t), tokens)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/auth/register", h.Register)
	mux.HandleFunc("POST /api/v1/auth/login", h.Login)
	return mux, tokens
}

func TestAuthHandler_Register(t *testing.T) {
	mux, _ := newAuthMux(t)

	tests := []struct {
		name       string
		body       any
		wantStatus int
		wantCode   string
	}{
		{
			name:       "success",
			body:       api.RegisterRequest{Username: "dr.grey", Password: "correct-horse-battery", HospitalID: "seattle-grace"},
			wantStatus: http.StatusCreated,
		},
		{
			name:       "duplicate username",
			body:       api.RegisterRequest{Username: "dr.grey", Password: "correct-horse-battery", HospitalID: "seattle-grace"},
			wantStatus: http.StatusConflict,
			wantCode:   api.CodeAlreadyExists,
		},
		{
			name:       "short password",
			body:       api.RegisterRequest{Username: "dr.yang", Password: "short", HospitalID: "seattle-grace"},
			wantStatus: http.StatusBadRequest,
			wantCode:   api.CodeValidation,
		},
		{
			name:       "missing hospital",
			body:       api.RegisterRequest{Username: "dr.yang", Password: "correct-horse-battery"},
			wantStatus: http.StatusBadRequest,
			wantCode:   api.CodeValidation,
		},
		{
			name:       "unknown role",
			body:       api.RegisterRequest{Username: "dr.yang", Password: "correct-horse-battery", HospitalID: "seattle-grace", Role: "janitor"},
			wantStatus: http.StatusBadRequest,
			wantCode:   api.CodeValidation,
		},
		{
			name:       "unknown field",
			body:       map[string]string{"username": "dr.yang", "hospital": "x"},
			wantStatus: http.StatusBadRequest,
			wantCode:   api.CodeBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, mux, nil, http.MethodPost, "/api/v1/auth/register", tt.body)
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, errorCode(t, rec))
				return
			}
			resp := decode[api.RegisterResponse](t, rec)
			assert.NotEmpty(t, resp.UserID)
		})
	}
}

func TestAuthHandler_Login(t *testing.T) {
	mux, tokens := newAuthMux(t)

	rec := do(t, mux, nil, http.MethodPost, "/api/v1/auth/register", api.RegisterRequest{
		Username:   "nurse.joy",
		Password:   "correct-horse-battery",
		HospitalID: "pewter-city",
		Role:       models.RoleNurse,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	userID := decode[api.RegisterResponse](t, rec).UserID

	t.Run("success", func(t *testing.T) {
		rec := do(t, mux, nil, http.MethodPost, "/api/v1/auth/login", api.LoginRequest{Username: "nurse.joy", Password: "correct-horse-battery"})
		require.Equal(t, http.StatusOK, rec.Code)

		resp := decode[api.TokenResponse](t, rec)
		assert.Equal(t, userID, resp.UserID)
		assert.Equal(t, "pewter-city", resp.HospitalID)
		assert.Equal(t, models.RoleNurse, resp.Role)
		assert.Equal(t, int64(time.Hour/time.Second), resp.ExpiresIn)

		claims, err := tokens.Validate(resp.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, userID, claims.UserID)
		assert.Equal(t, "pewter-city", claims.HospitalID)
	})

	failures := []struct {
		name string
		req  api.LoginRequest
	}{
		{name: "wrong password", req: api.LoginRequest{Username: "nurse.joy", Password: "wrong-password-123"}},
		{name: "unknown user", req: api.LoginRequest{Username: "nurse.jenny", Password: "correct-horse-battery"}},
		{name: "empty password", req: api.LoginRequest{Username: "nurse.joy"}},
	}
	for _, tt := range failures {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, mux, nil, http.MethodPost, "/api/v1/auth/login", tt.req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, api.CodeUnauthorized, errorCode(t, rec))
		})
	}
}

type failingPinger struct{ err error }

func (p failingPinger) Ping(context.Context) error { return p.err }

func TestHealthHandler(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("GET /api/v1/health", NewHealthHandler(discardLogger(), newStorage(t)).Health)

		rec := do(t, mux, nil, http.MethodGet, "/api/v1/health", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		resp := decode[api.HealthResponse](t, rec)
		assert.Equal(t, "ok", resp.Status)
		assert.Positive(t, resp.Time)
	})

	t.Run("database down", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("GET /api/v1/health", NewHealthHandler(discardLogger(), failingPinger{err: context.DeadlineExceeded}).Health)

		rec := do(t, mux, nil, http.MethodGet, "/api/v1/health", nil)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, api.CodeInternal, errorCode(t, rec))
	})
}
