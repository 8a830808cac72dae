package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/iudanet/medsync/internal/server/jwt"
	"github.com/iudanet/medsync/pkg/api"
)

// Auth создает middleware для проверки JWT токена.
// Claims (пользователь и больница) кладутся в контекст запроса.
func Auth(logger *slog.Logger, tokens *jwt.Manager) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				logger.WarnContext(r.Context(), "Missing Authorization header", "path", r.URL.Path)
				writeError(w, api.CodeUnauthorized, "missing token", http.StatusUnauthorized)
				return
			}

			// Ожидаем формат: "Bearer <token>"
			scheme, token, found := strings.Cut(authHeader, " ")
			if !found || !strings.EqualFold(scheme, "Bearer") || token == "" {
				logger.WarnContext(r.Context(), "Invalid Authorization header format")
				writeError(w, api.CodeUnauthorized, "invalid token format", http.StatusUnauthorized)
				return
			}

			claims, err := tokens.Validate(token)
			if err != nil {
				logger.WarnContext(r.Context(), "Invalid access token", slog.Any("error", err))
				writeError(w, api.CodeUnauthorized, "invalid or expired token", http.StatusUnauthorized)
				return
			}

			logger.DebugContext(r.Context(), "User authenticated",
				"user_id", claims.UserID,
				"hospital_id", claims.HospitalID)

			next.ServeHTTP(w, r.WithContext(jwt.WithClaims(r.Context(), claims)))
		})
	}
}
