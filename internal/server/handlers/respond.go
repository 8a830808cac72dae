package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/iudanet/medsync/pkg/api"
)

// maxBodySize ограничивает тело запроса
const maxBodySize = 1 << 20

// sendJSON отправляет JSON ответ
func sendJSON(logger *slog.Logger, w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode JSON response", slog.Any("error", err))
	}
}

// sendError отправляет JSON ответ с ошибкой; code - машиночитаемый код из pkg/api
func sendError(logger *slog.Logger, w http.ResponseWriter, code, message string, statusCode int) {
	sendJSON(logger, w, api.ErrorResponse{Error: code, Message: message}, statusCode)
}

// decodeJSON читает тело запроса не больше maxBodySize
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
