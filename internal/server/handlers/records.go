package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/iudanet/medsync/internal/models"
	"github.com/iudanet/medsync/internal/server/jwt"
	"github.com/iudanet/medsync/internal/server/storage"
	"github.com/iudanet/medsync/internal/validation"
	"github.com/iudanet/medsync/pkg/api"
)

// MaxListLimit - верхняя граница limit в GET /api/v1/records/{table}
const MaxListLimit = 1000

// RecordsHandler обслуживает /api/v1/records. Каждый запрос ограничен
// больницей из токена: чужие записи не видны и не изменяемы.
type RecordsHandler struct {
	logger  *slog.Logger
	storage storage.RecordStorage
}

// NewRecordsHandler creates a new records handler
func NewRecordsHandler(logger *slog.Logger, storage storage.RecordStorage) *RecordsHandler {
	return &RecordsHandler{
		logger:  logger,
		storage: storage,
	}
}

// List обрабатывает GET /api/v1/records/{table}?scope=&parent=&since=&limit=
func (h *RecordsHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims, table, ok := h.begin(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	if scope := query.Get("scope"); scope != "" && scope != claims.HospitalID {
		h.logger.WarnContext(ctx, "foreign scope requested", slog.String("user_id", claims.UserID), slog.String("scope", scope))
		sendError(h.logger, w, api.CodeForbidden, "scope is not accessible", http.StatusForbidden)
		return
	}

	q := storage.RecordQuery{ParentID: query.Get("parent")}
	var err error
	if s := query.Get("since"); s != "" {
		if q.Since, err = strconv.ParseInt(s, 10, 64); err != nil || q.Since < 0 {
			sendError(h.logger, w, api.CodeBadRequest, "since must be a non-negative integer", http.StatusBadRequest)
			return
		}
	}
	if l := query.Get("limit"); l != "" {
		if q.Limit, err = strconv.Atoi(l); err != nil || q.Limit < 0 || q.Limit > MaxListLimit {
			sendError(h.logger, w, api.CodeBadRequest, "limit must be between 0 and 1000", http.StatusBadRequest)
			return
		}
	}

	records, err := h.storage.ListRecords(ctx, claims.HospitalID, table.String(), q)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list records", slog.String("table", table.String()), slog.Any("error", err))
		sendError(h.logger, w, api.CodeInternal, "internal server error", http.StatusInternalServerError)
		return
	}

	resp := api.ListResponse{Records: make([]api.Record, 0, len(records)), Count: len(records)}
	for _, rec := range records {
		resp.Records = append(resp.Records, *rec)
	}

	h.logger.DebugContext(ctx, "records listed",
		slog.String("table", table.String()),
		slog.String("scope", claims.HospitalID),
		slog.Int("count", resp.Count))

	sendJSON(h.logger, w, resp, http.StatusOK)
}

// Get обрабатывает GET /api/v1/records/{table}/{id}
func (h *RecordsHandler) Get(w http.ResponseWriter, r *http.Request) {
	claims, table, ok := h.begin(w, r)
	if !ok {
		return
	}

	rec, ok := h.load(w, r, claims, table, r.PathValue("id"))
	if !ok {
		return
	}
	sendJSON(h.logger, w, rec, http.StatusOK)
}

// Create обрабатывает POST /api/v1/records/{table}; 409 если id занят
func (h *RecordsHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims, table, ok := h.begin(w, r)
	if !ok {
		return
	}

	rec, _, ok := h.decodeWrite(w, r, claims, table)
	if !ok {
		return
	}

	if err := h.storage.InsertRecord(ctx, rec); err != nil {
		if errors.Is(err, storage.ErrRecordExists) {
			sendError(h.logger, w, api.CodeAlreadyExists, "record already exists", http.StatusConflict)
			return
		}
		h.logger.ErrorContext(ctx, "failed to insert record", slog.String("table", table.String()), slog.String("id", rec.ID), slog.Any("error", err))
		sendError(h.logger, w, api.CodeInternal, "internal server error", http.StatusInternalServerError)
		return
	}

	h.logger.InfoContext(ctx, "record created",
		slog.String("table", table.String()),
		slog.String("id", rec.ID),
		slog.String("user_id", claims.UserID))

	sendJSON(h.logger, w, rec, http.StatusCreated)
}

// Update обрабатывает PUT /api/v1/records/{table}/{id}.
// 404 если записи нет, 409 если сервер хранит версию новее base_updated_at.
func (h *RecordsHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims, table, ok := h.begin(w, r)
	if !ok {
		return
	}

	rec, base, ok := h.decodeWrite(w, r, claims, table)
	if !ok {
		return
	}
	if rec.ID != r.PathValue("id") {
		sendError(h.logger, w, api.CodeValidation, "record id does not match path", http.StatusBadRequest)
		return
	}

	if _, ok := h.load(w, r, claims, table, rec.ID); !ok {
		return
	}

	if err := h.storage.UpdateRecord(ctx, rec, base); err != nil {
		switch {
		case errors.Is(err, storage.ErrStale):
			h.logger.InfoContext(ctx, "stale update rejected",
				slog.String("table", table.String()),
				slog.String("id", rec.ID),
				slog.Int64("base_updated_at", base))
			sendError(h.logger, w, api.CodeStale, "record was modified by another client", http.StatusConflict)
		case errors.Is(err, storage.ErrRecordNotFound):
			sendError(h.logger, w, api.CodeNotFound, "record not found", http.StatusNotFound)
		default:
			h.logger.ErrorContext(ctx, "failed to update record", slog.String("table", table.String()), slog.String("id", rec.ID), slog.Any("error", err))
			sendError(h.logger, w, api.CodeInternal, "internal server error", http.StatusInternalServerError)
		}
		return
	}

	h.logger.InfoContext(ctx, "record updated",
		slog.String("table", table.String()),
		slog.String("id", rec.ID),
		slog.String("user_id", claims.UserID))

	sendJSON(h.logger, w, rec, http.StatusOK)
}

// Delete обрабатывает DELETE /api/v1/records/{table}/{id}; удаление отсутствующей записи не ошибка
func (h *RecordsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims, table, ok := h.begin(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")

	existing, err := h.storage.GetRecord(ctx, table.String(), id)
	if errors.Is(err, storage.ErrRecordNotFound) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to get record", slog.String("table", table.String()), slog.String("id", id), slog.Any("error", err))
		sendError(h.logger, w, api.CodeInternal, "internal server error", http.StatusInternalServerError)
		return
	}
	if existing.ScopeID != claims.HospitalID {
		sendError(h.logger, w, api.CodeForbidden, "record is not accessible", http.StatusForbidden)
		return
	}

	if err := h.storage.DeleteRecord(ctx, table.String(), id); err != nil && !errors.Is(err, storage.ErrRecordNotFound) {
		h.logger.ErrorContext(ctx, "failed to delete record", slog.String("table", table.String()), slog.String("id", id), slog.Any("error", err))
		sendError(h.logger, w, api.CodeInternal, "internal server error", http.StatusInternalServerError)
		return
	}

	h.logger.InfoContext(ctx, "record deleted",
		slog.String("table", table.String()),
		slog.String("id", id),
		slog.String("user_id", claims.UserID))

	w.WriteHeader(http.StatusNoContent)
}

// begin извлекает claims (установлены AuthMiddleware) и таблицу из пути
func (h *RecordsHandler) begin(w http.ResponseWriter, r *http.Request) (*jwt.Claims, models.Table, bool) {
	claims, ok := jwt.FromContext(r.Context())
	if !ok {
		h.logger.ErrorContext(r.Context(), "claims not found in context")
		sendError(h.logger, w, api.CodeUnauthorized, "unauthorized", http.StatusUnauthorized)
		return nil, "", false
	}

	table, err := models.ParseTable(r.PathValue("table"))
	if err != nil {
		sendError(h.logger, w, api.CodeNotFound, err.Error(), http.StatusNotFound)
		return nil, "", false
	}
	return claims, table, true
}

// load возвращает запись своей больницы; чужая запись - 403
func (h *RecordsHandler) load(w http.ResponseWriter, r *http.Request, claims *jwt.Claims, table models.Table, id string) (*api.Record, bool) {
	ctx := r.Context()

	rec, err := h.storage.GetRecord(ctx, table.String(), id)
	if err != nil {
		if errors.Is(err, storage.ErrRecordNotFound) {
			sendError(h.logger, w, api.CodeNotFound, "record not found", http.StatusNotFound)
			return nil, false
		}
		h.logger.ErrorContext(ctx, "failed to get record", slog.String("table", table.String()), slog.String("id", id), slog.Any("error", err))
		sendError(h.logger, w, api.CodeInternal, "internal server error", http.StatusInternalServerError)
		return nil, false
	}

	if rec.ScopeID != claims.HospitalID {
		h.logger.WarnContext(ctx, "foreign record requested",
			slog.String("user_id", claims.UserID),
			slog.String("table", table.String()),
			slog.String("id", id))
		sendError(h.logger, w, api.CodeForbidden, "record is not accessible", http.StatusForbidden)
		return nil, false
	}
	return rec, true
}

// decodeWrite читает и проверяет тело POST/PUT. Пустой scope_id заменяется больницей из токена.
func (h *RecordsHandler) decodeWrite(w http.ResponseWriter, r *http.Request, claims *jwt.Claims, table models.Table) (*api.Record, int64, bool) {
	var req api.WriteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.logger.WarnContext(r.Context(), "failed to decode write request", slog.Any("error", err))
		sendError(h.logger, w, api.CodeBadRequest, "invalid request body", http.StatusBadRequest)
		return nil, 0, false
	}

	rec := req.Record
	if rec.Table == "" {
		rec.Table = table.String()
	}
	if rec.ScopeID == "" {
		rec.ScopeID = claims.HospitalID
	}
	rec.UpdatedBy = claims.UserID

	if rec.ScopeID != claims.HospitalID {
		sendError(h.logger, w, api.CodeForbidden, "scope is not accessible", http.StatusForbidden)
		return nil, 0, false
	}

	var errs []error
	if rec.ID == "" {
		errs = append(errs, errors.New("record id is required"))
	}
	if rec.Table != table.String() {
		errs = append(errs, errors.New("record table does not match path"))
	}
	if rec.UpdatedAt <= 0 {
		errs = append(errs, errors.New("updated_at must be positive"))
	}
	if table != models.TablePatients && rec.ParentID == "" {
		errs = append(errs, errors.New("parent_id is required"))
	}
	errs = append(errs, validation.ValidatePayload(table, rec.Data))

	if err := errors.Join(errs...); err != nil {
		sendError(h.logger, w, api.CodeValidation, err.Error(), http.StatusUnprocessableEntity)
		return nil, 0, false
	}
	return &rec, req.BaseUpdatedAt, true
}
