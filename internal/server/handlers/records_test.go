package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/medsync/internal/models"
	"github.com/iudanet/medsync/internal/server/jwt"
	"github.com/iudanet/medsync/pkg/api"
)

var (
	stMary = &jwt.Claims{UserID: "u-house", Username: "dr.house", HospitalID: "st-mary"}
	stJude = &jwt.Claims{UserID: "u-wilson", Username: "dr.wilson", HospitalID: "st-jude"}
)

func newRecordsMux(t *testing.T) *http.ServeMux {
	t.Helper()
	h := NewRecordsHandler(discardLogger(), newStorage(t))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/records/{table}", h.List)
	mux.HandleFunc("POST /api/v1/records/{table}", h.Create)
	mux.HandleFunc("GET /api/v1/records/{table}/{id}", h.Get)
	mux.HandleFunc("PUT /api/v1/records/{table}/{id}", h.Update)
	mux.HandleFunc("DELETE /api/v1/records/{table}/{id}", h.Delete)
	return mux
}

func payload(t *testing.T, v any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

func patientWrite(t *testing.T, id string, updatedAt, base int64) api.WriteRequest {
	return api.WriteRequest{
		Record: api.Record{
			ID:        id,
			Data:      payload(t, models.Patient{FirstName: "Gregory", LastName: "House", Active: true}),
			UpdatedAt: updatedAt,
		},
		BaseUpdatedAt: base,
	}
}

func TestRecordsHandler_Create(t *testing.T) {
	mux := newRecordsMux(t)

	rec := do(t, mux, stMary, http.MethodPost, "/api/v1/records/patients", patientWrite(t, "p-1", 1000, 0))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	created := decode[api.Record](t, rec)
	assert.Equal(t, "patients", created.Table)
	assert.Equal(t, "st-mary", created.ScopeID)
	assert.Equal(t, "u-house", created.UpdatedBy)
	assert.Equal(t, int64(1000), created.UpdatedAt)

	t.Run("duplicate", func(t *testing.T) {
		rec := do(t, mux, stMary, http.MethodPost, "/api/v1/records/patients", patientWrite(t, "p-1", 1001, 0))
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, api.CodeAlreadyExists, errorCode(t, rec))
	})

	tests := []struct {
		name       string
		claims     *jwt.Claims
		path       string
		body       api.WriteRequest
		wantStatus int
		wantCode   string
	}{
		{
			name:       "no claims",
			path:       "/api/v1/records/patients",
			body:       patientWrite(t, "p-2", 1000, 0),
			wantStatus: http.StatusUnauthorized,
			wantCode:   api.CodeUnauthorized,
		},
		{
			name:       "unknown table",
			claims:     stMary,
			path:       "/api/v1/records/invoices",
			body:       patientWrite(t, "p-2", 1000, 0),
			wantStatus: http.StatusNotFound,
			wantCode:   api.CodeNotFound,
		},
		{
			name:   "foreign scope",
			claims: stMary,
			path:   "/api/v1/records/patients",
			body: func() api.WriteRequest {
				w := patientWrite(t, "p-2", 1000, 0)
				w.Record.ScopeID = "st-jude"
				return w
			}(),
			wantStatus: http.StatusForbidden,
			wantCode:   api.CodeForbidden,
		},
		{
			name:       "missing updated_at",
			claims:     stMary,
			path:       "/api/v1/records/patients",
			body:       patientWrite(t, "p-2", 0, 0),
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   api.CodeValidation,
		},
		{
			name:   "invalid patient",
			claims: stMary,
			path:   "/api/v1/records/patients",
			body: api.WriteRequest{Record: api.Record{
				ID:        "p-2",
				Data:      payload(t, models.Patient{FirstName: "Gregory"}),
				UpdatedAt: 1000,
			}},
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   api.CodeValidation,
		},
		{
			name:   "consultation without parent",
			claims: stMary,
			path:   "/api/v1/records/consultations",
			body: api.WriteRequest{Record: api.Record{
				ID:        "c-1",
				Data:      payload(t, models.Consultation{PatientID: "p-1", ScheduledAt: 1000}),
				UpdatedAt: 1000,
			}},
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   api.CodeValidation,
		},
		{
			name:   "table mismatch",
			claims: stMary,
			path:   "/api/v1/records/patients",
			body: func() api.WriteRequest {
				w := patientWrite(t, "p-2", 1000, 0)
				w.Record.Table = "prescriptions"
				return w
			}(),
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   api.CodeValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, mux, tt.claims, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantCode, errorCode(t, rec))
		})
	}
}

func TestRecordsHandler_Update(t *testing.T) {
	mux := newRecordsMux(t)
	rec := do(t, mux, stMary, http.MethodPost, "/api/v1/records/patients", patientWrite(t, "p-1", 1000, 0))
	require.Equal(t, http.StatusCreated, rec.Code)

	t.Run("success", func(t *testing.T) {
		rec := do(t, mux, stMary, http.MethodPut, "/api/v1/records/patients/p-1", patientWrite(t, "p-1", 2000, 1000))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, int64(2000), decode[api.Record](t, rec).UpdatedAt)
	})

	tests := []struct {
		name       string
		claims     *jwt.Claims
		path       string
		body       api.WriteRequest
		wantStatus int
		wantCode   string
	}{
		{
			name:       "stale base",
			claims:     stMary,
			path:       "/api/v1/records/patients/p-1",
			body:       patientWrite(t, "p-1", 3000, 1000),
			wantStatus: http.StatusConflict,
			wantCode:   api.CodeStale,
		},
		{
			name:       "missing record",
			claims:     stMary,
			path:       "/api/v1/records/patients/p-404",
			body:       patientWrite(t, "p-404", 3000, 0),
			wantStatus: http.StatusNotFound,
			wantCode:   api.CodeNotFound,
		},
		{
			name:       "id mismatch",
			claims:     stMary,
			path:       "/api/v1/records/patients/p-1",
			body:       patientWrite(t, "p-2", 3000, 2000),
			wantStatus: http.StatusBadRequest,
			wantCode:   api.CodeValidation,
		},
		{
			name:       "foreign hospital",
			claims:     stJude,
			path:       "/api/v1/records/patients/p-1",
			body:       patientWrite(t, "p-1", 3000, 2000),
			wantStatus: http.StatusForbidden,
			wantCode:   api.CodeForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, mux, tt.claims, http.MethodPut, tt.path, tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantCode, errorCode(t, rec))
		})
	}

	rec = do(t, mux, stMary, http.MethodGet, "/api/v1/records/patients/p-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(2000), decode[api.Record](t, rec).UpdatedAt, "rejected updates must not change the record")
}

func TestRecordsHandler_GetAndDelete(t *testing.T) {
	mux := newRecordsMux(t)
	rec := do(t, mux, stMary, http.MethodPost, "/api/v1/records/patients", patientWrite(t, "p-1", 1000, 0))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, mux, stJude, http.MethodGet, "/api/v1/records/patients/p-1", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, mux, stJude, http.MethodDelete, "/api/v1/records/patients/p-1", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, mux, stMary, http.MethodDelete, "/api/v1/records/patients/p-1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, mux, stMary, http.MethodGet, "/api/v1/records/patients/p-1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Повторное удаление не ошибка
	rec = do(t, mux, stMary, http.MethodDelete, "/api/v1/records/patients/p-1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRecordsHandler_List(t *testing.T) {
	mux := newRecordsMux(t)

	for i := 1; i <= 3; i++ {
		rec := do(t, mux, stMary, http.MethodPost, "/api/v1/records/patients", patientWrite(t, fmt.Sprintf("p-%d", i), int64(i*1000), 0))
		require.Equal(t, http.StatusCreated, rec.Code)
	}
	rec := do(t, mux, stJude, http.MethodPost, "/api/v1/records/patients", patientWrite(t, "p-jude", 5000, 0))
	require.Equal(t, http.StatusCreated, rec.Code)

	for i := 1; i <= 2; i++ {
		rec := do(t, mux, stMary, http.MethodPost, "/api/v1/records/prescriptions", api.WriteRequest{Record: api.Record{
			ID:        fmt.Sprintf("rx-%d", i),
			ParentID:  fmt.Sprintf("p-%d", i),
			Data:      payload(t, models.Prescription{PatientID: fmt.Sprintf("p-%d", i), Medication: "Vicodin"}),
			UpdatedAt: 1000,
		}})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	tests := []struct {
		name       string
		claims     *jwt.Claims
		target     string
		wantStatus int
		wantIDs    []string
	}{
		{name: "own hospital only", claims: stMary, target: "/api/v1/records/patients", wantStatus: http.StatusOK, wantIDs: []string{"p-1", "p-2", "p-3"}},
		{name: "explicit own scope", claims: stMary, target: "/api/v1/records/patients?scope=st-mary", wantStatus: http.StatusOK, wantIDs: []string{"p-1", "p-2", "p-3"}},
		{name: "since", claims: stMary, target: "/api/v1/records/patients?since=1000", wantStatus: http.StatusOK, wantIDs: []string{"p-2", "p-3"}},
		{name: "limit", claims: stMary, target: "/api/v1/records/patients?limit=2", wantStatus: http.StatusOK, wantIDs: []string{"p-2", "p-3"}},
		{name: "by parent", claims: stMary, target: "/api/v1/records/prescriptions?parent=p-2", wantStatus: http.StatusOK, wantIDs: []string{"rx-2"}},
		{name: "other hospital", claims: stJude, target: "/api/v1/records/patients", wantStatus: http.StatusOK, wantIDs: []string{"p-jude"}},
		{name: "foreign scope", claims: stMary, target: "/api/v1/records/patients?scope=st-jude", wantStatus: http.StatusForbidden},
		{name: "bad since", claims: stMary, target: "/api/v1/records/patients?since=yesterday", wantStatus: http.StatusBadRequest},
		{name: "limit too large", claims: stMary, target: "/api/v1/records/patients?limit=5000", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, mux, tt.claims, http.MethodGet, tt.target, nil)
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.wantStatus != http.StatusOK {
				return
			}

			resp := decode[api.ListResponse](t, rec)
			ids := make([]string, 0, len(resp.Records))
			for _, r := range resp.Records {
				ids = append(ids, r.ID)
			}
			assert.Equal(t, tt.wantIDs, ids)
			assert.Equal(t, len(tt.wantIDs), resp.Count)
		})
	}
}
