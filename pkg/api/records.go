package api

import "encoding/json"

// Record - запись сущности (patient, consultation, prescription) в том виде,
// в каком ее хранит сервер
type Record struct {
	ID        string          `json:"id"`
	Table     string          `json:"table"`
	ScopeID   string          `json:"scope_id"`
	ParentID  string          `json:"parent_id,omitempty"` // пациент для consultation/prescription
	UpdatedBy string          `json:"updated_by,omitempty"`
	Data      json.RawMessage `json:"data"`
	UpdatedAt int64           `json:"updated_at"` // время последнего изменения, мс (задается клиентом)
}

// WriteRequest - тело POST и PUT /api/v1/records/{table}
type WriteRequest struct {
	Record Record `json:"record"`
	// BaseUpdatedAt - updated_at серверной версии, от которой отталкивалось изменение.
	// PUT отклоняется с 409, если сервер хранит более новую версию.
	BaseUpdatedAt int64 `json:"base_updated_at,omitempty"`
}

// ListResponse - ответ GET /api/v1/records/{table}
type ListResponse struct {
	Records []Record `json:"records"`
	Count   int      `json:"count"`
}
