package api

import (
	"fmt"

	"github.com/iudanet/medsync/internal/models"
	"github.com/iudanet/medsync/pkg/api"
)

// ToDTO converts a local record into its wire form.
func ToDTO(rec *models.Record) api.Record {
	return api.Record{
		ID:        rec.ID,
		Table:     rec.Table.String(),
		ScopeID:   rec.ScopeID,
		ParentID:  rec.ParentID,
		Data:      rec.Data,
		UpdatedAt: rec.UpdatedAt,
	}
}

// FromDTO превращает запись сервера в локальную синхронизированную запись
func FromDTO(dto *api.Record) (*models.Record, error) {
	table, err := models.ParseTable(dto.Table)
	if err != nil {
		return nil, fmt.Errorf("invalid record %s: %w", dto.ID, err)
	}
	return &models.Record{
		ID:              dto.ID,
		Table:           table,
		ScopeID:         dto.ScopeID,
		ParentID:        dto.ParentID,
		Data:            dto.Data,
		UpdatedAt:       dto.UpdatedAt,
		RemoteUpdatedAt: dto.UpdatedAt,
		Synced:          true,
	}, nil
}
