package validation

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/iudanet/medsync/internal/models"
)

func TestValidatePayload(t *testing.T) {
	tests := []struct {
		name    string
		table   models.Table
		data    string
		errMsg  string
		wantErr bool
	}{
		{name: "valid patient", table: models.TablePatients, data: `{"first_name":"Anna","last_name":"Petrova","active":true}`},
		{name: "patient without names", table: models.TablePatients, data: `{"active":true}`, wantErr: true, errMsg: "first_name is required"},
		{name: "valid consultation", table: models.TableConsultations, data: `{"patient_id":"p-1","scheduled_at":1700000000000,"status":"scheduled"}`},
		{name: "consultation unknown status", table: models.TableConsultations, data: `{"patient_id":"p-1","scheduled_at":1,"status":"lost"}`, wantErr: true, errMsg: "unknown status"},
		{name: "consultation without time", table: models.TableConsultations, data: `{"patient_id":"p-1"}`, wantErr: true, errMsg: "scheduled_at is required"},
		{name: "valid prescription", table: models.TablePrescriptions, data: `{"patient_id":"p-1","medication":"Amoxicillin","duration_days":7}`},
		{name: "prescription without medication", table: models.TablePrescriptions, data: `{"patient_id":"p-1"}`, wantErr: true, errMsg: "medication is required"},
		{name: "not json", table: models.TablePatients, data: `{`, wantErr: true, errMsg: "invalid patient payload"},
		{name: "empty", table: models.TablePatients, data: ``, wantErr: true, errMsg: "payload cannot be empty"},
		{name: "unknown table", table: models.Table("invoices"), data: `{}`, wantErr: true, errMsg: "unknown table"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePayload(tt.table, json.RawMessage(tt.data))
			if tt.wantErr {
				assert.ErrorContains(t, err, tt.errMsg)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestValidatePatient_ReportsAllFields(t *testing.T) {
	err := ValidatePatient(&models.Patient{})
	assert.ErrorContains(t, err, "first_name is required")
	assert.ErrorContains(t, err, "last_name is required")
}
