package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateUsername(t *testing.T) {
	tests := []struct {
		name     string
		username string
		wantErr  bool
		errMsg   string
	}{
		{name: "valid username - lowercase", username: "alice"},
		{name: "valid username - with dot", username: "dr.house"},
		{name: "valid username - with dash and numbers", username: "nurse-42"},
		{name: "valid username - max length", username: "a1234567890123456789012345678901"},
		{name: "invalid - empty username", username: "", wantErr: true, errMsg: "username cannot be empty"},
		{name: "invalid - too short", username: "ab", wantErr: true, errMsg: "must be at least 3 characters"},
		{name: "invalid - too long", username: "a12345678901234567890123456789012", wantErr: true, errMsg: "must not exceed 32 characters"},
		{name: "invalid - starts with digit", username: "1alice", wantErr: true, errMsg: "must start with a letter"},
		{name: "invalid - with space", username: "alice smith", wantErr: true, errMsg: "must start with a letter"},
		{name: "invalid - cyrillic", username: "иван", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUsername(tt.username)
			if tt.wantErr {
				require.Error(t, err)
				if tt.errMsg != "" {
					assert.Contains(t, err.Error(), tt.errMsg)
				}
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestValidatePassword(t *testing.T) {
	assert.NoError(t, ValidatePassword("long-enough-pw"))
	assert.ErrorContains(t, ValidatePassword(""), "cannot be empty")
	assert.ErrorContains(t, ValidatePassword("short"), "at least 10 characters")
}

func TestValidateHospitalID(t *testing.T) {
	assert.NoError(t, ValidateHospitalID("city-hospital-1"))
	assert.Error(t, ValidateHospitalID(""))
	assert.Error(t, ValidateHospitalID("-leading-dash"))
	assert.Error(t, ValidateHospitalID("with space"))
}

func TestValidateRole(t *testing.T) {
	for _, role := range []string{"", "doctor", "nurse", "admin"} {
		assert.NoError(t, ValidateRole(role), role)
	}
	assert.Error(t, ValidateRole("janitor"))
}
