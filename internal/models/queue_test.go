package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriority_Ordering(t *testing.T) {
	// Большее значение означает большую срочность
	assert.Less(t, int(PriorityLow), int(PriorityNormal))
	assert.Less(t, int(PriorityNormal), int(PriorityMedium))
	assert.Less(t, int(PriorityMedium), int(PriorityHigh))
	assert.Equal(t, PriorityNormal, PriorityDefault)
}

func TestParsePriority(t *testing.T) {
	tests := []struct {
		input   string
		want    Priority
		wantErr bool
	}{
		{input: "high", want: PriorityHigh},
		{input: "LOW", want: PriorityLow},
		{input: " normal ", want: PriorityNormal},
		{input: "2", want: PriorityMedium},
		{input: "urgent", wantErr: true},
		{input: "7", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParsePriority(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	assert.False(t, Priority(4).Valid())
	assert.Equal(t, "priority(9)", Priority(9).String())
}

func TestParseOperation(t *testing.T) {
	op, err := ParseOperation("update")
	require.NoError(t, err)
	assert.Equal(t, OperationUpdate, op)

	_, err = ParseOperation("upsert")
	assert.Error(t, err)
}

func TestEntityKey(t *testing.T) {
	key := EntityKey(TableConsultations, "c-1")
	assert.Equal(t, "consultations/c-1", key)

	table, id, err := ParseEntityKey(key)
	require.NoError(t, err)
	assert.Equal(t, TableConsultations, table)
	assert.Equal(t, "c-1", id)

	for _, bad := range []string{"consultations", "consultations/", "wards/1"} {
		_, _, err := ParseEntityKey(bad)
		assert.Error(t, err, bad)
	}
}

func TestQueueEntry_Eligible(t *testing.T) {
	entry := &QueueEntry{NextRetryAt: 1000}
	assert.False(t, entry.Eligible(999))
	assert.True(t, entry.Eligible(1000))

	entry.Rejected = true
	assert.False(t, entry.Eligible(5000))
}

func TestQueueEntry_Record(t *testing.T) {
	rec := &Record{ID: "p-1", Table: TablePatients, UpdatedAt: 42}
	data, err := json.Marshal(rec)
	require.NoError(t, err)

	entry := &QueueEntry{RecordID: "p-1", Data: data}
	decoded, err := entry.Record()
	require.NoError(t, err)
	assert.Equal(t, rec, decoded)

	entry.Data = json.RawMessage(`"p-1"`)
	_, err = entry.Record()
	assert.Error(t, err)
}

func TestResolution_Validate(t *testing.T) {
	assert.NoError(t, Resolution{Strategy: KeepLocal}.Validate())
	assert.NoError(t, Resolution{Strategy: KeepRemote}.Validate())
	assert.NoError(t, Resolution{Strategy: Merged, Data: json.RawMessage(`{"a":1}`)}.Validate())
	assert.Error(t, Resolution{Strategy: Merged}.Validate())
	assert.Error(t, Resolution{Strategy: "coin_flip"}.Validate())
}
