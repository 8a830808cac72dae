package conflict

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/medsync/internal/models"
)

func newConflict(local, remote int64) *models.Conflict {
	return &models.Conflict{
		Key:      models.EntityKey(models.TablePatients, "p-1"),
		Table:    models.TablePatients,
		RecordID: "p-1",
		Local:    &models.Record{ID: "p-1", UpdatedAt: local},
		Remote:   &models.Record{ID: "p-1", UpdatedAt: remote},
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		wantName string
		wantErr  bool
	}{
		{name: "", wantName: PolicyManual},
		{name: "manual", wantName: PolicyManual},
		{name: "last_write_wins", wantName: PolicyLastWriteWins},
		{name: "coin_flip", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(tt.name)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, p.Name())
		})
	}
}

func TestManual_NeverResolves(t *testing.T) {
	for _, c := range []*models.Conflict{newConflict(1, 2), newConflict(2, 1), newConflict(5, 5)} {
		_, ok := Manual{}.Resolve(c)
		assert.False(t, ok)
	}
}

func TestLastWriteWins(t *testing.T) {
	tests := []struct {
		name   string
		local  int64
		remote int64
		want   models.ResolutionStrategy
	}{
		{name: "local newer", local: 300, remote: 200, want: models.KeepLocal},
		{name: "remote newer", local: 100, remote: 200, want: models.KeepRemote},
		{name: "tie keeps remote", local: 200, remote: 200, want: models.KeepRemote},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, ok := LastWriteWins{}.Resolve(newConflict(tt.local, tt.remote))
			require.True(t, ok)
			assert.Equal(t, tt.want, res.Strategy)
		})
	}
}

func TestLastWriteWins_MissingSide(t *testing.T) {
	c := newConflict(1, 2)
	c.Remote = nil

	_, ok := LastWriteWins{}.Resolve(c)
	assert.False(t, ok)
}
