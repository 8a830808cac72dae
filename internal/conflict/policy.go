// Package conflict contains the automatic resolution policies applied to detected conflicts.
package conflict

import (
	"fmt"

	"github.com/iudanet/medsync/internal/models"
)

// Названия политик для конфигурации
const (
	PolicyManual        = "manual"
	PolicyLastWriteWins = "last_write_wins"
)

// Policy решает, можно ли разрешить конфликт автоматически.
type Policy interface {
	// Name returns the configuration name of the policy.
	Name() string
	// Resolve returns a resolution and true, or false when the conflict must wait for a person.
	Resolve(c *models.Conflict) (models.Resolution, bool)
}

// New returns the policy registered under name. An empty name selects Manual.
func New(name string) (Policy, error) {
	switch name {
	case "", PolicyManual:
		return Manual{}, nil
	case PolicyLastWriteWins:
		return LastWriteWins{}, nil
	}
	return nil, fmt.Errorf("unknown conflict policy %q", name)
}

// Manual никогда не выбирает сторону сам: каждый конфликт ждет решения пользователя.
type Manual struct{}

// Name implements Policy.
func (Manual) Name() string { return PolicyManual }

// Resolve implements Policy.
func (Manual) Resolve(*models.Conflict) (models.Resolution, bool) {
	return models.Resolution{}, false
}

// LastWriteWins выбирает версию с большим updatedAt.
// При равенстве побеждает сервер: ничья не перезаписывает чужое изменение.
type LastWriteWins struct{}

// Name implements Policy.
func (LastWriteWins) Name() string { return PolicyLastWriteWins }

// Resolve implements Policy.
func (LastWriteWins) Resolve(c *models.Conflict) (models.Resolution, bool) {
	if c.Local == nil || c.Remote == nil {
		// Без одной из версий сравнивать нечего
		return models.Resolution{}, false
	}
	if c.Local.IsNewerThan(c.Remote) {
		return models.Resolution{Strategy: models.KeepLocal}, true
	}
	return models.Resolution{Strategy: models.KeepRemote}, true
}
