package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Operation тип мутации в очереди синхронизации.
type Operation string

// Поддерживаемые операции
const (
	OperationInsert Operation = "INSERT"
	OperationUpdate Operation = "UPDATE"
	OperationDelete Operation = "DELETE"
)

// ParseOperation converts a case-insensitive operation name.
func ParseOperation(s string) (Operation, error) {
	op := Operation(strings.ToUpper(s))
	switch op {
	case OperationInsert, OperationUpdate, OperationDelete:
		return op, nil
	}
	return "", fmt.Errorf("unknown operation %q", s)
}

// Priority задает срочность записи в очереди: большее значение отправляется раньше.
type Priority int

// Уровни приоритета
const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityMedium
	PriorityHigh
)

// PriorityDefault is used when a caller does not choose a priority.
const PriorityDefault = PriorityNormal

var priorityNames = map[Priority]string{
	PriorityLow:    "low",
	PriorityNormal: "normal",
	PriorityMedium: "medium",
	PriorityHigh:   "high",
}

// Valid reports whether p is inside the supported range.
func (p Priority) Valid() bool {
	return p >= PriorityLow && p <= PriorityHigh
}

func (p Priority) String() string {
	if name, ok := priorityNames[p]; ok {
		return name
	}
	return fmt.Sprintf("priority(%d)", int(p))
}

// ParsePriority accepts either a name (low, normal, medium, high) or its numeric value.
func ParsePriority(s string) (Priority, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for p, name := range priorityNames {
		if name == s || fmt.Sprint(int(p)) == s {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown priority %q", s)
}

// QueueEntry представляет отложенную мутацию, ожидающую отправки на сервер.
type QueueEntry struct {
	ID        string          `json:"id"`        // ID UUIDv7, монотонно возрастает
	Table     Table           `json:"table"`     // Table целевая коллекция
	Operation Operation       `json:"operation"` // Operation INSERT, UPDATE, DELETE
	RecordID  string          `json:"record_id"` // RecordID идентификатор сущности
	ScopeID   string          `json:"scope_id"`  // ScopeID больница, в рамках которой сделана запись
	UserID    string          `json:"user_id"`   // UserID автор изменения
	Data      json.RawMessage `json:"data"`      // Data снимок записи (INSERT/UPDATE) или ключ (DELETE)
	Error     string          `json:"error"`     // Error текст последней ошибки
	Timestamp int64           `json:"timestamp"` // Timestamp время создания (мс)
	// BaseUpdatedAt версия записи, на которой основана мутация (для обнаружения конфликтов)
	BaseUpdatedAt int64    `json:"base_updated_at"`
	NextRetryAt   int64    `json:"next_retry_at"` // NextRetryAt не раньше этого времени (мс)
	Priority      Priority `json:"priority"`
	RetryCount    int      `json:"retry_count"`
	// Rejected сервер окончательно отклонил запись; автоматически не повторяется
	Rejected bool `json:"rejected"`
}

// Clone returns a deep copy of the entry.
func (e *QueueEntry) Clone() *QueueEntry {
	c := *e
	if e.Data != nil {
		c.Data = make(json.RawMessage, len(e.Data))
		copy(c.Data, e.Data)
	}
	return &c
}

// EntityKey identifies the entity the entry mutates.
func (e *QueueEntry) EntityKey() string {
	return EntityKey(e.Table, e.RecordID)
}

// Record decodes the record snapshot carried by INSERT and UPDATE entries.
func (e *QueueEntry) Record() (*Record, error) {
	var rec Record
	if err := json.Unmarshal(e.Data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode queued record %s: %w", e.RecordID, err)
	}
	return &rec, nil
}

// Eligible reports whether an automatic drain may attempt the entry at now.
func (e *QueueEntry) Eligible(now int64) bool {
	return !e.Rejected && e.NextRetryAt <= now
}

// EntityKey builds the "<table>/<id>" key used for conflicts and per-entity ordering.
func EntityKey(table Table, id string) string {
	return string(table) + "/" + id
}

// ParseEntityKey splits a key produced by EntityKey.
func ParseEntityKey(key string) (Table, string, error) {
	table, id, ok := strings.Cut(key, "/")
	if !ok || id == "" {
		return "", "", fmt.Errorf("malformed key %q", key)
	}
	t, err := ParseTable(table)
	if err != nil {
		return "", "", err
	}
	return t, id, nil
}

// QueueStats агрегированная статистика очереди.
type QueueStats struct {
	ByTable     map[Table]int     `json:"by_table"`
	ByOperation map[Operation]int `json:"by_operation"`
	ByPriority  map[Priority]int  `json:"by_priority"`
	Total       int               `json:"total"`
	Failed      int               `json:"failed"`   // Failed записи с retry_count > 0
	Rejected    int               `json:"rejected"` // Rejected отклоненные сервером
	BackingOff  int               `json:"backing_off"`
}

// NewQueueStats returns stats with initialised maps.
func NewQueueStats() *QueueStats {
	return &QueueStats{
		ByTable:     make(map[Table]int),
		ByOperation: make(map[Operation]int),
		ByPriority:  make(map[Priority]int),
	}
}
