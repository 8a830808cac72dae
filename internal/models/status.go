package models

// SyncState состояние сервиса синхронизации.
type SyncState string

// Состояния
const (
	SyncIdle    SyncState = "IDLE"
	SyncSyncing SyncState = "SYNCING"
	SyncError   SyncState = "ERROR"
)

// SyncStatus производный (не сохраняемый) статус для UI.
type SyncStatus struct {
	State          SyncState `json:"state"`
	LastError      string    `json:"last_error,omitempty"`
	LastSync       int64     `json:"last_sync"`
	PendingChanges int       `json:"pending_changes"`
	Conflicts      int       `json:"conflicts"`
	IsSyncing      bool      `json:"is_syncing"`
	IsOnline       bool      `json:"is_online"`
}

// TableStats counts records of one collection.
type TableStats struct {
	Count    int   `json:"count"`
	Drafts   int   `json:"drafts"`
	Unsynced int   `json:"unsynced"`
	Bytes    int64 `json:"bytes"`
}

// CacheStats снимок состояния локального кэша.
type CacheStats struct {
	Patients      int   `json:"patients"`
	Consultations int   `json:"consultations"`
	Prescriptions int   `json:"prescriptions"`
	Drafts        int   `json:"drafts"`
	Unsynced      int   `json:"unsynced"`
	SizeBytes     int64 `json:"size_bytes"`
	LastCachedAt  int64 `json:"last_cached_at"`
}

// Total returns the number of cached records across collections.
func (s *CacheStats) Total() int {
	return s.Patients + s.Consultations + s.Prescriptions
}
