package storage

import (
	"errors"
	"fmt"
)

// Common client storage errors
var (
	// ErrAuthNotFound indicates that no authentication data exists
	ErrAuthNotFound = errors.New("authentication data not found")

	// ErrRecordNotFound indicates that the record is not in the local store
	ErrRecordNotFound = errors.New("record not found")

	// ErrEntryNotFound indicates that sync queue entry was not found
	ErrEntryNotFound = errors.New("queue entry not found")

	// ErrConflictNotFound indicates that no open conflict exists for the key
	ErrConflictNotFound = errors.New("conflict not found")

	// ErrStorageClosed indicates that storage is closed
	ErrStorageClosed = errors.New("storage is closed")

	// ErrLocked indicates that sealed data was read before an encryption key was set
	ErrLocked = errors.New("storage is locked: encryption key not set")

	// ErrStorageFault matches every FaultError via errors.Is
	ErrStorageFault = errors.New("local storage fault")
)

// FaultError сбой локального хранилища (диск, квота, повреждение данных).
// Такие ошибки фатальны для текущей операции и никогда не проглатываются.
type FaultError struct {
	Err error
	Op  string
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("storage fault during %s: %v", e.Op, e.Err)
}

func (e *FaultError) Unwrap() error { return e.Err }

// Is reports ErrStorageFault as a match so callers need not know the concrete type.
func (e *FaultError) Is(target error) bool {
	return target == ErrStorageFault
}

// IsNotFound reports whether err is one of the "not found" sentinels.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRecordNotFound) ||
		errors.Is(err, ErrEntryNotFound) ||
		errors.Is(err, ErrConflictNotFound) ||
		errors.Is(err, ErrAuthNotFound)
}
