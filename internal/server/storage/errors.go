package storage

import "errors"

// Common storage errors
var (
	// ErrUserNotFound indicates that user was not found in storage
	ErrUserNotFound = errors.New("user not found")

	// ErrUserAlreadyExists indicates that user with this username already exists
	ErrUserAlreadyExists = errors.New("user already exists")

	// ErrRecordNotFound indicates that record was not found
	ErrRecordNotFound = errors.New("record not found")

	// ErrRecordExists indicates that a record with this id already exists in the table
	ErrRecordExists = errors.New("record already exists")

	// ErrStale indicates that the stored record is newer than the version the write was based on
	ErrStale = errors.New("record modified concurrently")
)
