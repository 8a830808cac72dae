package api

import (
	"errors"
	"fmt"
	"net/http"
)

// Connectivity: запрос не дошел до сервера или сервер не смог его обработать.
// Такие ошибки восстанавливаются локально (кэш, повтор по расписанию).
var (
	ErrUnavailable = errors.New("remote unavailable")
	ErrTimeout     = errors.New("remote request timed out")
	ErrServer      = errors.New("remote server error")
)

// Rejection: сервер дал определенный отказ, повтор без изменений не поможет.
var (
	ErrRejected      = errors.New("remote rejected request")
	ErrNotFound      = errors.New("remote record not found")
	ErrAlreadyExists = errors.New("remote record already exists")
	ErrStale         = errors.New("remote record modified concurrently")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrForbidden     = errors.New("forbidden")
)

// RemoteError - ответ сервера с кодом ошибки
type RemoteError struct {
	Kind       error
	Message    string
	StatusCode int
}

// NewRemoteError maps an HTTP status to an error kind.
func NewRemoteError(status int, message string) *RemoteError {
	var kind error
	switch {
	case status == http.StatusNotFound:
		kind = ErrNotFound
	case status == http.StatusConflict:
		kind = ErrStale
	case status == http.StatusUnauthorized:
		kind = ErrUnauthorized
	case status == http.StatusForbidden:
		kind = ErrForbidden
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		kind = ErrTimeout
	case status == http.StatusTooManyRequests || status >= 500:
		kind = ErrServer
	default:
		kind = ErrRejected
	}
	return &RemoteError{StatusCode: status, Message: message, Kind: kind}
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%v (status %d)", e.Kind, e.StatusCode)
	}
	return fmt.Sprintf("%v (status %d): %s", e.Kind, e.StatusCode, e.Message)
}

// Unwrap делает RemoteError совместимой с errors.Is для вида ошибки
// и для ErrRejected у всех отказов.
func (e *RemoteError) Unwrap() []error {
	if IsRejection(e.Kind) && e.Kind != ErrRejected {
		return []error{e.Kind, ErrRejected}
	}
	return []error{e.Kind}
}

// IsConnectivity reports whether err is a transport-level failure worth retrying.
func IsConnectivity(err error) bool {
	return errors.Is(err, ErrUnavailable) || errors.Is(err, ErrTimeout) || errors.Is(err, ErrServer)
}

// IsRejection reports whether err is a definite refusal by the server.
func IsRejection(err error) bool {
	switch {
	case errors.Is(err, ErrRejected),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrAlreadyExists),
		errors.Is(err, ErrStale),
		errors.Is(err, ErrUnauthorized),
		errors.Is(err, ErrForbidden):
		return true
	}
	return false
}
