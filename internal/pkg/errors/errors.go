package errors

import "errors"

var (
	ErrNotFound           = errors.New("resource not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidUser        = errors.New("invalid user identifier")
	ErrInvalidToken       = errors.New("invalid token")
	ErrStorageUnavailable = errors.New("usage storage unavailable")
	ErrDuplicateWindow    = errors.New("usage window already exists")
	ErrQuotaExceeded      = errors.New("daily message quota exceeded")
)

const (
	CodeInternal           = "INTERNAL_ERROR"
	CodeStorageUnavailable = "STORAGE_UNAVAILABLE"
)

type Error struct {
	Err     error
	Message string
	Code    string
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match ErrStorageUnavailable against any storage-coded error.
func (e *Error) Is(target error) bool {
	return target == ErrStorageUnavailable && e.Code == CodeStorageUnavailable
}

func Wrap(err error, message string) *Error {
	return &Error{
		Err:     err,
		Message: message,
		Code:    CodeInternal,
	}
}

// Unavailable wraps a failure of the persistence layer.
func Unavailable(err error, message string) *Error {
	return &Error{
		Err:     err,
		Message: message,
		Code:    CodeStorageUnavailable,
	}
}

// Is and As re-export the standard helpers so callers need a single import.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

func As(err error, target any) bool {
	return errors.As(err, target)
}
