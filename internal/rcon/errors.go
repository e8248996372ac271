package rcon

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidPassword means the server rejected the Login command.
	// It is never recoverable; retrying with the same credentials is
	// pointless.
	ErrInvalidPassword = errors.New("server rejected the authentication attempt")

	// ErrTimeout means a response body did not arrive within the read
	// deadline.
	ErrTimeout = errors.New("timed out reading from the server")

	// ErrInvalidJSON means a response body could not be parsed or was
	// missing expected fields.
	ErrInvalidJSON = errors.New("response body is not the expected json")

	// ErrFailure means the server answered with a non-200 status for a
	// semantically expected reason. The session is still usable.
	ErrFailure = errors.New("server responded with a failure status code")

	// ErrNotImplemented marks commands of the v2 surface the server does
	// not support yet.
	ErrNotImplemented = errors.New("command is not implemented for the v2 surface")
)

// InvalidDataError reports an unexpected frame or field shape.
type InvalidDataError struct {
	Reason string
}

func (e *InvalidDataError) Error() string {
	return fmt.Sprintf("invalid data from server: %s", e.Reason)
}

func invalidData(format string, args ...any) error {
	return &InvalidDataError{Reason: fmt.Sprintf(format, args...)}
}

// IsUnrecoverable reports whether err rules out further attempts with
// fresh sessions. Everything except a rejected password is worth a retry.
func IsUnrecoverable(err error) bool {
	return errors.Is(err, ErrInvalidPassword)
}
