package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration indicates a missing or malformed configuration input.
	ErrConfiguration = errors.New("configuration error")

	// ErrSourceUnavailable indicates a source location could not be read.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrBackendUnavailable indicates a missing credential or prerequisite
	// for an embedding or vector-store backend.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrRemoteRejected indicates an external service answered with an error.
	ErrRemoteRejected = errors.New("remote rejected")

	// ErrDimensionMismatch indicates a vector does not fit its collection.
	ErrDimensionMismatch = errors.New("dimension mismatch")
)

// RemoteError carries the status and message returned by an external service.
type RemoteError struct {
	Service string
	Status  int
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.Service, e.Status, e.Message)
}

func (e *RemoteError) Unwrap() error {
	return ErrRemoteRejected
}
