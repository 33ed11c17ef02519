package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrProtocolViolation is returned when a peer sends a message that is not valid in the session's state
	ErrProtocolViolation = errors.New("protocol violation")

	// ErrHandshake is returned when the first message of a session is not a greeting
	ErrHandshake = errors.New("handshake failed")

	// ErrDuplicateWorker is returned when a worker id is already held by a live session
	ErrDuplicateWorker = errors.New("worker id already connected")

	// ErrUnknownWorker is returned when a greeting names a worker that was never spawned
	ErrUnknownWorker = errors.New("worker id was not spawned")

	// ErrTransport wraps I/O failures on a session connection
	ErrTransport = errors.New("transport failure")

	// ErrSpawn is returned when the worker pool could not be started
	ErrSpawn = errors.New("failed to spawn worker")

	// ErrInvalidBatchSize is returned for a batch size below 1
	ErrInvalidBatchSize = errors.New("batch size must be greater than 0")
)

// ProtocolError describes a message a session could not accept
type ProtocolError struct {
	WorkerID int
	State    SessionState
	Kind     string
	Err      error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error (worker %d, state %s, message %s): %v", e.WorkerID, e.State, e.Kind, e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// NewProtocolError builds a ProtocolError wrapping ErrProtocolViolation when err is nil
func NewProtocolError(workerID int, state SessionState, kind string, err error) error {
	if err == nil {
		err = ErrProtocolViolation
	}
	return &ProtocolError{WorkerID: workerID, State: state, Kind: kind, Err: err}
}
