package domain

import "errors"

var (
	// ErrGreetingMismatch is returned when the master echoes a different worker id
	ErrGreetingMismatch = errors.New("master answered greeting with a different worker id")

	// ErrUnexpectedMessage is returned when the master sends a message the worker cannot accept
	ErrUnexpectedMessage = errors.New("unexpected message from master")

	// ErrDownloadFailed is returned by a downloader that could not retrieve a job
	ErrDownloadFailed = errors.New("download failed")
)

// DownloadError wraps a failure of one job
type DownloadError struct {
	JobID string
	Err   error
}

func (e *DownloadError) Error() string {
	return "download " + e.JobID + ": " + e.Err.Error()
}

func (e *DownloadError) Unwrap() error {
	return e.Err
}

// NewDownloadError creates a new DownloadError wrapping ErrDownloadFailed when err is nil
func NewDownloadError(jobID string, err error) error {
	if err == nil {
		err = ErrDownloadFailed
	}
	return &DownloadError{JobID: jobID, Err: err}
}
