package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/Ramsey-B/thistle/pkg/adapters"
	"github.com/Ramsey-B/thistle/pkg/models"
)

// ErrRunInProgress is returned when a triple already has an in-flight run.
var ErrRunInProgress = errors.New("sync run already in progress")

// TransientSourceError is a retriable adapter failure. The cursor is not advanced.
type TransientSourceError struct {
	Err error
}

func (e *TransientSourceError) Error() string { return "transient source error: " + e.Err.Error() }
func (e *TransientSourceError) Unwrap() error { return e.Err }

// PermanentSourceError is an auth failure or malformed payload. It is not retried.
type PermanentSourceError struct {
	Err error
}

func (e *PermanentSourceError) Error() string { return "permanent source error: " + e.Err.Error() }
func (e *PermanentSourceError) Unwrap() error { return e.Err }

// ValidationError rejects a single raw record. The batch continues.
type ValidationError struct {
	ExternalID string
	Err        error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid record %q: %v", e.ExternalID, e.Err)
}
func (e *ValidationError) Unwrap() error { return e.Err }

// CommitFailure aborts the run with the cursor unchanged.
type CommitFailure struct {
	Err error
}

func (e *CommitFailure) Error() string { return "commit failed: " + e.Err.Error() }
func (e *CommitFailure) Unwrap() error { return e.Err }

// ConfigurationError is logged and resolved with a default, never returned from a run.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string { return "configuration: " + e.Reason }

// sourceError converts an adapter failure into the ingestion taxonomy.
func sourceError(err error) error {
	if adapters.IsTransient(err) {
		return &TransientSourceError{Err: err}
	}
	return &PermanentSourceError{Err: err}
}

// Classify maps a run error to the kind recorded on the run.
func Classify(err error) models.ErrorKind {
	var (
		transient *TransientSourceError
		permanent *PermanentSourceError
		commit    *CommitFailure
	)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.ErrorKindTimeout
	case errors.As(err, &commit):
		return models.ErrorKindCommit
	case errors.As(err, &permanent):
		return models.ErrorKindPermanent
	case errors.As(err, &transient):
		return models.ErrorKindTransient
	default:
		return models.ErrorKindTransient
	}
}

// Retriable reports whether a failed attempt may be retried.
func Retriable(kind models.ErrorKind) bool {
	return kind == models.ErrorKindTransient || kind == models.ErrorKindCommit
}
