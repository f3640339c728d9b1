package client

import (
	"errors"
	"fmt"

	"github.com/Sternrassler/people-cache/pkg/dao"
	"github.com/Sternrassler/people-cache/pkg/models"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")
)

// APIError is a failed call to the people API.
type APIError struct {
	StatusCode int
	ErrorClass ErrorClass

	// Kind is the "error" field of the response body (e.g., "conflict")
	Kind    string
	Message string
	Fields  []models.FieldError
	Err     error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("people-api %s error (status %d): %s: %v",
			e.ErrorClass, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("people-api %s error (status %d): %s",
		e.ErrorClass, e.StatusCode, e.Message)
}

// Unwrap exposes the dao sentinel matching Kind, so callers can use
// errors.Is(err, dao.ErrConflict) on either side of the wire.
func (e *APIError) Unwrap() []error {
	var errs []error
	if sentinel := kindSentinel(e.Kind); sentinel != nil {
		errs = append(errs, sentinel)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func kindSentinel(kind string) error {
	switch dao.ErrorKind(kind) {
	case dao.KindValidation:
		return dao.ErrValidation
	case dao.KindNotFound:
		return dao.ErrNotFound
	case dao.KindConflict:
		return dao.ErrConflict
	case dao.KindStorage:
		return dao.ErrStorage
	default:
		return nil
	}
}

// shouldRetry determines if an error should be retried based on its classification.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassClient:
		// 4xx errors are final
		return false
	case ErrorClassServer:
		// 500 means the storage failed; the DAO does not retry and neither do we
		return false
	case ErrorClassUnavailable:
		// 502/503/504 come from proxies or a draining server
		return true
	case ErrorClassNetwork:
		return true
	default:
		return false
	}
}
