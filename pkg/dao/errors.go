package dao

import (
	"errors"
	"fmt"

	"github.com/Sternrassler/people-cache/pkg/models"
	"github.com/Sternrassler/people-cache/pkg/storage"
)

// ErrorKind classifies DAO failures.
type ErrorKind string

const (
	// KindValidation means the caller supplied malformed input.
	KindValidation ErrorKind = "validation"

	// KindNotFound means an update or delete targeted a missing id.
	KindNotFound ErrorKind = "not_found"

	// KindConflict means a write violated email uniqueness.
	KindConflict ErrorKind = "conflict"

	// KindStorage means the database failed.
	KindStorage ErrorKind = "storage"
)

// Sentinels matched with errors.Is against any *Error of the same kind.
var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("person not found")
	ErrConflict   = errors.New("email already registered")
	ErrStorage    = errors.New("storage failure")
)

func (k ErrorKind) sentinel() error {
	switch k {
	case KindValidation:
		return ErrValidation
	case KindNotFound:
		return ErrNotFound
	case KindConflict:
		return ErrConflict
	default:
		return ErrStorage
	}
}

// Error is returned by every failing DAO operation.
type Error struct {
	Kind    ErrorKind
	Op      string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("dao %s %s error: %s: %v", e.Op, e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("dao %s %s error: %s", e.Op, e.Kind, e.Message)
}

// Unwrap exposes both the kind sentinel and the cause to errors.Is/As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind.sentinel()}
	}
	return []error{e.Kind.sentinel(), e.Err}
}

// KindOf returns the kind of a DAO error, or KindStorage for any other error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindStorage
}

// classify wraps a validation or storage error for op.
func classify(op string, err error) *Error {
	var verrs models.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		return &Error{Kind: KindValidation, Op: op, Message: "invalid input", Err: err}
	case errors.Is(err, storage.ErrNotFound):
		return &Error{Kind: KindNotFound, Op: op, Message: "person not found", Err: err}
	case errors.Is(err, storage.ErrDuplicate):
		return &Error{Kind: KindConflict, Op: op, Message: "email already registered", Err: err}
	default:
		return &Error{Kind: KindStorage, Op: op, Message: "storage unavailable", Err: err}
	}
}
