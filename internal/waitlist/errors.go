package waitlist

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"puppyspa/waitlist-service/internal/ordering"
	"puppyspa/waitlist-service/internal/store"
)

// ValidationError reports a rejected input before any store call was made.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Field + ": " + e.Reason
}

// TransportError wraps a store failure that is neither a not-found nor a
// conflict: connection loss, timeout, a failed flush.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func IsNotFound(err error) bool {
	return errors.Is(err, store.ErrListNotFound) ||
		errors.Is(err, store.ErrEntryNotFound) ||
		errors.Is(err, ordering.ErrEntryNotInList)
}

func IsConflict(err error) bool {
	return errors.Is(err, store.ErrListExists) || errors.Is(err, store.ErrOrderingMismatch)
}

// classify leaves domain errors untouched and wraps everything else.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var validation *ValidationError
	if IsNotFound(err) || IsConflict(err) || errors.Is(err, store.ErrInvalidStatus) || errors.As(err, &validation) {
		return err
	}
	return &TransportError{Op: op, Err: err}
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// fromValidator turns the first validator failure into a ValidationError.
func fromValidator(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return invalid("", err.Error())
	}
	fe := fieldErrs[0]
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return invalid(field, "is required")
	case "gt":
		return invalid(field, "must be positive")
	case "notblank":
		return invalid(field, "must not be blank")
	default:
		return invalid(field, "failed "+fe.Tag()+" check")
	}
}
