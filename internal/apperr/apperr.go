package apperr

import (
	"fmt"

	"github.com/pkg/errors"
)

// ValidationError is terminal for the single operation that produced
// it. It is surfaced to the caller and never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func Validation(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// AuthorizationError means the caller is not an authenticated identity
// (or the token no longer verifies). Not retried automatically.
type AuthorizationError struct {
	Reason string
}

func (e *AuthorizationError) Error() string {
	return e.Reason
}

func Authorization(reason string) error {
	return &AuthorizationError{Reason: reason}
}

// TransientStoreError wraps store unavailability and timeouts. Callers
// retry with backoff; it never means "the conversation is empty".
type TransientStoreError struct {
	Err error
}

func (e *TransientStoreError) Error() string {
	return e.Err.Error()
}

func (e *TransientStoreError) Unwrap() error {
	return e.Err
}

func TransientStore(err error, msg string) error {
	return &TransientStoreError{Err: errors.Wrap(err, msg)}
}

// ErrStaleSelection marks a fetch result that arrived for a target no
// longer selected. Discarded silently, never surfaced, never counted
// as a failure.
var ErrStaleSelection = errors.New("stale selection")

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsAuthorization(err error) bool {
	var ae *AuthorizationError
	return errors.As(err, &ae)
}

func IsTransient(err error) bool {
	var te *TransientStoreError
	return errors.As(err, &te)
}
