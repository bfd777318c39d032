package identity

import (
	"errors"
	"fmt"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// Text codes exposed to API layers so clients can branch without string
// matching on messages.
const (
	TextCodeInvalidEmail        = "INVALID_EMAIL"
	TextCodeDuplicateEmail      = "DUPLICATE_EMAIL"
	TextCodeInvalidOrExpiredKey = "INVALID_OR_EXPIRED_KEY"
	TextCodeInvalidCreds        = "INVALID_CREDENTIALS"
	TextCodeAccountInactive     = "ACCOUNT_INACTIVE"
	TextCodeDispatchFailed      = "MAIL_DISPATCH_FAILED"
)

// ErrInvalidEmail is returned when the email is missing or malformed.
// Rejected before any persistence attempt.
var ErrInvalidEmail = goerrors.New("the given email must be set and well formed", goerrors.CategoryValidation).
	WithTextCode(TextCodeInvalidEmail).
	WithCode(goerrors.CodeBadRequest)

// ErrDuplicateEmail is returned when the email unique constraint is hit.
// The response is uniform regardless of the blocking account's state.
var ErrDuplicateEmail = goerrors.New("an account with this email already exists", goerrors.CategoryConflict).
	WithTextCode(TextCodeDuplicateEmail).
	WithCode(goerrors.CodeConflict)

// ErrInvalidOrExpiredKey is the single failure for verification confirm.
// Wrong key, expired key, and no pending verification are deliberately
// indistinguishable so a guessed key leaks no account state.
var ErrInvalidOrExpiredKey = goerrors.New("the activation key is invalid or has expired", goerrors.CategoryValidation).
	WithTextCode(TextCodeInvalidOrExpiredKey).
	WithCode(goerrors.CodeBadRequest)

// ErrAccountInactive is returned when an inactive account tries to
// authenticate.
var ErrAccountInactive = goerrors.New("the account is not active", goerrors.CategoryAuth).
	WithTextCode(TextCodeAccountInactive).
	WithCode(goerrors.CodeUnauthorized)

// ErrMismatchedHashAndPassword covers both unknown identifiers and wrong
// passwords so callers cannot enumerate accounts.
var ErrMismatchedHashAndPassword = goerrors.New("the credentials provided are invalid", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCreds).
	WithCode(goerrors.CodeUnauthorized)

// ErrNoEmptyString is returned when a required secret is empty.
var ErrNoEmptyString = goerrors.New("value should not be an empty string", goerrors.CategoryValidation).
	WithCode(goerrors.CodeBadRequest)

// DispatchError reports a mail delivery failure for an operation whose
// state mutation already committed. Persistence and notification are not
// transactionally coupled; callers decide on retry or logging policy.
type DispatchError struct {
	// Recipient of the undelivered message.
	To  string
	Err error
}

// Error implements the error interface.
func (e *DispatchError) Error() string {
	return fmt.Sprintf("mail dispatch to %s failed: %v", e.To, e.Err)
}

// Unwrap exposes the underlying mailer error.
func (e *DispatchError) Unwrap() error {
	return e.Err
}

// NewDispatchError wraps a mailer failure.
func NewDispatchError(to string, err error) error {
	if err == nil {
		return nil
	}
	return &DispatchError{To: to, Err: err}
}

// IsDispatchFailure checks whether err is a non-fatal mail delivery
// failure. When true, the triggering operation's data mutation persisted.
func IsDispatchFailure(err error) bool {
	var de *DispatchError
	return errors.As(err, &de)
}

// IsUniqueViolation sniffs driver errors for unique constraint failures.
// Drivers expose these as text, so we match on the message the way the
// dialects print them.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value violates unique constraint") ||
		strings.Contains(msg, "Duplicate entry")
}
