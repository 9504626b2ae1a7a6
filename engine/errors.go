/*
errors.go - Centralized error types for the capture engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Component packages wrap these with context via fmt.Errorf("%w").

ERROR CATEGORIES:
  1. Configuration missing - fatal for the invoking job
  2. Validation errors - rejected back to the caller of a write
  3. Duplicates - benign, counted rather than reported as failures
  4. Not found / state errors - lookups and lifecycle rule violations

USAGE:
  if errors.Is(err, engine.ErrConfigMissing) {
      return jobs.Failed(err)
  }

SEE ALSO:
  - jobs/job.go: Converts fatal errors to the failed result shape
  - api/handlers.go: Maps errors to HTTP status codes
*/
package engine

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrConfigMissing is returned when a required global config document or
	// field is absent. Required fields are never silently defaulted.
	ErrConfigMissing = errors.New("required configuration missing")

	// ErrValidation is returned when a write is rejected by a business rule.
	ErrValidation = errors.New("validation failed")

	// ErrDailyLimitExceeded is returned when a session would push a user past
	// the configured daily seconds limit.
	ErrDailyLimitExceeded = errors.New("daily seconds limit exceeded")

	// ErrDuplicate is returned when a record with the same key already exists.
	// Callers treat it as an idempotency collision.
	ErrDuplicate = errors.New("duplicate record")

	ErrUserNotFound       = errors.New("user not found")
	ErrPOINotFound        = errors.New("poi not found")
	ErrSessionNotFound    = errors.New("session not found")
	ErrChallengeNotFound  = errors.New("challenge not found")
	ErrRewardNotFound     = errors.New("reward not found")
	ErrActivationNotFound = errors.New("activation not found")
	ErrGlobalNotFound     = errors.New("global config not found")

	// ErrChallengeCompleted is returned when completing an already completed
	// challenge. completedAt is set once.
	ErrChallengeCompleted = errors.New("challenge already completed")

	// ErrChallengeExpired is returned when buying out an expired challenge.
	ErrChallengeExpired = errors.New("challenge expired")

	// ErrInsufficientCoins is returned when a buyout costs more than the user holds.
	ErrInsufficientCoins = errors.New("insufficient coins")

	// ErrNotOwner is returned when a user acts on another user's record.
	ErrNotOwner = errors.New("record belongs to another user")

	// ErrNoUsesRemaining is returned when consuming a use from an activation
	// that is not use-bound or already exhausted.
	ErrNoUsesRemaining = errors.New("no uses remaining")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ConfigError names the missing config document and field.
type ConfigError struct {
	Slug  string
	Field string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("config %q missing", e.Slug)
	}
	return fmt.Sprintf("config %q missing required field %q", e.Slug, e.Field)
}

func (e *ConfigError) Unwrap() error {
	return ErrConfigMissing
}

// ValidationError describes one rejected field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// DailyLimitError provides details about a daily cap violation.
type DailyLimitError struct {
	UserID    UserID
	Limit     int64
	Used      int64
	Requested int64
}

func (e *DailyLimitError) Error() string {
	return fmt.Sprintf("daily seconds limit exceeded for %s: limit %d, used %d, requested %d",
		e.UserID, e.Limit, e.Used, e.Requested)
}

func (e *DailyLimitError) Unwrap() error {
	return ErrDailyLimitExceeded
}

// InsufficientCoinsError provides details about a buyout shortfall.
type InsufficientCoinsError struct {
	UserID    UserID
	Available int64
	Cost      int64
}

func (e *InsufficientCoinsError) Error() string {
	return fmt.Sprintf("insufficient coins: available %d, cost %d", e.Available, e.Cost)
}

func (e *InsufficientCoinsError) Unwrap() error {
	return ErrInsufficientCoins
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
// Lookups and rule violations never will.
func IsRetryable(err error) bool {
	return err != nil && !IsClientError(err) && !IsNotFound(err) &&
		!errors.Is(err, ErrConfigMissing) && !errors.Is(err, ErrDuplicate)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrDailyLimitExceeded) ||
		errors.Is(err, ErrChallengeCompleted) ||
		errors.Is(err, ErrChallengeExpired) ||
		errors.Is(err, ErrInsufficientCoins) ||
		errors.Is(err, ErrNotOwner) ||
		errors.Is(err, ErrNoUsesRemaining)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrPOINotFound) ||
		errors.Is(err, ErrSessionNotFound) ||
		errors.Is(err, ErrChallengeNotFound) ||
		errors.Is(err, ErrRewardNotFound) ||
		errors.Is(err, ErrActivationNotFound) ||
		errors.Is(err, ErrGlobalNotFound)
}
