package domain

import (
	"errors"
)

// ──────────────────────────────────────────────────────────────────────────────
// Sentinel errors; compare with errors.Is
// ──────────────────────────────────────────────────────────────────────────────

// Core taxonomy. Service code wraps these with context via fmt.Errorf("%w").
var (
	// ErrValidation is returned for malformed or out-of-range input (non-positive
	// stake, unknown selection, invalid role). Nothing is mutated.
	ErrValidation = errors.New("validation error")

	// ErrInsufficientBalance is returned when a debit exceeds the wallet balance.
	ErrInsufficientBalance = errors.New("insufficient wallet balance")

	// ErrInvalidStateTransition is returned when an action targets a match or
	// race that is not in an eligible status (e.g. betting after close).
	ErrInvalidStateTransition = errors.New("invalid state transition")

	// ErrLedgerInconsistency is returned when pool sub-totals do not add up to
	// the grand total, or bet stakes disagree with the pool. It aborts the
	// settlement run for that event.
	ErrLedgerInconsistency = errors.New("ledger inconsistency")
)

// Event errors
var (
	// ErrMatchNotFound is returned when no match matches the given id.
	ErrMatchNotFound = errors.New("match not found")

	// ErrRaceNotFound is returned when no karera race matches the given id.
	ErrRaceNotFound = errors.New("race not found")

	// ErrHorseNotFound is returned when a horse number is not entered in the race.
	ErrHorseNotFound = errors.New("horse not found in race")

	// ErrSnapshotNotFound is returned when settlement runs before the pool was
	// frozen at close.
	ErrSnapshotNotFound = errors.New("pool snapshot not frozen")
)

// Bet errors
var (
	// ErrBetNotFound is returned when no bet matches the given id.
	ErrBetNotFound = errors.New("bet not found")

	// ErrBetTooSmall is returned when a stake is below the configured minimum.
	ErrBetTooSmall = errors.New("bet amount is below the minimum")
)

// User / wallet errors
var (
	// ErrUserNotFound is returned when no profile matches the given criteria.
	ErrUserNotFound = errors.New("user not found")

	// ErrUsernameTaken is returned when the username already exists.
	ErrUsernameTaken = errors.New("username is already taken")

	// ErrInvalidCredentials is returned on login with a wrong username or password.
	ErrInvalidCredentials = errors.New("invalid username or password")

	// ErrUserBanned is returned when a banned account tries to log in or bet.
	ErrUserBanned = errors.New("account is banned")
)

// Auth errors
var (
	// ErrUnauthorized is returned when a valid token is not present.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden is returned when the caller's role or downline does not allow
	// the action.
	ErrForbidden = errors.New("forbidden: insufficient permissions")

	// ErrTokenInvalid is returned when a token cannot be parsed, has expired, or
	// its signature does not match.
	ErrTokenInvalid = errors.New("token is invalid")
)

// ──────────────────────────────────────────────────────────────────────────────
// Helper predicates
// ──────────────────────────────────────────────────────────────────────────────

var notFoundErrors = []error{
	ErrMatchNotFound,
	ErrRaceNotFound,
	ErrHorseNotFound,
	ErrBetNotFound,
	ErrUserNotFound,
	ErrSnapshotNotFound,
}

// IsNotFound returns true when err (or any error in its chain) is one of the
// domain "not found" errors.
func IsNotFound(err error) bool {
	for _, target := range notFoundErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsValidation reports whether err is a caller input error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrBetTooSmall)
}

// IsConflict returns true for errors that represent a state conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrInvalidStateTransition) || errors.Is(err, ErrUsernameTaken)
}

// IsAuthError returns true for authentication/authorisation errors.
func IsAuthError(err error) bool {
	authErrors := []error{
		ErrUnauthorized,
		ErrForbidden,
		ErrTokenInvalid,
		ErrInvalidCredentials,
		ErrUserBanned,
	}
	for _, target := range authErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
