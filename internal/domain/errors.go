package domain

import "errors"

var (
	// ErrInvalidAmount is returned for zero or negative earn/spend amounts.
	ErrInvalidAmount = errors.New("invalid currency amount")
	// ErrInsufficientBalance is returned when a debit would drive a balance negative.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrConfigurationMissing indicates a required threshold or base amount is
	// absent from the reward configuration. Fails loudly; silent defaults
	// would corrupt the reward economics.
	ErrConfigurationMissing = errors.New("reward configuration missing")
	// ErrConcurrencyConflict is returned when optimistic retries on a balance
	// update are exhausted; callers should retry the whole completion.
	ErrConcurrencyConflict = errors.New("concurrent balance update conflict")
	// ErrDuplicateCompletion is returned when a completion ref has already
	// been processed. Re-processing is disallowed rather than deduplicated.
	ErrDuplicateCompletion = errors.New("completion already processed")
	// ErrUserNotFound is returned when the ledger has no record of the user.
	ErrUserNotFound = errors.New("user not found")
)
