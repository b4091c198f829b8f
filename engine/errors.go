package engine

import "errors"

// Business-rule outcomes. These are expected conditions surfaced to the
// caller as named failures, never wrapped into opaque 500s.
var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInsufficientPoints  = errors.New("insufficient points")
	ErrRewardNotFound      = errors.New("reward not found")
	ErrRewardInactive      = errors.New("reward inactive")
	ErrOutOfStock          = errors.New("reward out of stock")
	ErrAlreadySpunToday    = errors.New("already spun today")
	ErrQuestNotFound       = errors.New("quest not found")
	ErrQuestExpired        = errors.New("quest expired")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrInvalidKind         = errors.New("unknown ledger kind")
)
