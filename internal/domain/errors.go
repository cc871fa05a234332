package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrRateLimited      = errors.New("rate limited")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrInvalidOrder     = errors.New("invalid order parameters")
	ErrOrderRejected    = errors.New("order rejected")
	ErrSigningFailed    = errors.New("signing failed")
	ErrWSDisconnect     = errors.New("websocket disconnected")
	ErrPartialExecution = errors.New("partial execution")
	ErrLockHeld         = errors.New("lock already held")
	ErrInvalidConfig    = errors.New("invalid configuration")
)
