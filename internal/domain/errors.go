package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrProviderFailure     = errors.New("provider failure")
	ErrDuplicateOperation  = errors.New("duplicate operation")
)
