package domain

import "errors"

// Sentinel errors for the messaging core.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrUnauthorized = errors.New("unauthorized access")
	ErrValidation   = errors.New("invalid input")
	ErrInvalidState = errors.New("invalid state transition")
	ErrConnection   = errors.New("connection error")
	ErrNotConnected = errors.New("not connected")
)
