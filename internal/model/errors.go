package model

import (
	"errors"
	"fmt"
)

// Error kinds shared by the ledger, the oracle and the record service.
// Callers compare with errors.Is; every layer wraps with context.
var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrNotFound           = errors.New("not found")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrVerificationFailed = errors.New("verification failed")
	ErrSerialization      = errors.New("serialization error")
	ErrUnavailable        = errors.New("service unavailable")
)

// ErrUnknownRequest is returned for callbacks whose request id has no live
// correlation entry (never issued, or already fulfilled).
var ErrUnknownRequest = fmt.Errorf("unknown decryption request: %w", ErrNotFound)
