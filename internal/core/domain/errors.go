package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidInput        = errors.New("invalid input")
	ErrTemporary           = errors.New("temporary failure")
	ErrProviderUnavailable = errors.New("all ai backends unavailable")
	ErrEnrichmentTimeout   = errors.New("enrichment timed out")
	ErrConflict            = errors.New("conflicting pending confirmation")
	ErrExpired             = errors.New("confirmation expired")
	ErrJobExhausted        = errors.New("job retry budget exhausted")
	ErrAlreadyProcessed    = errors.New("content already processed")
	ErrCanceled            = errors.New("pipeline canceled")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
