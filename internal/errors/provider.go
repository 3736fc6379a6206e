// Package errors defines typed errors shared across the enrichment pipeline.
package errors

import (
	stdErrors "errors"
	"fmt"
)

// ProviderUnavailableError means a provider cannot be used at all, typically
// because its credentials or connection settings are missing. The orchestrator
// logs it and moves on to the next provider in the chain.
type ProviderUnavailableError struct {
	Provider string
	Reason   string
}

func (e *ProviderUnavailableError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("provider %s unavailable: %s", e.Provider, e.Reason)
	}
	return fmt.Sprintf("provider %s unavailable", e.Provider)
}

// NewProviderUnavailableError creates a ProviderUnavailableError.
func NewProviderUnavailableError(provider, reason string) *ProviderUnavailableError {
	return &ProviderUnavailableError{Provider: provider, Reason: reason}
}

// IsProviderUnavailable reports whether err is a ProviderUnavailableError
// (even when wrapped).
func IsProviderUnavailable(err error) bool {
	var unavailable *ProviderUnavailableError
	return stdErrors.As(err, &unavailable)
}
