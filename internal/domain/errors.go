package domain

import (
	"errors"
	"fmt"
)

// ErrAllProvidersFailed is reported when no rate provider produced a usable rate
var ErrAllProvidersFailed = errors.New("all rate providers failed")

// ProviderError is a single provider's failure to produce a rate.
// It is recovered by the provider fallback chain and never reaches callers.
type ProviderError struct {
	Err      error
	Provider string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// InvalidInputError describes a rejected input value.
// Aggregation excludes the offending subscription instead of failing the batch.
type InvalidInputError struct {
	Field  string
	Value  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

// ConfigurationError is a fatal startup problem with the configuration
type ConfigurationError struct {
	Key    string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration %s: %s", e.Key, e.Reason)
}

// IsInvalidInput reports whether err wraps an *InvalidInputError
func IsInvalidInput(err error) bool {
	var target *InvalidInputError
	return errors.As(err, &target)
}
