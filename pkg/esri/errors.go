package esri

import "fmt"

// ProviderError represents a failed provider interaction with its
// human-readable cause. Callers must inspect the cause before treating a
// failure as retryable.
type ProviderError struct {
	// Operation is the provider call that failed ("token", "enrich").
	Operation string

	// Message describes the failure when no underlying error exists.
	Message string

	// Err is the underlying error, if any.
	Err error
}

func (e *ProviderError) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("esri %s: %s: %v", e.Operation, e.Message, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("esri %s: %v", e.Operation, e.Err)
	default:
		return fmt.Sprintf("esri %s: %s", e.Operation, e.Message)
	}
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *ProviderError) Unwrap() error {
	return e.Err
}
