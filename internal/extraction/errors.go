package extraction

import "fmt"

// StrategyPanicError wraps a panic raised inside a strategy call.
type StrategyPanicError struct {
	Strategy string
	Value    any
}

func (e *StrategyPanicError) Error() string {
	return fmt.Sprintf("strategy %s panicked: %v", e.Strategy, e.Value)
}

// EmptyResultError reports a strategy that returned neither result nor error.
type EmptyResultError struct {
	Strategy string
}

func (e *EmptyResultError) Error() string {
	return fmt.Sprintf("strategy %s returned no result", e.Strategy)
}

// SchemaError reports a provider response that did not match the expected
// schema. Responses are rejected, not guessed at.
type SchemaError struct {
	Strategy string
	Detail   string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("strategy %s: response schema mismatch: %s", e.Strategy, e.Detail)
}
