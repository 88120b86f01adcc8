package shared

// Outcome classifies the result of a mutating aggregate operation.
// Callers must branch differently on "new state produced", "the guard found
// this exact effect already recorded", and "the operation was explicitly
// suppressed" - so this is a dedicated sum type rather than a bool or error.
type Outcome int

const (
	// OutcomeExecuted means new events were recorded and a payload is available
	OutcomeExecuted Outcome = iota
	// OutcomeAlreadyApplied means the requested condition was not (or no longer) met
	OutcomeAlreadyApplied
	// OutcomeIgnored means an idempotency guard suppressed a repeated invocation
	OutcomeIgnored
)

// String returns the outcome name
func (o Outcome) String() string {
	switch o {
	case OutcomeExecuted:
		return "EXECUTED"
	case OutcomeAlreadyApplied:
		return "ALREADY_APPLIED"
	case OutcomeIgnored:
		return "IGNORED"
	}
	return "UNKNOWN"
}

// Idempotent wraps the tri-state result of an idempotent aggregate operation.
// Value is only meaningful when Outcome is OutcomeExecuted.
type Idempotent[T any] struct {
	Outcome Outcome
	Value   T
}

// Executed builds a result carrying a newly produced payload
func Executed[T any](value T) Idempotent[T] {
	return Idempotent[T]{Outcome: OutcomeExecuted, Value: value}
}

// AlreadyApplied builds a result for a call whose condition was not met
func AlreadyApplied[T any]() Idempotent[T] {
	return Idempotent[T]{Outcome: OutcomeAlreadyApplied}
}

// Ignored builds a result for a call suppressed by an idempotency guard
func Ignored[T any]() Idempotent[T] {
	return Idempotent[T]{Outcome: OutcomeIgnored}
}

// WasExecuted returns true if the operation produced new state
func (r Idempotent[T]) WasExecuted() bool {
	return r.Outcome == OutcomeExecuted
}
