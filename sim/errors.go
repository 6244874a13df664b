package sim

import (
	"fmt"
	"time"
)

// ConfigurationError reports malformed or contradictory simulation settings.
// It always surfaces before the first time step runs.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Reason
}

func configErrorf(format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Reason: fmt.Sprintf(format, args...)}
}

// UnknownStreamError reports a request for a randomness stream whose decision
// point was never registered. This is a component wiring mistake and surfaces
// at setup time.
type UnknownStreamError struct {
	Decision string
}

func (e *UnknownStreamError) Error() string {
	return fmt.Sprintf("unknown randomness stream %q", e.Decision)
}

// UnknownPipelineError reports a modifier registration against a value
// pipeline that does not exist.
type UnknownPipelineError struct {
	Pipeline string
}

func (e *UnknownPipelineError) Error() string {
	return fmt.Sprintf("unknown value pipeline %q", e.Pipeline)
}

// MissingRiskDataError reports an exposure category or curve the supplied
// relative-risk data does not cover. Fatal at setup.
type MissingRiskDataError struct {
	Risk     string
	Category string
}

func (e *MissingRiskDataError) Error() string {
	return fmt.Sprintf("risk %q has no relative-risk data for category %q", e.Risk, e.Category)
}

// InvalidRateError reports a rate pipeline yielding a negative or non-finite
// value at runtime. The run aborts at the offending step since continuing
// would corrupt transition probabilities.
type InvalidRateError struct {
	Pipeline string
	Value    float64
	Step     int
	Time     time.Time
}

func (e *InvalidRateError) Error() string {
	return fmt.Sprintf("pipeline %q produced invalid rate %v at step %d (%s)",
		e.Pipeline, e.Value, e.Step, e.Time.Format("2006-01-02"))
}
