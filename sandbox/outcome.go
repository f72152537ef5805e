package sandbox

import (
	"fmt"
	"time"

	"github.com/compbox/compbox/limits"
	"github.com/google/uuid"
)

// Status tags the terminal state of an invocation.
type Status uint8

const (
	// StatusSuccess: the entry point returned normally.
	StatusSuccess Status = iota
	// StatusOutOfFuel: the deterministic CPU budget ran out.
	StatusOutOfFuel
	// StatusTimeout: the wall-clock deadline elapsed first.
	StatusTimeout
	// StatusTrapped: the module faulted (division by zero, out-of-bounds
	// access, explicit unreachable, ...). Traps are module-internal bugs,
	// never host failures.
	StatusTrapped
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusOutOfFuel:
		return "out-of-fuel"
	case StatusTimeout:
		return "timeout"
	case StatusTrapped:
		return "trapped"
	default:
		return "unknown"
	}
}

// ResourceUsage is the snapshot captured immediately before teardown, since
// teardown discards the underlying counters.
type ResourceUsage struct {
	// MemoryBytes is the linear memory size at the end of execution.
	MemoryBytes uint64
	// PeakMemoryBytes is the high-water mark of linear memory.
	PeakMemoryBytes uint64
	// Allocations counts granted linear-memory growth operations.
	Allocations uint64
	// FuelConsumed is the spent CPU budget in fuel units.
	FuelConsumed uint64
	// ExecutionTime is the wall-clock duration of the Executing state.
	ExecutionTime time.Duration
}

// Outcome is the sole channel through which the supervisor reports what
// happened to one invocation. Exactly one Outcome is produced per invocation.
type Outcome struct {
	// InvocationID correlates the outcome with log records.
	InvocationID uuid.UUID
	Status       Status
	// Results holds the raw return values of the entry point on success.
	Results []uint64
	// Fuel is the CPU-budget snapshot at classification time.
	Fuel limits.FuelMetrics
	Usage ResourceUsage
	// TrapReason is the best-effort classification of a trap.
	TrapReason string
	// Deadline is the configured wall-clock bound, for timeout reporting.
	Deadline time.Duration
	// Cause is the underlying engine error for non-success outcomes.
	Cause error
}

// Success reports whether the invocation completed normally.
func (o Outcome) Success() bool { return o.Status == StatusSuccess }

// String renders the outcome as a self-contained sentence naming the limit
// and the values involved.
func (o Outcome) String() string {
	switch o.Status {
	case StatusSuccess:
		return fmt.Sprintf("completed in %s (fuel: %s)", o.Usage.ExecutionTime, o.Fuel)
	case StatusOutOfFuel:
		return fmt.Sprintf("ran out of fuel: %s", o.Fuel)
	case StatusTimeout:
		return fmt.Sprintf("timed out after %s (fuel: %s)", o.Deadline, o.Fuel)
	case StatusTrapped:
		return fmt.Sprintf("trapped: %s", o.TrapReason)
	default:
		return "unknown outcome"
	}
}
