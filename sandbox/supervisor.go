package sandbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/compbox/compbox/capability"
	"github.com/compbox/compbox/limits"
	"github.com/google/uuid"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/experimental"
	"github.com/tetratelabs/wazero/sys"
)

// invocationState tracks the supervisor's progress through one invocation.
type invocationState uint8

const (
	stateIdle invocationState = iota
	stateLoading
	stateInstantiated
	stateExecuting
)

func (s invocationState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateLoading:
		return "loading"
	case stateInstantiated:
		return "instantiated"
	case stateExecuting:
		return "executing"
	default:
		return "unknown"
	}
}

// invocation is the per-call execution context: fuel tank, memory enforcer
// and state. It is owned by exactly one Execute call and never shared.
type invocation struct {
	id       uuid.UUID
	comp     *Component
	limits   limits.ResourceLimits
	state    invocationState
	mem      *memoryEnforcer
	tank     *fuelTank
	deadline time.Duration
}

// Execute runs one invocation of the component's exported function fn under
// the given resource limits and capability set. It returns exactly one
// Outcome for every invocation that reaches the executing state; errors are
// only returned for failures before execution starts (invalid limits,
// instantiation failure, missing export) or when the caller's own context is
// canceled.
//
// The wall-clock deadline is cooperative: execution is raced against a timer
// at the task level, not interrupted mid-instruction. A module stuck in a
// blocking host call that never yields may outlive the deadline, which is
// why the deterministic fuel governor covers CPU-bound work. Fuel itself is
// charged per executed call frame, not per instruction: a loop that never
// calls anything spends one unit total and is bounded by the deadline alone,
// so MaxFuel should be tuned to call counts, not instruction counts.
func (c *Component) Execute(ctx context.Context, fn string, params []uint64, rl limits.ResourceLimits, caps *capability.Set) (Outcome, error) {
	if err := rl.Validate(); err != nil {
		return Outcome{}, err
	}
	if caps == nil {
		caps = capability.NewSet()
	}

	inv := &invocation{
		id:       uuid.New(),
		comp:     c,
		limits:   rl,
		state:    stateIdle,
		mem:      newMemoryEnforcer(c.name, rl.MaxMemoryBytes),
		deadline: rl.MaxExecution,
	}
	inv.state = stateLoading

	// Prime the dual-layer CPU governor: a wall-clock deadline raced
	// against a fuel tank that cancels the same context when it empties.
	ictx, cancelDeadline := context.WithTimeout(ctx, rl.MaxExecution)
	defer cancelDeadline()
	ictx, cancelCause := context.WithCancelCause(ictx)
	defer cancelCause(nil)

	inv.tank = &fuelTank{max: rl.MaxFuel, cancel: cancelCause}
	ictx = withFuelTank(ictx, inv.tank)
	ictx = experimental.WithMemoryAllocator(ictx, inv.mem)
	ictx = capability.WithSet(ictx, caps)

	mod, err := inv.instantiate(ictx)
	if err != nil {
		return Outcome{}, err
	}
	// Teardown is identical on every path: the instance, its linear
	// memory, and all host-call bookkeeping go away together.
	defer func() {
		_ = mod.Close(ctx)
	}()
	inv.state = stateInstantiated

	fnRef := mod.ExportedFunction(fn)
	if fnRef == nil {
		return Outcome{}, &FunctionNotFoundError{Component: c.name, Function: fn}
	}

	inv.state = stateExecuting
	started := time.Now()
	results, callErr := fnRef.Call(ictx, params...)
	elapsed := time.Since(started)

	if callErr != nil && ctx.Err() != nil && !inv.tank.exhausted() {
		// The caller's own context ended the invocation; that is not one
		// of the module's terminal states.
		return Outcome{}, ctx.Err()
	}

	outcome := inv.classify(ictx, callErr, results, elapsed)
	slog.Debug("invocation finished",
		"invocation", inv.id,
		"component", c.name,
		"function", fn,
		"status", outcome.Status,
		"fuel_consumed", outcome.Usage.FuelConsumed,
		"memory_bytes", outcome.Usage.MemoryBytes,
		"elapsed", elapsed)
	return outcome, nil
}

// instantiate creates a fresh, isolated instance with the memory enforcer
// and fuel governor already installed via ictx.
func (inv *invocation) instantiate(ictx context.Context) (mod api.Module, err error) {
	// The engine panics rather than erroring when the allocator denies the
	// module's declared initial memory; that must surface as a load failure,
	// never escape to the caller.
	defer func() {
		if r := recover(); r != nil {
			if mod != nil {
				_ = mod.Close(ictx)
			}
			mod = nil
			err = &LoadError{Component: inv.comp.name, Cause: inv.instantiationPanic(r)}
		}
	}()

	cfg := wazero.NewModuleConfig().
		WithName(inv.comp.name + "#" + inv.id.String()).
		WithStartFunctions()
	mod, err = inv.comp.engine.runtime.InstantiateModule(ictx, inv.comp.module, cfg)
	if err != nil {
		return nil, &LoadError{Component: inv.comp.name, Cause: err}
	}

	// Reactor-style modules expect _initialize before any export is used.
	if initFn := mod.ExportedFunction("_initialize"); initFn != nil {
		if _, err := initFn.Call(ictx); err != nil {
			_ = mod.Close(ictx)
			return nil, &LoadError{Component: inv.comp.name, Cause: err}
		}
	}
	return mod, nil
}

// instantiationPanic names the cause of a panic caught during instantiation.
// A denied allocation with nothing yet granted means the module's declared
// initial memory alone exceeds the ceiling.
func (inv *invocation) instantiationPanic(r any) error {
	if size := inv.mem.deniedBytes.Load(); size > 0 && inv.mem.current.Load() == 0 {
		return fmt.Errorf("declared initial memory of %d bytes exceeds the %d byte memory limit",
			size, inv.limits.MaxMemoryBytes)
	}
	return fmt.Errorf("instantiation panic: %v", r)
}

// classify maps the call result onto exactly one outcome variant. The
// resource snapshot is taken here, before teardown discards the counters.
// Fuel exhaustion is reported preferentially over a timeout when both are
// detected: it pinpoints CPU-bound cost, while the deadline is generic.
func (inv *invocation) classify(ictx context.Context, callErr error, results []uint64, elapsed time.Duration) Outcome {
	fuel := inv.tank.metrics()
	out := Outcome{
		InvocationID: inv.id,
		Fuel:         fuel,
		Deadline:     inv.deadline,
		Usage: ResourceUsage{
			MemoryBytes:     inv.mem.current.Load(),
			PeakMemoryBytes: inv.mem.peak.Load(),
			Allocations:     inv.mem.allocs.Load(),
			FuelConsumed:    fuel.Consumed,
			ExecutionTime:   elapsed,
		},
		Cause: callErr,
	}

	if callErr == nil {
		out.Status = StatusSuccess
		out.Results = results
		return out
	}

	cause := context.Cause(ictx)
	switch {
	case inv.tank.exhausted() || errors.Is(cause, ErrFuelExhausted):
		out.Status = StatusOutOfFuel
	case errors.Is(cause, context.DeadlineExceeded) || errors.Is(callErr, context.DeadlineExceeded):
		out.Status = StatusTimeout
	default:
		out.Status = StatusTrapped
		out.TrapReason = classifyTrap(callErr)

		var exitErr *sys.ExitError
		if errors.As(callErr, &exitErr) {
			switch exitErr.ExitCode() {
			case sys.ExitCodeDeadlineExceeded:
				out.Status = StatusTimeout
				out.TrapReason = ""
			case sys.ExitCodeContextCanceled:
				// Cancellation observed by the engine before the cause
				// surfaced; the deadline is the only remaining canceller.
				out.Status = StatusTimeout
				out.TrapReason = ""
			default:
				out.TrapReason = exitReason(exitErr)
			}
		}
	}
	return out
}

// exitReason describes a guest-initiated exit.
func exitReason(e *sys.ExitError) string {
	if e.ExitCode() == 0 {
		return "module exited during call"
	}
	return e.Error()
}
