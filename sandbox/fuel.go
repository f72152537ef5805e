package sandbox

import (
	"context"
	"sync/atomic"

	"github.com/compbox/compbox/limits"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/experimental"
)

// frameCost is the fuel charged per executed call frame. Fuel is an abstract,
// engine-defined unit: charging happens at call-frame boundaries rather than
// per instruction, which is why consumption can overshoot the budget by up to
// one unit before the governor trips.
const frameCost = 1

// fuelTank is the live CPU budget of one invocation. It is exclusively owned
// by the invocation's execution context; atomics only guard the host reading
// a snapshot while the guest runs.
type fuelTank struct {
	max      uint64
	consumed atomic.Uint64
	tripped  atomic.Bool
	cancel   context.CancelCauseFunc
}

// consume charges units of fuel and cancels the invocation with
// ErrFuelExhausted the moment the budget is spent. The check rides along
// with every charge, so a CPU-bound loop cannot starve it.
func (t *fuelTank) consume(units uint64) {
	if t.max == 0 {
		return // metering disabled
	}
	total := t.consumed.Add(units)
	if total >= t.max && t.tripped.CompareAndSwap(false, true) {
		t.cancel(ErrFuelExhausted)
	}
}

func (t *fuelTank) exhausted() bool {
	return t.tripped.Load()
}

func (t *fuelTank) metrics() limits.FuelMetrics {
	return limits.FuelMetrics{MaxFuel: t.max, Consumed: t.consumed.Load()}
}

type tankContextKey struct{}

func withFuelTank(ctx context.Context, t *fuelTank) context.Context {
	return context.WithValue(ctx, tankContextKey{}, t)
}

func tankFromContext(ctx context.Context) *fuelTank {
	t, _ := ctx.Value(tankContextKey{}).(*fuelTank)
	return t
}

// fuelGovernor instruments every guest function with a fuel charge. The
// factory is bound at compile time; the tank it charges comes from the call
// context, so one compiled module serves any number of invocations with
// independent budgets.
type fuelGovernor struct{}

// NewFunctionListener implements experimental.FunctionListenerFactory.
func (fuelGovernor) NewFunctionListener(api.FunctionDefinition) experimental.FunctionListener {
	return fuelListener{}
}

type fuelListener struct{}

// Before implements experimental.FunctionListener.
func (fuelListener) Before(ctx context.Context, _ api.Module, _ api.FunctionDefinition, _ []uint64, _ experimental.StackIterator) {
	if t := tankFromContext(ctx); t != nil {
		t.consume(frameCost)
	}
}

// After implements experimental.FunctionListener.
func (fuelListener) After(context.Context, api.Module, api.FunctionDefinition, []uint64) {}

// Abort implements experimental.FunctionListener.
func (fuelListener) Abort(context.Context, api.Module, api.FunctionDefinition, error) {}
