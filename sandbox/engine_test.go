package sandbox

import (
	"context"
	"testing"
	"time"

	"github.com/compbox/compbox/limits"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close(context.Background()) })
	return e
}

func testLimits() limits.ResourceLimits {
	return limits.ResourceLimits{
		MaxMemoryBytes: 1 << 20,
		MaxFuel:        limits.DefaultMaxFuel,
		MaxExecution:   time.Second,
	}
}

// TestExecuteSuccess verifies a well-behaved module completes with its
// results and a resource snapshot
func TestExecuteSuccess(t *testing.T) {
	e := newTestEngine(t)
	comp, err := e.Load(context.Background(), "answer", answerModule())
	require.NoError(t, err)

	out, err := comp.Execute(context.Background(), "run", nil, testLimits(), nil)
	require.NoError(t, err)

	assert.True(t, out.Success())
	require.Len(t, out.Results, 1)
	assert.Equal(t, uint64(42), out.Results[0])
	assert.GreaterOrEqual(t, out.Fuel.Consumed, uint64(1))
	assert.False(t, out.Fuel.Exhausted())
	assert.NotEqual(t, out.InvocationID.String(), "00000000-0000-0000-0000-000000000000")
}

// TestExecuteTrap verifies a faulting module yields a trapped outcome with a
// classified reason, not an error
func TestExecuteTrap(t *testing.T) {
	e := newTestEngine(t)
	comp, err := e.Load(context.Background(), "crasher", divByZeroModule())
	require.NoError(t, err)

	out, err := comp.Execute(context.Background(), "run", nil, testLimits(), nil)
	require.NoError(t, err)

	assert.Equal(t, StatusTrapped, out.Status)
	assert.Contains(t, out.TrapReason, "division")
	assert.Error(t, out.Cause)
	assert.Contains(t, out.String(), "trapped:")
}

// TestCrashIsolation verifies a trap in one component leaves the engine and
// other components fully usable
func TestCrashIsolation(t *testing.T) {
	e := newTestEngine(t)
	crasher, err := e.Load(context.Background(), "crasher", divByZeroModule())
	require.NoError(t, err)
	answer, err := e.Load(context.Background(), "answer", answerModule())
	require.NoError(t, err)

	out, err := crasher.Execute(context.Background(), "run", nil, testLimits(), nil)
	require.NoError(t, err)
	require.Equal(t, StatusTrapped, out.Status)

	out, err = answer.Execute(context.Background(), "run", nil, testLimits(), nil)
	require.NoError(t, err)
	assert.True(t, out.Success())
	assert.Equal(t, uint64(42), out.Results[0])
}

// TestRepeatedCrashes verifies teardown is complete after every one of many
// consecutive faulting invocations
func TestRepeatedCrashes(t *testing.T) {
	e := newTestEngine(t)
	crasher, err := e.Load(context.Background(), "crasher", divByZeroModule())
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		out, err := crasher.Execute(context.Background(), "run", nil, testLimits(), nil)
		require.NoError(t, err, "invocation %d", i)
		require.Equal(t, StatusTrapped, out.Status, "invocation %d", i)
	}

	answer, err := e.Load(context.Background(), "answer", answerModule())
	require.NoError(t, err)
	out, err := answer.Execute(context.Background(), "run", nil, testLimits(), nil)
	require.NoError(t, err)
	assert.True(t, out.Success())
}

// TestFuelExhaustion verifies a CPU-bound loop is stopped by the
// deterministic budget, classified as out-of-fuel rather than a timeout
func TestFuelExhaustion(t *testing.T) {
	e := newTestEngine(t)
	comp, err := e.Load(context.Background(), "spinner", spinModule())
	require.NoError(t, err)

	rl := limits.ResourceLimits{
		MaxMemoryBytes: 1 << 20,
		MaxFuel:        1,
		MaxExecution:   5 * time.Second,
	}
	out, err := comp.Execute(context.Background(), "run", nil, rl, nil)
	require.NoError(t, err)

	assert.Equal(t, StatusOutOfFuel, out.Status)
	assert.True(t, out.Fuel.Exhausted())
	assert.Contains(t, out.String(), "ran out of fuel:")
	assert.Less(t, out.Usage.ExecutionTime, 5*time.Second)
}

// TestWallClockTimeout verifies a loop that spends almost no fuel is stopped
// by the deadline and classified as a timeout
func TestWallClockTimeout(t *testing.T) {
	e := newTestEngine(t)
	comp, err := e.Load(context.Background(), "spinner", spinModule())
	require.NoError(t, err)

	rl := limits.ResourceLimits{
		MaxMemoryBytes: 1 << 20,
		MaxFuel:        limits.DefaultMaxFuel,
		MaxExecution:   50 * time.Millisecond,
	}
	started := time.Now()
	out, err := comp.Execute(context.Background(), "run", nil, rl, nil)
	require.NoError(t, err)

	assert.Equal(t, StatusTimeout, out.Status)
	assert.False(t, out.Fuel.Exhausted())
	assert.GreaterOrEqual(t, time.Since(started), 50*time.Millisecond)
	assert.Contains(t, out.String(), "timed out after 50ms")
}

// TestFuelDeterminism verifies identical invocations consume identical fuel
// regardless of wall-clock conditions
func TestFuelDeterminism(t *testing.T) {
	e := newTestEngine(t)
	comp, err := e.Load(context.Background(), "chain", callChainModule(10))
	require.NoError(t, err)

	first, err := comp.Execute(context.Background(), "run", nil, testLimits(), nil)
	require.NoError(t, err)
	require.True(t, first.Success())
	assert.Equal(t, uint64(10), first.Results[0])
	assert.GreaterOrEqual(t, first.Fuel.Consumed, uint64(11))

	rl := testLimits()
	rl.MaxExecution = 10 * time.Second
	second, err := comp.Execute(context.Background(), "run", nil, rl, nil)
	require.NoError(t, err)
	require.True(t, second.Success())

	assert.Equal(t, first.Fuel.Consumed, second.Fuel.Consumed)
}

// TestMemoryGrowthDenied verifies growth past the ceiling fails inside the
// guest as an ordinary out-of-memory result while the invocation completes
func TestMemoryGrowthDenied(t *testing.T) {
	e := newTestEngine(t)
	comp, err := e.Load(context.Background(), "grower", memGrowModule(16))
	require.NoError(t, err)

	rl := limits.ResourceLimits{
		MaxMemoryBytes: 128 * 1024,
		MaxFuel:        limits.DefaultMaxFuel,
		MaxExecution:   time.Second,
	}
	out, err := comp.Execute(context.Background(), "run", nil, rl, nil)
	require.NoError(t, err)

	require.True(t, out.Success())
	assert.Equal(t, int32(-1), int32(uint32(out.Results[0])), "memory.grow reports failure to the guest")
	assert.LessOrEqual(t, out.Usage.PeakMemoryBytes, rl.MaxMemoryBytes)
}

// TestMemoryGrowthAllowed verifies growth within the ceiling succeeds and is
// reflected in the usage snapshot
func TestMemoryGrowthAllowed(t *testing.T) {
	e := newTestEngine(t)
	comp, err := e.Load(context.Background(), "grower", memGrowModule(16))
	require.NoError(t, err)

	rl := limits.ResourceLimits{
		MaxMemoryBytes: 2 << 20,
		MaxFuel:        limits.DefaultMaxFuel,
		MaxExecution:   time.Second,
	}
	out, err := comp.Execute(context.Background(), "run", nil, rl, nil)
	require.NoError(t, err)

	require.True(t, out.Success())
	assert.Equal(t, uint64(1), out.Results[0], "memory.grow returns the previous page count")
	assert.Equal(t, uint64(17*65536), out.Usage.PeakMemoryBytes)
	assert.LessOrEqual(t, out.Usage.PeakMemoryBytes, rl.MaxMemoryBytes)
}

// TestInitialMemoryAtCeiling verifies a module whose declared initial memory
// exactly equals the ceiling instantiates and runs, with no headroom to grow
func TestInitialMemoryAtCeiling(t *testing.T) {
	e := newTestEngine(t)
	comp, err := e.Load(context.Background(), "grower", memGrowModule(1))
	require.NoError(t, err)

	rl := limits.ResourceLimits{
		MaxMemoryBytes: 65536,
		MaxFuel:        limits.DefaultMaxFuel,
		MaxExecution:   time.Second,
	}
	out, err := comp.Execute(context.Background(), "run", nil, rl, nil)
	require.NoError(t, err)

	require.True(t, out.Success())
	assert.Equal(t, int32(-1), int32(uint32(out.Results[0])), "no room left to grow")
	assert.Equal(t, uint64(65536), out.Usage.PeakMemoryBytes)
}

// TestInitialMemoryOverCeiling verifies a module whose declared initial
// memory alone exceeds the ceiling fails as a load error, never a crash, and
// leaves the engine usable
func TestInitialMemoryOverCeiling(t *testing.T) {
	e := newTestEngine(t)
	comp, err := e.Load(context.Background(), "grower", memGrowModule(1))
	require.NoError(t, err)

	rl := limits.ResourceLimits{
		MaxMemoryBytes: 1024,
		MaxFuel:        limits.DefaultMaxFuel,
		MaxExecution:   time.Second,
	}
	_, err = comp.Execute(context.Background(), "run", nil, rl, nil)
	require.Error(t, err)

	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Contains(t, err.Error(), "initial memory")
	assert.Contains(t, err.Error(), "65536")
	assert.Contains(t, err.Error(), "1024")

	answer, err := e.Load(context.Background(), "answer", answerModule())
	require.NoError(t, err)
	out, err := answer.Execute(context.Background(), "run", nil, testLimits(), nil)
	require.NoError(t, err)
	assert.True(t, out.Success())
}

// TestMemoryIsolationBetweenInvocations verifies each invocation starts from
// a fresh linear memory
func TestMemoryIsolationBetweenInvocations(t *testing.T) {
	e := newTestEngine(t)
	comp, err := e.Load(context.Background(), "grower", memGrowModule(4))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		out, err := comp.Execute(context.Background(), "run", nil, testLimits(), nil)
		require.NoError(t, err)
		require.True(t, out.Success())
		assert.Equal(t, uint64(1), out.Results[0], "every invocation grows from one page")
	}
}

// TestFunctionNotFound verifies a missing export fails before execution
func TestFunctionNotFound(t *testing.T) {
	e := newTestEngine(t)
	comp, err := e.Load(context.Background(), "answer", answerModule())
	require.NoError(t, err)

	_, err = comp.Execute(context.Background(), "missing", nil, testLimits(), nil)
	require.Error(t, err)

	var nfErr *FunctionNotFoundError
	require.ErrorAs(t, err, &nfErr)
	assert.Equal(t, "answer", nfErr.Component)
	assert.Equal(t, "missing", nfErr.Function)
}

// TestExecuteInvalidLimits verifies limits are validated before anything runs
func TestExecuteInvalidLimits(t *testing.T) {
	e := newTestEngine(t)
	comp, err := e.Load(context.Background(), "answer", answerModule())
	require.NoError(t, err)

	_, err = comp.Execute(context.Background(), "run", nil, limits.ResourceLimits{}, nil)
	var cfgErr *limits.ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

// TestLoadInvalidBinary verifies malformed bytes are rejected at load time
func TestLoadInvalidBinary(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.Load(context.Background(), "garbage", []byte{0xde, 0xad, 0xbe, 0xef})
	require.Error(t, err)

	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, "garbage", loadErr.Component)
}

// TestLoadCaching verifies loading the same name twice yields the cached
// component
func TestLoadCaching(t *testing.T) {
	e := newTestEngine(t)

	first, err := e.Load(context.Background(), "answer", answerModule())
	require.NoError(t, err)
	second, err := e.Load(context.Background(), "answer", answerModule())
	require.NoError(t, err)
	assert.Same(t, first, second)

	// Names are owner-unique: different bytes under a cached name are not
	// compiled.
	third, err := e.Load(context.Background(), "answer", divByZeroModule())
	require.NoError(t, err)
	assert.Same(t, first, third)

	got, ok := e.Component("answer")
	require.True(t, ok)
	assert.Same(t, first, got)

	e.Unload("answer")
	_, ok = e.Component("answer")
	assert.False(t, ok)
}

// TestCallerCancellation verifies the caller's own context ending the call
// surfaces as an error, not as one of the module's terminal states
func TestCallerCancellation(t *testing.T) {
	e := newTestEngine(t)
	comp, err := e.Load(context.Background(), "spinner", spinModule())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	timer := time.AfterFunc(20*time.Millisecond, cancel)
	defer timer.Stop()

	rl := limits.ResourceLimits{
		MaxMemoryBytes: 1 << 20,
		MaxFuel:        limits.DefaultMaxFuel,
		MaxExecution:   5 * time.Second,
	}
	_, err = comp.Execute(ctx, "run", nil, rl, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
