package sandbox

import (
	"context"
	"log/slog"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/experimental"
)

// globalCache speeds up compilation across engines.
var globalCache = wazero.NewCompilationCache()

// Engine is the process-wide execution engine: a single long-lived,
// thread-safe handle constructed once at process start and shared by every
// invocation. Construction is the only place engine-level configuration
// happens; per-invocation state (limits, capabilities, fuel) travels with
// each Execute call instead.
type Engine struct {
	runtime wazero.Runtime

	mu         sync.RWMutex
	components map[string]*Component
}

// Option configures an Engine.
type Option func(*engineConfig)

type engineConfig struct {
	hostModules []func(context.Context, wazero.Runtime) error
}

// WithHostModule registers a host module (bridged host functions) on the
// engine's runtime during construction.
func WithHostModule(register func(context.Context, wazero.Runtime) error) Option {
	return func(cfg *engineConfig) {
		cfg.hostModules = append(cfg.hostModules, register)
	}
}

// NewEngine creates the shared engine handle. The runtime is configured to
// abort in-flight execution when an invocation's context is done; that is
// the mechanism both the wall-clock deadline and the fuel governor use to
// stop a running module.
func NewEngine(ctx context.Context, opts ...Option) (*Engine, error) {
	var cfg engineConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	rtConfig := wazero.NewRuntimeConfig().
		WithCloseOnContextDone(true).
		WithCompilationCache(globalCache)
	r := wazero.NewRuntimeWithConfig(ctx, rtConfig)

	for _, register := range cfg.hostModules {
		if err := register(ctx, r); err != nil {
			_ = r.Close(ctx)
			return nil, err
		}
	}

	return &Engine{
		runtime:    r,
		components: make(map[string]*Component),
	}, nil
}

// Component is a loaded, validated module ready for any number of concurrent
// invocations. The compiled bytecode is immutable and shared; every
// invocation gets a fresh instance with its own isolated linear memory.
type Component struct {
	name   string
	module wazero.CompiledModule
	engine *Engine
}

// Name returns the component's identifier.
func (c *Component) Name() string { return c.name }

// Load compiles and validates a component binary, caching the result under
// name. Names are owner-unique: loading an already-cached name returns the
// existing component without looking at wasmBytes, so replacing a
// component's bytes requires Unload first. Malformed or invalid binaries
// fail with a *LoadError; the caller must not retry with the same bytes.
func (e *Engine) Load(ctx context.Context, name string, wasmBytes []byte) (*Component, error) {
	e.mu.RLock()
	if c, ok := e.components[name]; ok {
		e.mu.RUnlock()
		return c, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	if c, ok := e.components[name]; ok {
		return c, nil
	}

	// The fuel governor instruments every guest function at compile time;
	// which budget it charges is decided per invocation.
	cctx := experimental.WithFunctionListenerFactory(ctx, fuelGovernor{})
	compiled, err := e.runtime.CompileModule(cctx, wasmBytes)
	if err != nil {
		return nil, &LoadError{Component: name, Cause: err}
	}

	c := &Component{name: name, module: compiled, engine: e}
	e.components[name] = c
	slog.Debug("component loaded", "component", name, "bytes", len(wasmBytes))
	return c, nil
}

// Component returns a previously loaded component.
func (e *Engine) Component(name string) (*Component, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	c, ok := e.components[name]
	return c, ok
}

// Unload drops a loaded component from the cache.
func (e *Engine) Unload(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.components, name)
}

// Close releases the engine and all compiled modules.
func (e *Engine) Close(ctx context.Context) error {
	return e.runtime.Close(ctx)
}
