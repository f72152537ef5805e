// Package limits defines the immutable resource bounds governing a single
// component invocation: a memory ceiling, a fuel budget for deterministic CPU
// accounting, and a wall-clock deadline. It also parses the component
// manifest fragment these bounds are declared in.
package limits

import (
	"fmt"
	"time"
)

// Defaults for the CPU bounds. The memory limit deliberately has no default:
// memory footprint varies drastically per workload, so callers must declare
// it explicitly. CPU behavior is far more uniform, so fuel and deadline get
// generous defaults that typical short-lived calls never trip.
const (
	DefaultMaxFuel      uint64        = 1_000_000
	DefaultMaxExecution time.Duration = 100 * time.Millisecond
)

// ResourceLimits is the immutable bundle of bounds for one invocation. It is
// only ever read during execution; concurrent invocations may safely share
// one value.
type ResourceLimits struct {
	// MaxMemoryBytes caps the component's linear memory, in bytes.
	MaxMemoryBytes uint64
	// MaxFuel is the CPU budget in abstract fuel units. Zero disables
	// fuel metering.
	MaxFuel uint64
	// MaxExecution is the wall-clock deadline for the whole invocation.
	MaxExecution time.Duration
}

// ConfigError reports invalid or missing resource configuration. It is fatal
// before any invocation starts and is never retried.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

// Builder assembles a ResourceLimits value. The memory limit is mandatory;
// fuel and deadline fall back to the package defaults when not set.
type Builder struct {
	memory *uint64
	fuel   *uint64
	exec   *time.Duration
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// MaxMemoryBytes sets the mandatory linear-memory ceiling.
func (b *Builder) MaxMemoryBytes(n uint64) *Builder {
	b.memory = &n
	return b
}

// MaxFuel overrides the default fuel budget.
func (b *Builder) MaxFuel(n uint64) *Builder {
	b.fuel = &n
	return b
}

// MaxExecution overrides the default wall-clock deadline.
func (b *Builder) MaxExecution(d time.Duration) *Builder {
	b.exec = &d
	return b
}

// Build validates the configuration and returns the immutable limits.
// A missing or zero memory limit fails with a *ConfigError.
func (b *Builder) Build() (ResourceLimits, error) {
	if b.memory == nil {
		return ResourceLimits{}, &ConfigError{
			Field:  "resources.memory.max_bytes",
			Reason: "memory limit is mandatory and has no default",
		}
	}
	if *b.memory == 0 {
		return ResourceLimits{}, &ConfigError{
			Field:  "resources.memory.max_bytes",
			Reason: "memory limit must be greater than zero",
		}
	}
	rl := ResourceLimits{
		MaxMemoryBytes: *b.memory,
		MaxFuel:        DefaultMaxFuel,
		MaxExecution:   DefaultMaxExecution,
	}
	if b.fuel != nil {
		rl.MaxFuel = *b.fuel
	}
	if b.exec != nil {
		if *b.exec <= 0 {
			return ResourceLimits{}, &ConfigError{
				Field:  "resources.cpu.timeout_ms",
				Reason: "execution deadline must be positive",
			}
		}
		rl.MaxExecution = *b.exec
	}
	return rl, nil
}

// Validate checks an already-constructed value, for callers that fill the
// struct directly instead of going through the builder.
func (rl ResourceLimits) Validate() error {
	if rl.MaxMemoryBytes == 0 {
		return &ConfigError{
			Field:  "resources.memory.max_bytes",
			Reason: "memory limit must be greater than zero",
		}
	}
	if rl.MaxExecution <= 0 {
		return &ConfigError{
			Field:  "resources.cpu.timeout_ms",
			Reason: "execution deadline must be positive",
		}
	}
	return nil
}
