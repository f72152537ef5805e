package sandbox

import (
	"log/slog"
	"sync/atomic"

	"github.com/tetratelabs/wazero/experimental"
)

// oomWarnThreshold is the usage percentage above which a single warning is
// logged for the invocation.
const oomWarnThreshold = 90.0

// Allow is the memory sandbox decision: it reports whether growing linear
// memory from currentBytes by additionalBytes stays at or below limitBytes.
// Constant time, no allocation, and safe against unsigned overflow; a denial
// leaves already-granted memory untouched.
func Allow(currentBytes, additionalBytes, limitBytes uint64) bool {
	if additionalBytes > limitBytes {
		return false
	}
	return currentBytes <= limitBytes-additionalBytes
}

// memoryEnforcer intercepts every linear-memory growth request of one
// invocation and rejects growth beyond the configured ceiling. It implements
// experimental.MemoryAllocator so the engine consults it on each growth
// attempt rather than the host polling after the fact. The counters are
// owned by a single invocation; atomics only guard the host reading a
// snapshot while the guest runs.
type memoryEnforcer struct {
	component string
	limit     uint64

	current     atomic.Uint64
	peak        atomic.Uint64
	allocs      atomic.Uint64
	denials     atomic.Uint64
	deniedBytes atomic.Uint64
	warned      atomic.Bool
}

func newMemoryEnforcer(component string, limitBytes uint64) *memoryEnforcer {
	return &memoryEnforcer{component: component, limit: limitBytes}
}

// Allocate implements experimental.MemoryAllocator.
func (e *memoryEnforcer) Allocate(minBytes, maxBytes uint64) experimental.LinearMemory {
	capacity := maxBytes
	if e.limit < capacity {
		capacity = e.limit
	}
	buf := make([]byte, 0, min(minBytes, capacity))
	return &guardedMemory{enf: e, buf: buf}
}

// grew records a granted growth to newSize bytes.
func (e *memoryEnforcer) grew(newSize uint64) {
	e.current.Store(newSize)
	if newSize > e.peak.Load() {
		e.peak.Store(newSize)
	}
	e.allocs.Add(1)
	if e.limit > 0 {
		pct := float64(newSize) / float64(e.limit) * 100.0
		if pct >= oomWarnThreshold && e.warned.CompareAndSwap(false, true) {
			slog.Warn("component near memory limit",
				"component", e.component,
				"current_bytes", newSize,
				"limit_bytes", e.limit)
		}
	}
}

func (e *memoryEnforcer) deny(current, additional uint64) {
	e.denials.Add(1)
	e.deniedBytes.Store(current + additional)
	slog.Debug("memory growth denied",
		"component", e.component,
		"current_bytes", current,
		"requested_additional_bytes", additional,
		"limit_bytes", e.limit)
}

// guardedMemory is the linear memory of one module instance, backed by a
// host slice the enforcer controls.
type guardedMemory struct {
	enf *memoryEnforcer
	buf []byte
}

// Reallocate grows the memory to size bytes, or returns nil to make the
// guest observe the growth operation failing, exactly as a normal
// out-of-memory condition. Shrinking never happens in practice; same-size
// calls are no-ops.
func (m *guardedMemory) Reallocate(size uint64) []byte {
	current := uint64(len(m.buf))
	if size <= current {
		return m.buf
	}
	if !Allow(current, size-current, m.enf.limit) {
		m.enf.deny(current, size-current)
		return nil
	}
	if size <= uint64(cap(m.buf)) {
		m.buf = m.buf[:size]
	} else {
		grown := make([]byte, size)
		copy(grown, m.buf)
		m.buf = grown
	}
	m.enf.grew(size)
	return m.buf
}

// Free implements experimental.LinearMemory.
func (m *guardedMemory) Free() {
	m.buf = nil
}
