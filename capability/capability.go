// Package capability defines the permission model for sandboxed components.
// A Capability is a single pattern-scoped permission grant; a Set is the
// deduplicated collection of grants one invocation runs under. Both are pure
// value objects: nothing here performs I/O or touches the execution engine.
package capability

import (
	"encoding/json"
	"fmt"
)

// Kind discriminates the capability variants.
type Kind uint8

const (
	// KindFileRead grants read access to paths matching a PathPattern.
	KindFileRead Kind = iota
	// KindFileWrite grants write access to paths matching a PathPattern.
	KindFileWrite
	// KindNetworkOutbound grants outbound connections to domains matching a DomainPattern.
	KindNetworkOutbound
	// KindNetworkInbound grants listening on a specific port.
	KindNetworkInbound
	// KindStorage grants access to storage namespaces matching a NamespacePattern.
	KindStorage
	// KindProcessSpawn grants spawning host processes.
	KindProcessSpawn
	// KindMessaging grants publishing/subscribing to topics matching a TopicPattern.
	KindMessaging
	// KindCustom is an extension point carrying a name and opaque parameters.
	KindCustom
)

// String returns the stable wire name of the kind. These names appear in
// grants files and in denial messages; they are part of the public contract.
func (k Kind) String() string {
	switch k {
	case KindFileRead:
		return "file-read"
	case KindFileWrite:
		return "file-write"
	case KindNetworkOutbound:
		return "network-out"
	case KindNetworkInbound:
		return "network-in"
	case KindStorage:
		return "storage"
	case KindProcessSpawn:
		return "process-spawn"
	case KindMessaging:
		return "messaging"
	case KindCustom:
		return "custom"
	default:
		return "unknown"
	}
}

// ParseKind maps a wire name back to its Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "file-read":
		return KindFileRead, nil
	case "file-write":
		return KindFileWrite, nil
	case "network-out":
		return KindNetworkOutbound, nil
	case "network-in":
		return KindNetworkInbound, nil
	case "storage":
		return KindStorage, nil
	case "process-spawn":
		return KindProcessSpawn, nil
	case "messaging":
		return KindMessaging, nil
	case "custom":
		return KindCustom, nil
	default:
		return 0, fmt.Errorf("unknown capability kind %q", s)
	}
}

// Capability is a single permission grant or request. It is immutable once
// constructed; the pattern string is compiled exactly once and never
// re-interpreted for the lifetime of the process.
type Capability struct {
	kind    Kind
	pattern Pattern
	port    uint16
	name    string
	params  any
}

// FileRead returns a capability granting read access to paths matching pattern.
func FileRead(pattern string) Capability {
	return Capability{kind: KindFileRead, pattern: newPattern(pattern, '/')}
}

// FileWrite returns a capability granting write access to paths matching pattern.
func FileWrite(pattern string) Capability {
	return Capability{kind: KindFileWrite, pattern: newPattern(pattern, '/')}
}

// NetworkOutbound returns a capability granting outbound connections to
// domains matching pattern. The wildcard matches a single DNS label:
// "*.example.com" covers "api.example.com" but not "example.com".
func NetworkOutbound(pattern string) Capability {
	return Capability{kind: KindNetworkOutbound, pattern: newPattern(pattern, '.')}
}

// NetworkInbound returns a capability granting listening on port.
func NetworkInbound(port uint16) Capability {
	return Capability{kind: KindNetworkInbound, port: port}
}

// Storage returns a capability granting access to storage namespaces matching
// pattern, e.g. "cache.*".
func Storage(pattern string) Capability {
	return Capability{kind: KindStorage, pattern: newPattern(pattern, '.')}
}

// ProcessSpawn returns the capability granting host process spawning.
func ProcessSpawn() Capability {
	return Capability{kind: KindProcessSpawn}
}

// Messaging returns a capability granting access to topics matching pattern,
// e.g. "events.*".
func Messaging(pattern string) Capability {
	return Capability{kind: KindMessaging, pattern: newPattern(pattern, '.')}
}

// Custom returns an extension capability. params must be a JSON-encodable
// value; it is compared structurally. Matching semantics for custom
// capabilities are supplied by the caller through a Matcher.
func Custom(name string, params any) Capability {
	return Capability{kind: KindCustom, name: name, params: params}
}

// Kind returns the capability's variant.
func (c Capability) Kind() Kind { return c.kind }

// Pattern returns the raw pattern string, or "" for pattern-less kinds.
func (c Capability) Pattern() string { return c.pattern.String() }

// Port returns the port of a network-in capability.
func (c Capability) Port() uint16 { return c.port }

// Name returns the name of a custom capability.
func (c Capability) Name() string { return c.name }

// Params returns the opaque parameters of a custom capability.
func (c Capability) Params() any { return c.params }

// Key returns the canonical identity of the capability. Two capabilities are
// structurally equal exactly when their keys are equal.
func (c Capability) Key() string {
	switch c.kind {
	case KindProcessSpawn:
		return c.kind.String()
	case KindNetworkInbound:
		return fmt.Sprintf("%s:%d", c.kind, c.port)
	case KindCustom:
		return fmt.Sprintf("%s:%s:%s", c.kind, c.name, canonicalParams(c.params))
	default:
		return c.kind.String() + ":" + c.pattern.String()
	}
}

// Equal reports structural equality.
func (c Capability) Equal(other Capability) bool {
	return c.Key() == other.Key()
}

// String returns a human-readable form, e.g. "file-read:/data/*".
func (c Capability) String() string {
	switch c.kind {
	case KindProcessSpawn:
		return c.kind.String()
	case KindNetworkInbound:
		return fmt.Sprintf("%s:%d", c.kind, c.port)
	case KindCustom:
		return c.kind.String() + ":" + c.name
	default:
		return c.kind.String() + ":" + c.pattern.String()
	}
}

// canonicalParams renders params deterministically. encoding/json sorts map
// keys, which is enough for structural comparison of JSON-like values.
func canonicalParams(params any) string {
	if params == nil {
		return "null"
	}
	data, err := json.Marshal(params)
	if err != nil {
		return fmt.Sprintf("%#v", params)
	}
	return string(data)
}

// DeniedError is returned when a requested capability is not authorized by
// the invocation's granted set.
type DeniedError struct {
	Capability Capability
	Reason     string
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("capability denied: %s (%s)", e.Capability, e.Reason)
}
