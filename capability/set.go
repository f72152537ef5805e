package capability

import (
	"context"
	"sort"
)

// Set is an unordered, deduplicated collection of granted capabilities.
// Granting a structural duplicate is a no-op. A Set is owned by the
// invocation that created it: build it, hand it to the supervisor, and treat
// it as read-only from then on. Concurrent reads are safe; concurrent
// mutation is not.
type Set struct {
	caps map[string]Capability
}

// NewSet returns a set granting the given capabilities.
func NewSet(caps ...Capability) *Set {
	s := &Set{caps: make(map[string]Capability, len(caps))}
	for _, c := range caps {
		s.Grant(c)
	}
	return s
}

// Grant adds a capability. Duplicates are ignored.
func (s *Set) Grant(c Capability) {
	s.caps[c.Key()] = c
}

// Revoke removes a capability by structural equality.
func (s *Set) Revoke(c Capability) {
	delete(s.caps, c.Key())
}

// Has reports whether the set contains an exactly equal capability. This is
// the coarse check used for pattern-less kinds such as process-spawn.
func (s *Set) Has(c Capability) bool {
	_, ok := s.caps[c.Key()]
	return ok
}

// Matches reports whether the requested capability is authorized by any
// granted capability under pattern-aware matching. Custom capabilities only
// match structurally here; use MatchesWith to plug in a custom matcher.
// Authorization succeeds if any grant matches; denial is only ever the
// absence of a matching grant.
func (s *Set) Matches(requested Capability) bool {
	return s.MatchesWith(requested, nil)
}

// MatchesWith is Matches with a pluggable matcher for custom capabilities.
func (s *Set) MatchesWith(requested Capability, m Matcher) bool {
	if s.Has(requested) {
		return true
	}
	for _, granted := range s.caps {
		if granted.kind != requested.kind {
			continue
		}
		switch granted.kind {
		case KindProcessSpawn:
			return true
		case KindNetworkInbound:
			if granted.port == requested.port {
				return true
			}
		case KindCustom:
			if m != nil && granted.name == requested.name && m.MatchCustom(granted, requested) {
				return true
			}
		default:
			if granted.pattern.Match(requested.pattern.String()) {
				return true
			}
		}
	}
	return false
}

// Authorize returns nil when requested is authorized, or a *DeniedError
// naming the capability otherwise.
func (s *Set) Authorize(requested Capability, m Matcher) error {
	if s.MatchesWith(requested, m) {
		return nil
	}
	return &DeniedError{Capability: requested, Reason: "no matching grant"}
}

// Len returns the number of granted capabilities.
func (s *Set) Len() int { return len(s.caps) }

// IsEmpty reports whether no capabilities are granted.
func (s *Set) IsEmpty() bool { return len(s.caps) == 0 }

// List returns the granted capabilities in deterministic order.
func (s *Set) List() []Capability {
	keys := make([]string, 0, len(s.caps))
	for k := range s.caps {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Capability, 0, len(keys))
	for _, k := range keys {
		out = append(out, s.caps[k])
	}
	return out
}

// Clone returns an independent copy. Two invocations needing the same
// permissions each get their own copy rather than sharing a mutable set.
func (s *Set) Clone() *Set {
	c := &Set{caps: make(map[string]Capability, len(s.caps))}
	for k, v := range s.caps {
		c.caps[k] = v
	}
	return c
}

// Matcher decides whether a granted custom capability authorizes a requested
// one. Matching semantics for custom capabilities are deliberately not part
// of this package; callers supply them.
type Matcher interface {
	MatchCustom(granted, requested Capability) bool
}

// MatcherFunc adapts a function to the Matcher interface.
type MatcherFunc func(granted, requested Capability) bool

// MatchCustom implements Matcher.
func (f MatcherFunc) MatchCustom(granted, requested Capability) bool {
	return f(granted, requested)
}

type setContextKey struct{}

// WithSet attaches the invocation's granted capabilities to the context so
// host bridges can consult them during guest calls.
func WithSet(ctx context.Context, s *Set) context.Context {
	return context.WithValue(ctx, setContextKey{}, s)
}

// FromContext returns the capability set attached to ctx, or nil.
func FromContext(ctx context.Context) *Set {
	s, _ := ctx.Value(setContextKey{}).(*Set)
	return s
}
