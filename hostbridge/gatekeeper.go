// Package hostbridge is the authorization surface between sandboxed
// components and privileged host operations. Bridges (filesystem, network,
// storage, messaging) consult the Gatekeeper with the specific capability
// being exercised before acting on a module's behalf; a denial must surface
// back into the module as an error, never a silent no-op.
package hostbridge

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/compbox/compbox/capability"
)

// Gatekeeper answers allow/deny for host-bridged operations against the
// capability set attached to the invocation's context. It is a pure
// predicate: stateless, safe for concurrent use.
type Gatekeeper struct {
	matcher capability.Matcher
}

// NewGatekeeper returns a gatekeeper. matcher supplies the matching
// semantics for custom capabilities and may be nil, in which case custom
// capabilities only authorize structurally equal requests.
func NewGatekeeper(matcher capability.Matcher) *Gatekeeper {
	return &Gatekeeper{matcher: matcher}
}

// Authorize returns nil when the invocation owning ctx is granted the
// requested capability, or a *capability.DeniedError otherwise.
func (g *Gatekeeper) Authorize(ctx context.Context, requested capability.Capability) error {
	set := capability.FromContext(ctx)
	if set == nil {
		return &capability.DeniedError{Capability: requested, Reason: "no capabilities granted"}
	}
	return set.Authorize(requested, g.matcher)
}

// ParseRequest decodes a "kind:argument" capability request string, e.g.
// "file-read:/data/users.json", "network-in:8080" or "process-spawn". This
// is the wire form guests use when probing their own permissions.
func ParseRequest(s string) (capability.Capability, error) {
	kindStr, arg, hasArg := strings.Cut(s, ":")
	kind, err := capability.ParseKind(kindStr)
	if err != nil {
		return capability.Capability{}, err
	}

	switch kind {
	case capability.KindProcessSpawn:
		if hasArg {
			return capability.Capability{}, fmt.Errorf("capability %q takes no argument", kindStr)
		}
		return capability.ProcessSpawn(), nil
	case capability.KindNetworkInbound:
		port, err := strconv.ParseUint(arg, 10, 16)
		if err != nil {
			return capability.Capability{}, fmt.Errorf("capability %q needs a port, got %q", kindStr, arg)
		}
		return capability.NetworkInbound(uint16(port)), nil
	case capability.KindCustom:
		name, _, _ := strings.Cut(arg, ":")
		if name == "" {
			return capability.Capability{}, fmt.Errorf("capability %q needs a name", kindStr)
		}
		return capability.Custom(name, nil), nil
	}

	if !hasArg || arg == "" {
		return capability.Capability{}, fmt.Errorf("capability %q needs a pattern", kindStr)
	}
	switch kind {
	case capability.KindFileRead:
		return capability.FileRead(arg), nil
	case capability.KindFileWrite:
		return capability.FileWrite(arg), nil
	case capability.KindNetworkOutbound:
		return capability.NetworkOutbound(arg), nil
	case capability.KindStorage:
		return capability.Storage(arg), nil
	case capability.KindMessaging:
		return capability.Messaging(arg), nil
	}
	return capability.Capability{}, fmt.Errorf("unhandled capability kind %q", kindStr)
}
