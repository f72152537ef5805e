package sandbox

import "strings"

// trapClasses maps substrings of the engine's trap text to human-actionable
// reasons. The engine does not expose a typed enumeration of trap causes, so
// this is inherently best-effort diagnostic information; the isolation
// guarantee does not depend on a match.
var trapClasses = []struct {
	substr string
	reason string
}{
	{"integer divide by zero", "integer division by zero"},
	{"integer overflow", "integer overflow"},
	{"out of bounds memory access", "out-of-bounds memory access"},
	{"indirect call type mismatch", "indirect call type mismatch"},
	{"invalid table access", "indirect call through a null table entry"},
	{"stack overflow", "call stack exhausted"},
	{"invalid conversion to integer", "invalid float-to-integer conversion"},
	{"unreachable", "unreachable instruction executed"},
}

// classifyTrap turns an engine trap error into a coarse reason string.
func classifyTrap(err error) string {
	msg := err.Error()
	for _, c := range trapClasses {
		if strings.Contains(msg, c.substr) {
			return c.reason
		}
	}
	return "unclassified trap: " + msg
}
