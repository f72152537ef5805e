package capability

import "github.com/gobwas/glob"

// Pattern is a compiled glob wrapping the raw pattern string. Matching is
// case-sensitive and anchored on the full candidate: a pattern must cover the
// entire string, never a substring. The separator rune keeps wildcards from
// crossing path or label boundaries, so "*.example.com" matches
// "api.example.com" but not "a.b.example.com".
type Pattern struct {
	raw string
	g   glob.Glob
}

func newPattern(raw string, sep rune) Pattern {
	g, err := glob.Compile(raw, sep)
	if err != nil {
		// Malformed glob: fall back to literal equality so the pattern
		// still authorizes exactly itself and nothing else.
		g = nil
	}
	return Pattern{raw: raw, g: g}
}

// String returns the raw pattern string.
func (p Pattern) String() string { return p.raw }

// Match reports whether candidate is covered by the pattern.
func (p Pattern) Match(candidate string) bool {
	if p.g == nil {
		return p.raw == candidate
	}
	return p.g.Match(candidate)
}

// IsZero reports whether the pattern is unset.
func (p Pattern) IsZero() bool { return p.raw == "" && p.g == nil }
