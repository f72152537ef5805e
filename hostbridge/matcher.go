package hostbridge

import (
	"sync"

	"github.com/compbox/compbox/capability"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// ExprMatcher matches custom capabilities whose granted parameters carry a
// "rule" key holding a boolean expression. The rule is evaluated against
// the requested capability:
//
//	capability.Custom("gpu.compute", map[string]any{
//	    "rule": `params.device < 4`,
//	})
//
// authorizes any request named "gpu.compute" whose params satisfy the rule.
// Grants without a rule fall back to structural equality, which the set
// already covers, so they match nothing extra here.
type ExprMatcher struct {
	mu    sync.Mutex
	cache map[string]*vm.Program
}

// NewExprMatcher returns a matcher with an empty rule cache.
func NewExprMatcher() *ExprMatcher {
	return &ExprMatcher{cache: make(map[string]*vm.Program)}
}

// MatchCustom implements capability.Matcher.
func (m *ExprMatcher) MatchCustom(granted, requested capability.Capability) bool {
	params, ok := granted.Params().(map[string]any)
	if !ok {
		return false
	}
	rule, ok := params["rule"].(string)
	if !ok || rule == "" {
		return false
	}

	program, err := m.compile(rule)
	if err != nil {
		return false
	}

	env := map[string]any{
		"name":   requested.Name(),
		"params": requested.Params(),
	}
	out, err := vm.Run(program, env)
	if err != nil {
		return false
	}
	allowed, ok := out.(bool)
	return ok && allowed
}

// compile compiles a rule once per process; the same rule string always
// yields the same program.
func (m *ExprMatcher) compile(rule string) (*vm.Program, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.cache[rule]; ok {
		return p, nil
	}
	p, err := expr.Compile(rule, expr.AsBool(), expr.AllowUndefinedVariables())
	if err != nil {
		return nil, err
	}
	m.cache[rule] = p
	return p, nil
}
