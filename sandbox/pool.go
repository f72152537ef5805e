package sandbox

import (
	"context"
	"runtime"

	"github.com/compbox/compbox/capability"
	"github.com/compbox/compbox/limits"
	"golang.org/x/sync/errgroup"
)

// Request describes one invocation for batch execution.
type Request struct {
	Component    string
	Function     string
	Params       []uint64
	Limits       limits.ResourceLimits
	Capabilities *capability.Set
}

// BatchResult pairs an outcome with any pre-execution error for one request.
type BatchResult struct {
	Outcome Outcome
	Err     error
}

// ExecuteAll runs the requests concurrently with bounded parallelism.
// Invocations are fully independent: results arrive in request order but
// carry no ordering guarantee relative to one another during execution, and
// one failing invocation never disturbs the others. parallelism <= 0 means
// one worker per CPU.
func (e *Engine) ExecuteAll(ctx context.Context, reqs []Request, parallelism int) []BatchResult {
	if parallelism <= 0 {
		parallelism = runtime.NumCPU()
	}

	results := make([]BatchResult, len(reqs))
	g := &errgroup.Group{}
	g.SetLimit(parallelism)

	for i, req := range reqs {
		i, req := i, req
		g.Go(func() error {
			comp, ok := e.Component(req.Component)
			if !ok {
				results[i] = BatchResult{Err: &LoadError{
					Component: req.Component,
					Cause:     errNotLoaded,
				}}
				return nil
			}
			out, err := comp.Execute(ctx, req.Function, req.Params, req.Limits, req.Capabilities)
			results[i] = BatchResult{Outcome: out, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}
