package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestInvocationStateString verifies the lifecycle state names
func TestInvocationStateString(t *testing.T) {
	assert.Equal(t, "idle", stateIdle.String())
	assert.Equal(t, "loading", stateLoading.String())
	assert.Equal(t, "instantiated", stateInstantiated.String())
	assert.Equal(t, "executing", stateExecuting.String())
	assert.Equal(t, "unknown", invocationState(99).String())
}

// TestErrorMessages verifies the failure types render self-contained
// sentences
func TestErrorMessages(t *testing.T) {
	loadErr := &LoadError{Component: "resizer", Cause: assert.AnError}
	assert.Contains(t, loadErr.Error(), `loading component "resizer" failed`)
	assert.ErrorIs(t, loadErr, assert.AnError)

	nfErr := &FunctionNotFoundError{Component: "resizer", Function: "transform"}
	assert.Equal(t, `component "resizer" does not export function "transform"`, nfErr.Error())
}
