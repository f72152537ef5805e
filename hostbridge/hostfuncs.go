package hostbridge

import (
	"context"
	"log/slog"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// HostModuleName is the import namespace components use for bridged calls.
const HostModuleName = "compbox_host"

// Register instantiates the built-in host module on the runtime:
//
//	log(level i32, msgPacked i64)        structured log line from the guest
//	capability_check(reqPacked i64) i32  returns 1 if the capability is granted
//
// Packed i64 values carry ptr<<32|len into guest memory. capability_check
// lets a guest probe its permissions cheaply; actual privileged bridges must
// still call Gatekeeper.Authorize themselves before acting.
func Register(gk *Gatekeeper) func(context.Context, wazero.Runtime) error {
	return func(ctx context.Context, r wazero.Runtime) error {
		builder := r.NewHostModuleBuilder(HostModuleName)

		builder.NewFunctionBuilder().
			WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
				logMessage(ctx, mod, stack)
			}), []api.ValueType{api.ValueTypeI32, api.ValueTypeI64}, nil).
			Export("log")

		builder.NewFunctionBuilder().
			WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
				stack[0] = capabilityCheck(ctx, mod, stack[0], gk)
			}), []api.ValueType{api.ValueTypeI64}, []api.ValueType{api.ValueTypeI32}).
			Export("capability_check")

		_, err := builder.Instantiate(ctx)
		return err
	}
}

func unpackPtrLen(packed uint64) (ptr, length uint32) {
	return uint32(packed >> 32), uint32(packed)
}

// readGuestString copies a guest string out of module memory.
func readGuestString(mod api.Module, packed uint64) (string, bool) {
	ptr, length := unpackPtrLen(packed)
	data, ok := mod.Memory().Read(ptr, length)
	if !ok {
		return "", false
	}
	return string(data), true
}

func logMessage(ctx context.Context, mod api.Module, stack []uint64) {
	level := slog.Level(int32(uint32(stack[0])))
	msg, ok := readGuestString(mod, stack[1])
	if !ok {
		slog.ErrorContext(ctx, "failed to read log message from guest memory",
			"component", mod.Name())
		return
	}
	slog.LogAttrs(ctx, level, msg, slog.String("component", mod.Name()))
}

func capabilityCheck(ctx context.Context, mod api.Module, packed uint64, gk *Gatekeeper) uint64 {
	req, ok := readGuestString(mod, packed)
	if !ok {
		return 0
	}
	requested, err := ParseRequest(req)
	if err != nil {
		slog.DebugContext(ctx, "malformed capability request from guest",
			"component", mod.Name(), "request", req, "error", err)
		return 0
	}
	if err := gk.Authorize(ctx, requested); err != nil {
		return 0
	}
	return 1
}
