package sandbox

// Hand-assembled test modules. Each helper emits a complete binary module
// small enough that every section length fits in a single LEB128 byte.

func wasmModule(sections ...[]byte) []byte {
	out := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
	for _, s := range sections {
		out = append(out, s...)
	}
	return out
}

func wasmSection(id byte, content []byte) []byte {
	return append([]byte{id, byte(len(content))}, content...)
}

// typeSecI32 declares a single function type () -> i32.
var typeSecI32 = wasmSection(0x01, []byte{0x01, 0x60, 0x00, 0x01, 0x7f})

func exportRunSec(funcIdx byte) []byte {
	return wasmSection(0x07, []byte{0x01, 0x03, 'r', 'u', 'n', 0x00, funcIdx})
}

// answerModule exports run() -> i32 returning 42.
func answerModule() []byte {
	return wasmModule(
		typeSecI32,
		wasmSection(0x03, []byte{0x01, 0x00}),
		exportRunSec(0),
		wasmSection(0x0a, []byte{0x01, 0x04, 0x00, 0x41, 0x2a, 0x0b}),
	)
}

// divByZeroModule exports run() that evaluates 1/0 and traps.
func divByZeroModule() []byte {
	return wasmModule(
		typeSecI32,
		wasmSection(0x03, []byte{0x01, 0x00}),
		exportRunSec(0),
		wasmSection(0x0a, []byte{0x01, 0x07, 0x00, 0x41, 0x01, 0x41, 0x00, 0x6d, 0x0b}),
	)
}

// spinModule exports run() that loops forever without calling anything.
func spinModule() []byte {
	return wasmModule(
		typeSecI32,
		wasmSection(0x03, []byte{0x01, 0x00}),
		exportRunSec(0),
		wasmSection(0x0a, []byte{0x01, 0x09, 0x00, 0x03, 0x40, 0x0c, 0x00, 0x0b, 0x41, 0x00, 0x0b}),
	)
}

// memGrowModule exports run() that grows its one-page linear memory by
// growPages pages and returns the result of memory.grow, which is -1 when
// the growth is denied.
func memGrowModule(growPages byte) []byte {
	return wasmModule(
		typeSecI32,
		wasmSection(0x03, []byte{0x01, 0x00}),
		wasmSection(0x05, []byte{0x01, 0x00, 0x01}),
		exportRunSec(0),
		wasmSection(0x0a, []byte{0x01, 0x06, 0x00, 0x41, growPages, 0x40, 0x00, 0x0b}),
	)
}

// callChainModule exports run() that calls a second function `calls` times
// and returns the sum of its results. The callee always returns 1, so run
// returns `calls` and executes calls+1 frames in total.
func callChainModule(calls int) []byte {
	body := []byte{0x00, 0x41, 0x00}
	for i := 0; i < calls; i++ {
		body = append(body, 0x10, 0x01, 0x6a)
	}
	body = append(body, 0x0b)

	code := []byte{0x02, byte(len(body))}
	code = append(code, body...)
	code = append(code, 0x04, 0x00, 0x41, 0x01, 0x0b)

	return wasmModule(
		typeSecI32,
		wasmSection(0x03, []byte{0x02, 0x00, 0x00}),
		exportRunSec(0),
		wasmSection(0x0a, code),
	)
}
