// Package wasmtest assembles small wasm plugins for tests of the wasm
// transport.
//
// The module exports memory, alloc, dealloc, ops and dispatch. alloc always
// hands out the buffer at RequestBuffer, dealloc counts its calls in the
// exported global "frees", and dispatch behaves according to the op id:
//
//	OpEcho        returns the request buffer itself
//	OpNone        returns 0 (no response)
//	OpOutOfBounds returns a range past the end of memory
//	any other id  returns a non-zero pointer with length 0
package wasmtest

import (
	"encoding/json"
)

const (
	OpEcho uint32 = iota
	OpNone
	OpOutOfBounds
	OpEmpty
)

// RequestBuffer is the address alloc returns. The op table JSON lives below it.
const RequestBuffer = 1024

// FreesGlobal names the exported i32 global counting dealloc calls.
const FreesGlobal = "frees"

const pageSize = 65536

const (
	i32 = 0x7f
	i64 = 0x7e
)

// Module returns a wasm binary whose ops export advertises table.
func Module(table map[string]uint32) []byte {
	opsJSON, err := json.Marshal(table)
	if err != nil {
		panic(err)
	}
	if len(opsJSON) >= RequestBuffer {
		panic("wasmtest: op table does not fit below the request buffer")
	}

	out := []byte{0x00, 'a', 's', 'm', 0x01, 0x00, 0x00, 0x00}

	out = append(out, section(1, vec(
		funcType([]byte{i32}, []byte{i32}),
		funcType([]byte{i32, i32}, nil),
		funcType(nil, []byte{i64}),
		funcType([]byte{i32, i32, i32}, []byte{i64}),
	))...)

	out = append(out, section(3, vec([]byte{0}, []byte{1}, []byte{2}, []byte{3}))...)

	out = append(out, section(5, vec([]byte{0x00, 0x01}))...)

	// (global (mut i32) (i32.const 0))
	out = append(out, section(6, vec([]byte{i32, 0x01, 0x41, 0x00, 0x0b}))...)

	out = append(out, section(7, vec(
		export("memory", 0x02, 0),
		export("alloc", 0x00, 0),
		export("dealloc", 0x00, 1),
		export("ops", 0x00, 2),
		export("dispatch", 0x00, 3),
		export(FreesGlobal, 0x03, 0),
	))...)

	alloc := cat([]byte{0x41}, sleb(RequestBuffer))
	dealloc := []byte{
		0x23, 0x00, // global.get 0
		0x41, 0x01, // i32.const 1
		0x6a,       // i32.add
		0x24, 0x00, // global.set 0
	}
	ops := cat([]byte{0x42}, sleb(int64(len(opsJSON))))
	dispatch := cat(
		[]byte{
			0x20, 0x00, 0x45, 0x04, 0x40, // local.get 0; i32.eqz; if
			0x20, 0x01, 0xad, 0x42, 0x20, 0x86, // (i64 ptr) << 32
			0x20, 0x02, 0xad, 0x84, 0x0f, // | (i64 len); return
			0x0b,
			0x20, 0x00, 0x41, byte(OpNone), 0x46, 0x04, 0x40, // op == OpNone
			0x42, 0x00, 0x0f,
			0x0b,
			0x20, 0x00, 0x41, byte(OpOutOfBounds), 0x46, 0x04, 0x40, // op == OpOutOfBounds
			0x42,
		},
		sleb(pageSize<<32|16),
		[]byte{0x0f, 0x0b, 0x42},
		sleb(8<<32),
	)
	out = append(out, section(10, vec(
		body(alloc),
		body(dealloc),
		body(ops),
		body(dispatch),
	))...)

	// active segment in memory 0 at offset 0
	out = append(out, section(11, vec(cat([]byte{0x00, 0x41, 0x00, 0x0b}, bytesVec(opsJSON))))...)

	return out
}

func funcType(params, results []byte) []byte {
	return cat([]byte{0x60}, bytesVec(params), bytesVec(results))
}

func export(name string, kind byte, index uint32) []byte {
	return cat(bytesVec([]byte(name)), []byte{kind}, uleb(uint64(index)))
}

func body(code []byte) []byte {
	fn := cat([]byte{0x00}, code, []byte{0x0b})
	return bytesVec(fn)
}

func section(id byte, payload []byte) []byte {
	return cat([]byte{id}, bytesVec(payload))
}

func vec(items ...[]byte) []byte {
	return cat(append([][]byte{uleb(uint64(len(items)))}, items...)...)
}

func bytesVec(b []byte) []byte {
	return cat(uleb(uint64(len(b))), b)
}

func cat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func uleb(v uint64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v == 0 {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}

func sleb(v int64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}
