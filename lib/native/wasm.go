package native

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/snowmerak/swc.go/lib/logging"
)

// Exports a wasm plugin must provide. Results of ops and dispatch are packed
// as ptr<<32 | len into the module's memory. A dispatch result of 0 means
// no response. dealloc is optional.
const (
	wasmAlloc    = "alloc"
	wasmDealloc  = "dealloc"
	wasmOps      = "ops"
	wasmDispatch = "dispatch"
)

type wasmPlugin struct {
	mu       sync.Mutex
	runtime  wazero.Runtime
	module   api.Module
	alloc    api.Function
	dealloc  api.Function
	dispatch api.Function
	ops      OpTable
	closed   bool
}

func openWasm(ctx context.Context, path string) (Plugin, error) {
	code, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read wasm plugin: %w", err)
	}
	return OpenWasmBytes(ctx, code)
}

// OpenWasmBytes instantiates a wasm plugin from its binary.
func OpenWasmBytes(ctx context.Context, code []byte) (Plugin, error) {
	runtime := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfig())

	module, err := runtime.InstantiateWithConfig(ctx, code, wazero.NewModuleConfig().WithName("deno_swc"))
	if err != nil {
		runtime.Close(ctx)
		return nil, fmt.Errorf("instantiate wasm plugin: %w", err)
	}

	p := &wasmPlugin{
		runtime:  runtime,
		module:   module,
		alloc:    module.ExportedFunction(wasmAlloc),
		dealloc:  module.ExportedFunction(wasmDealloc),
		dispatch: module.ExportedFunction(wasmDispatch),
	}

	opsFn := module.ExportedFunction(wasmOps)
	var missing []string
	for name, fn := range map[string]api.Function{wasmAlloc: p.alloc, wasmOps: opsFn, wasmDispatch: p.dispatch} {
		if fn == nil {
			missing = append(missing, name)
		}
	}
	if module.Memory() == nil {
		missing = append(missing, "memory")
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		runtime.Close(ctx)
		return nil, fmt.Errorf("wasm plugin is missing exports %v", missing)
	}

	results, err := opsFn.Call(ctx)
	if err != nil {
		runtime.Close(ctx)
		return nil, fmt.Errorf("call %s: %w", wasmOps, err)
	}
	raw, err := p.readPacked(ctx, results[0])
	if err != nil {
		runtime.Close(ctx)
		return nil, fmt.Errorf("read op table: %w", err)
	}

	var ops map[string]uint32
	if err := json.Unmarshal(raw, &ops); err != nil {
		runtime.Close(ctx)
		return nil, fmt.Errorf("decode op table: %w", err)
	}
	p.ops = make(OpTable, len(ops))
	for name, id := range ops {
		p.ops[name] = OpID(id)
	}

	logging.Named("native").Debug("wasm plugin opened", zap.Int("ops", len(p.ops)))
	return p, nil
}

func (p *wasmPlugin) Ops() OpTable {
	return p.ops
}

func (p *wasmPlugin) Dispatch(ctx context.Context, op OpID, req []byte) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrClosed
	}

	var ptr uint32
	if len(req) > 0 {
		results, err := p.alloc.Call(ctx, uint64(len(req)))
		if err != nil {
			return nil, fmt.Errorf("call %s: %w", wasmAlloc, err)
		}
		ptr = uint32(results[0])
		if !p.module.Memory().Write(ptr, req) {
			return nil, fmt.Errorf("request of %d bytes does not fit at %#x", len(req), ptr)
		}
		defer p.free(ctx, ptr, uint32(len(req)))
	}

	results, err := p.dispatch.Call(ctx, uint64(op), uint64(ptr), uint64(len(req)))
	if err != nil {
		return nil, fmt.Errorf("call %s(%d): %w", wasmDispatch, op, err)
	}
	if results[0] == 0 {
		return nil, nil
	}
	return p.readPacked(ctx, results[0])
}

// readPacked copies ptr<<32|len out of guest memory and releases the guest
// buffer when dealloc is exported.
func (p *wasmPlugin) readPacked(ctx context.Context, packed uint64) ([]byte, error) {
	ptr, size := uint32(packed>>32), uint32(packed)
	if size == 0 {
		return nil, nil
	}
	view, ok := p.module.Memory().Read(ptr, size)
	if !ok {
		return nil, fmt.Errorf("result range %#x+%d is out of bounds", ptr, size)
	}
	out := make([]byte, size)
	copy(out, view)
	p.free(ctx, ptr, size)
	return out, nil
}

func (p *wasmPlugin) free(ctx context.Context, ptr, size uint32) {
	if p.dealloc == nil {
		return
	}
	if _, err := p.dealloc.Call(ctx, uint64(ptr), uint64(size)); err != nil {
		logging.Named("native").Warn("wasm dealloc failed", zap.Error(err))
	}
}

func (p *wasmPlugin) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return errors.New("wasm plugin already closed")
	}
	p.closed = true
	return p.runtime.Close(context.Background())
}
