//go:build linux || darwin || freebsd

package native

import (
	"context"
	"fmt"
	"plugin"
	"sync/atomic"
)

const (
	opsSymbol      = "Ops"
	dispatchSymbol = "Dispatch"
)

type sharedPlugin struct {
	path     string
	ops      OpTable
	dispatch func(op uint32, req []byte) []byte
	closed   atomic.Bool
}

func openShared(path string) (Plugin, error) {
	p, err := plugin.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open plugin %s: %w", path, err)
	}

	opsSym, err := p.Lookup(opsSymbol)
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", opsSymbol, err)
	}
	opsFn, ok := opsSym.(func() map[string]uint32)
	if !ok {
		return nil, fmt.Errorf("plugin symbol %s has type %T, want func() map[string]uint32", opsSymbol, opsSym)
	}

	dispatchSym, err := p.Lookup(dispatchSymbol)
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", dispatchSymbol, err)
	}
	dispatchFn, ok := dispatchSym.(func(uint32, []byte) []byte)
	if !ok {
		return nil, fmt.Errorf("plugin symbol %s has type %T, want func(uint32, []byte) []byte", dispatchSymbol, dispatchSym)
	}

	raw := opsFn()
	ops := make(OpTable, len(raw))
	for name, id := range raw {
		ops[name] = OpID(id)
	}

	return &sharedPlugin{path: path, ops: ops, dispatch: dispatchFn}, nil
}

func (p *sharedPlugin) Ops() OpTable {
	return p.ops
}

func (p *sharedPlugin) Dispatch(ctx context.Context, op OpID, req []byte) ([]byte, error) {
	if p.closed.Load() {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.dispatch(uint32(op), req), nil
}

// Close marks the handle closed. Go cannot unload a shared object, so the
// code stays mapped for the life of the process.
func (p *sharedPlugin) Close() error {
	p.closed.Store(true)
	return nil
}
