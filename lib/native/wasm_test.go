package native

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snowmerak/swc.go/lib/native/wasmtest"
)

var wasmOpsTable = map[string]uint32{
	"echo":  wasmtest.OpEcho,
	"none":  wasmtest.OpNone,
	"oob":   wasmtest.OpOutOfBounds,
	"empty": wasmtest.OpEmpty,
}

func openTestWasm(t *testing.T) *wasmPlugin {
	t.Helper()
	p, err := OpenWasmBytes(context.Background(), wasmtest.Module(wasmOpsTable))
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	return p.(*wasmPlugin)
}

func frees(p *wasmPlugin) uint64 {
	return p.module.ExportedGlobal(wasmtest.FreesGlobal).Get()
}

func TestWasmOpTable(t *testing.T) {
	p := openTestWasm(t)

	assert.Equal(t, OpTable{"echo": 0, "none": 1, "oob": 2, "empty": 3}, p.Ops())
	assert.Equal(t, uint64(1), frees(p), "op table buffer should be released")
}

func TestWasmDispatchEcho(t *testing.T) {
	p := openTestWasm(t)
	ctx := context.Background()

	req := []byte(`{"source":"const a = 1;","tsx":true}`)
	resp, err := p.Dispatch(ctx, OpID(wasmtest.OpEcho), req)
	require.NoError(t, err)
	assert.Equal(t, string(req), string(resp))

	// response buffer and request buffer
	assert.Equal(t, uint64(3), frees(p))

	second, err := p.Dispatch(ctx, OpID(wasmtest.OpEcho), []byte("second"))
	require.NoError(t, err)
	assert.Equal(t, "second", string(second))
	assert.Equal(t, string(req), string(resp), "earlier response must not alias guest memory")
}

func TestWasmDispatchNoResponse(t *testing.T) {
	p := openTestWasm(t)
	ctx := context.Background()

	resp, err := p.Dispatch(ctx, OpID(wasmtest.OpNone), []byte("{}"))
	require.NoError(t, err)
	assert.Nil(t, resp)

	resp, err = p.Dispatch(ctx, OpID(wasmtest.OpEmpty), []byte("{}"))
	require.NoError(t, err)
	assert.Empty(t, resp)

	resp, err = p.Dispatch(ctx, OpID(wasmtest.OpNone), nil)
	require.NoError(t, err)
	assert.Nil(t, resp)
}

func TestWasmDispatchOutOfBounds(t *testing.T) {
	p := openTestWasm(t)

	_, err := p.Dispatch(context.Background(), OpID(wasmtest.OpOutOfBounds), []byte("{}"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of bounds")
}

func TestWasmDispatchAfterClose(t *testing.T) {
	p, err := OpenWasmBytes(context.Background(), wasmtest.Module(wasmOpsTable))
	require.NoError(t, err)
	require.NoError(t, p.Close())

	_, err = p.Dispatch(context.Background(), 0, []byte("{}"))
	assert.ErrorIs(t, err, ErrClosed)
	assert.Error(t, p.Close())
}
