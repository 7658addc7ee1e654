package native

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snowmerak/swc.go/lib/plugin"
)

func TestKindForPath(t *testing.T) {
	cases := map[string]Kind{
		"target/debug/libdeno_swc.so":    KindShared,
		"target/debug/libdeno_swc.dylib": KindShared,
		`target\debug\deno_swc.DLL`:      KindShared,
		"deno_swc.wasm":                  KindWasm,
		"deno_swc":                       KindProcess,
		"deno_swc.exe":                   KindProcess,
	}
	for path, want := range cases {
		assert.Equal(t, want, KindForPath(path), path)
	}
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("WASM")
	require.NoError(t, err)
	assert.Equal(t, KindWasm, k)

	k, err = ParseKind("")
	require.NoError(t, err)
	assert.Equal(t, Kind(""), k)

	_, err = ParseKind("ffi")
	assert.Error(t, err)
}

func TestOpenMissingFiles(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, kind := range []Kind{KindShared, KindProcess, KindWasm} {
		t.Run(string(kind), func(t *testing.T) {
			_, err := Open(ctx, filepath.Join(dir, "missing"), Options{Kind: kind})
			assert.Error(t, err)
		})
	}
}

func TestOpenWasmRejectsModuleWithoutExports(t *testing.T) {
	ctx := context.Background()

	_, err := OpenWasmBytes(ctx, []byte("\x00asm\x01\x00\x00\x00"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing exports")

	_, err = OpenWasmBytes(ctx, []byte("not wasm"))
	assert.Error(t, err)
}

func TestOpenWasmFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deno_swc.wasm")
	require.NoError(t, os.WriteFile(path, []byte("\x00asm\x01\x00\x00\x00"), 0o644))

	_, err := Open(context.Background(), path, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing exports")
}

func TestProcessPluginOverPipes(t *testing.T) {
	hostR, modW := io.Pipe()
	modR, hostW := io.Pipe()

	m := plugin.New(modR, modW)
	plugin.RegisterOp(m, "echo", func(b []byte) ([]byte, bool) { return b, false })
	plugin.RegisterOp(m, "fail", func(b []byte) ([]byte, bool) { return []byte("nope"), true })
	plugin.RegisterOp(m, "silent", func(b []byte) ([]byte, bool) { return nil, false })
	go m.Listen(context.Background())

	loader := plugin.NewLoaderWithOptions("memory", "memory", "", plugin.WithCustomProvider(&plugin.CustomProvider{Reader: hostR, Writer: hostW}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, loader.Load(ctx))

	p, err := newProcessPlugin(ctx, loader)
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, OpTable{"echo": 0, "fail": 1, "silent": 2}, p.Ops())

	echo, ok := p.Ops().Lookup("echo")
	require.True(t, ok)
	resp, err := p.Dispatch(ctx, echo, []byte(`{"source":"let x = 1;"}`))
	require.NoError(t, err)
	assert.Equal(t, `{"source":"let x = 1;"}`, string(resp))

	resp, err = p.Dispatch(ctx, 2, []byte("{}"))
	require.NoError(t, err)
	assert.Empty(t, resp)

	_, err = p.Dispatch(ctx, 1, []byte("{}"))
	var pluginErr *PluginError
	require.ErrorAs(t, err, &pluginErr)
	assert.Equal(t, OpID(1), pluginErr.Op)
	assert.Equal(t, "nope", pluginErr.Message)
}

func TestProcessPluginAbort(t *testing.T) {
	hostR, modW := io.Pipe()
	modR, hostW := io.Pipe()

	m := plugin.New(modR, modW)
	started := make(chan struct{})
	release := make(chan struct{})
	plugin.RegisterOp(m, "slow", func(b []byte) ([]byte, bool) {
		close(started)
		<-release
		return b, false
	})
	listenDone := make(chan error, 1)
	go func() { listenDone <- m.Listen(context.Background()) }()
	defer close(release)

	loader := plugin.NewLoaderWithOptions("memory", "memory", "", plugin.WithCustomProvider(&plugin.CustomProvider{Reader: hostR, Writer: hostW}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, loader.Load(ctx))

	p, err := newProcessPlugin(ctx, loader)
	require.NoError(t, err)

	var _ Aborter = p

	callDone := make(chan error, 1)
	go func() {
		_, err := p.Dispatch(ctx, 0, []byte("{}"))
		callDone <- err
	}()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("call never reached the plugin")
	}

	start := time.Now()
	require.NoError(t, p.Abort())
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.True(t, m.IsForceShutdown())

	select {
	case err := <-callDone:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("in-flight call was not released by Abort")
	}

	select {
	case <-listenDone:
	case <-time.After(2 * time.Second):
		t.Fatal("module kept listening after force shutdown")
	}

	assert.Error(t, p.Close(), "loader is already closed")
}
