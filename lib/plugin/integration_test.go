package plugin

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

type pair struct {
	loader *Loader
	module *Module
	done   chan error
}

// startPair connects a Loader and a Module through in-memory pipes.
func startPair(t *testing.T, register func(m *Module)) *pair {
	t.Helper()

	hostR, modW := io.Pipe()
	modR, hostW := io.Pipe()

	m := New(modR, modW)
	register(m)

	done := make(chan error, 1)
	go func() {
		done <- m.Listen(context.Background())
	}()

	opts := WithCustomProvider(&CustomProvider{Reader: hostR, Writer: hostW})
	opts.ReadyTimeout = 2 * time.Second
	l := NewLoaderWithOptions("memory", "test", "1.0.0", opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.Load(ctx); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	return &pair{loader: l, module: m, done: done}
}

func (p *pair) close(t *testing.T) {
	t.Helper()
	p.loader.Close()
	select {
	case <-p.done:
	case <-time.After(5 * time.Second):
		t.Error("module did not stop after loader close")
	}
}

func registerEcho(m *Module) {
	RegisterOp(m, "echo", func(req []byte) ([]byte, bool) {
		return req, false
	})
	RegisterOp(m, "fail", func(req []byte) ([]byte, bool) {
		return []byte("bad input"), true
	})
	RegisterOp(m, "silent", func(req []byte) ([]byte, bool) {
		return nil, false
	})
	RegisterHandler(m, "upper", func(req []byte) ([]byte, bool) {
		return []byte(strings.ToUpper(string(req))), false
	})
}

func TestOpsRequest(t *testing.T) {
	p := startPair(t, registerEcho)
	defer p.close(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	adapter := NewProtobufLoaderAdapter[*emptypb.Empty, *structpb.Struct](p.loader, func() *structpb.Struct { return new(structpb.Struct) })
	s, err := adapter.Call(ctx, NameOps, &emptypb.Empty{})
	if err != nil {
		t.Fatalf("ops request failed: %v", err)
	}

	table, err := OpTableFromStruct(s)
	if err != nil {
		t.Fatalf("bad op table: %v", err)
	}

	expected := map[string]uint32{"echo": 0, "fail": 1, "silent": 2}
	if len(table) != len(expected) {
		t.Fatalf("expected %v, got %v", expected, table)
	}
	for name, id := range expected {
		if table[name] != id {
			t.Errorf("op %q: expected %d, got %d", name, id, table[name])
		}
	}
}

func TestCallOp(t *testing.T) {
	p := startPair(t, registerEcho)
	defer p.close(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resp, err := CallOp(ctx, p.loader, 0, []byte("ping"))
	if err != nil {
		t.Fatalf("echo failed: %v", err)
	}
	if string(resp) != "ping" {
		t.Errorf("expected ping, got %q", resp)
	}

	resp, err = CallOp(ctx, p.loader, 2, []byte("anything"))
	if err != nil {
		t.Fatalf("silent failed: %v", err)
	}
	if len(resp) != 0 {
		t.Errorf("expected empty response, got %q", resp)
	}

	_, err = CallOp(ctx, p.loader, 1, nil)
	var remote *RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("expected RemoteError, got %v", err)
	}
	if remote.Op != 1 || remote.Message != "bad input" {
		t.Errorf("unexpected remote error %+v", remote)
	}

	_, err = CallOp(ctx, p.loader, 99, nil)
	if !errors.As(err, &remote) || !strings.Contains(remote.Message, "99") {
		t.Errorf("expected unknown op error, got %v", err)
	}
}

func TestNamedCall(t *testing.T) {
	p := startPair(t, registerEcho)
	defer p.close(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resp, err := Call(ctx, p.loader, "upper", []byte("swc"))
	if err != nil {
		t.Fatalf("call failed: %v", err)
	}
	if string(resp) != "SWC" {
		t.Errorf("expected SWC, got %q", resp)
	}

	if _, err := Call(ctx, p.loader, "missing", nil); err == nil {
		t.Error("expected error for unregistered handler")
	}
}

func TestConcurrentCalls(t *testing.T) {
	p := startPair(t, registerEcho)
	defer p.close(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	errs := make(chan error, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			want := strings.Repeat("x", i*100)
			resp, err := CallOp(ctx, p.loader, 0, []byte(want))
			if err != nil {
				errs <- err
				return
			}
			if string(resp) != want {
				errs <- errors.New("response mismatch")
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
}

func TestJSONAdapters(t *testing.T) {
	type sum struct {
		A int `json:"a"`
		B int `json:"b"`
	}
	type total struct {
		Total int `json:"total"`
	}

	p := startPair(t, func(m *Module) {
		h := NewJSONHandlerAdapter("add", func(req sum) (total, bool) {
			return total{Total: req.A + req.B}, false
		})
		RegisterOp(m, "add", h.ToPluginHandler())
	})
	defer p.close(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	adapter := NewJSONLoaderAdapter[sum, total](p.loader)
	got, err := adapter.CallOp(ctx, 0, sum{A: 2, B: 3})
	if err != nil {
		t.Fatalf("call failed: %v", err)
	}
	if got.Total != 5 {
		t.Errorf("expected 5, got %d", got.Total)
	}

	_, err = CallOp(ctx, p.loader, 0, []byte("not json"))
	var remote *RemoteError
	if !errors.As(err, &remote) || !strings.Contains(remote.Message, "unmarshal") {
		t.Errorf("expected unmarshal error, got %v", err)
	}
}

func TestCallAfterClose(t *testing.T) {
	p := startPair(t, registerEcho)
	p.close(t)

	if _, err := CallOp(context.Background(), p.loader, 0, nil); err == nil {
		t.Fatal("expected call after close to fail")
	}
}
