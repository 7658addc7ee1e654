package plugin

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestRegisterOpAssignsSequentialIds(t *testing.T) {
	m := New(&bytes.Buffer{}, &bytes.Buffer{})

	names := []string{"parse", "print", "extract_dependencies"}
	for i, name := range names {
		id := RegisterOp(m, name, func(b []byte) ([]byte, bool) { return b, false })
		if id != uint32(i) {
			t.Errorf("op %q: expected id %d, got %d", name, i, id)
		}
	}

	table := m.OpTable()
	table["parse"] = 42
	if m.OpTable()["parse"] != 0 {
		t.Error("OpTable must return a copy")
	}
}

func TestRegisterDuplicatePanics(t *testing.T) {
	m := New(&bytes.Buffer{}, &bytes.Buffer{})
	RegisterOp(m, "parse", func(b []byte) ([]byte, bool) { return b, false })

	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate op")
		}
	}()
	RegisterOp(m, "parse", func(b []byte) ([]byte, bool) { return b, false })
}

func TestLookup(t *testing.T) {
	m := New(&bytes.Buffer{}, &bytes.Buffer{})
	RegisterOp(m, "parse", func(b []byte) ([]byte, bool) { return []byte("parsed"), false })
	RegisterHandler(m, "named", func(b []byte) ([]byte, bool) { return []byte("named"), false })

	h, err := m.lookup(Header{Name: NameDispatch, Op: 0})
	if err != nil {
		t.Fatalf("lookup dispatch failed: %v", err)
	}
	res, _ := h(nil)
	if string(res.Payload) != "parsed" {
		t.Errorf("unexpected payload %q", res.Payload)
	}

	if _, err := m.lookup(Header{Name: NameDispatch, Op: 1}); err == nil {
		t.Error("expected error for unknown op id")
	}
	if _, err := m.lookup(Header{Name: "nope"}); err == nil {
		t.Error("expected error for unknown name")
	}

	h, err = m.lookup(Header{Name: NameOps})
	if err != nil {
		t.Fatalf("lookup ops failed: %v", err)
	}
	res, err = h(nil)
	if err != nil {
		t.Fatalf("ops handler failed: %v", err)
	}
	table, err := DecodeOpTable(res.Payload)
	if err != nil || table["parse"] != 0 || len(table) != 1 {
		t.Errorf("unexpected op table %v (%v)", table, err)
	}
}

func TestShutdownFlags(t *testing.T) {
	m := New(&bytes.Buffer{}, &bytes.Buffer{})

	if m.IsShutdown() || m.IsForceShutdown() {
		t.Fatal("new module should not be shut down")
	}

	m.Shutdown()
	m.Shutdown()
	if !m.IsShutdown() {
		t.Error("expected shutdown")
	}

	m.ForceShutdown()
	m.ForceShutdown()
	if !m.IsForceShutdown() {
		t.Error("expected force shutdown")
	}
	if m.getActiveJobCount() != 0 {
		t.Errorf("expected no active jobs, got %d", m.getActiveJobCount())
	}
}

func TestRequestsRejectedDuringShutdown(t *testing.T) {
	release := make(chan struct{})
	p := startPair(t, func(m *Module) {
		RegisterOp(m, "slow", func(b []byte) ([]byte, bool) {
			<-release
			return []byte("done"), false
		})
		RegisterOp(m, "fast", func(b []byte) ([]byte, bool) {
			return b, false
		})
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slow := make(chan error, 1)
	go func() {
		resp, err := CallOp(ctx, p.loader, 0, nil)
		if err == nil && string(resp) != "done" {
			err = errors.New("unexpected slow response")
		}
		slow <- err
	}()

	deadline := time.Now().Add(2 * time.Second)
	for p.module.getActiveJobCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	p.module.Shutdown()

	_, err := CallOp(ctx, p.loader, 1, []byte("x"))
	var remote *RemoteError
	if !errors.As(err, &remote) || !strings.Contains(remote.Message, "shutdown") {
		t.Errorf("expected shutdown rejection, got %v", err)
	}

	close(release)
	if err := <-slow; err != nil {
		t.Errorf("in-flight request should complete: %v", err)
	}

	p.close(t)
}

func TestSendMessageReachesLoaderHandler(t *testing.T) {
	p := startPair(t, func(m *Module) {})
	defer p.close(t)

	got := make(chan string, 1)
	p.loader.RegisterMessageHandlerFunc("status", func(ctx context.Context, header Header) error {
		got <- string(header.Payload)
		return nil
	})

	if err := p.module.SendMessage(context.Background(), "status", []byte("warming up")); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	select {
	case msg := <-got:
		if msg != "warming up" {
			t.Errorf("unexpected payload %q", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("notification not delivered")
	}
}
