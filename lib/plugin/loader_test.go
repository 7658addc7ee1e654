package plugin

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestBuiltinHandlers(t *testing.T) {
	loader := NewLoader("test_path", "test_plugin", "1.0.0")
	defer loader.Close()

	for _, name := range []string{"info", "warning", "error", "heartbeat", "status"} {
		if _, exists := loader.getMessageHandler(name); !exists {
			t.Errorf("builtin handler %q not registered", name)
		}
	}
}

func TestHandlerOverride(t *testing.T) {
	loader := NewLoader("test_path", "test_plugin", "1.0.0")
	defer loader.Close()

	var called bool
	loader.RegisterMessageHandlerFunc("info", func(ctx context.Context, header Header) error {
		called = true
		return nil
	})

	handler, exists := loader.getMessageHandler("info")
	if !exists {
		t.Fatal("handler not found")
	}
	if err := handler.Handle(context.Background(), Header{Name: "info", MessageType: MessageTypeNotify}); err != nil {
		t.Fatalf("handler failed: %v", err)
	}
	if !called {
		t.Error("custom handler was not called")
	}

	loader.UnregisterMessageHandler("info")
	if _, exists := loader.getMessageHandler("info"); exists {
		t.Error("handler still registered after unregister")
	}
}

func TestCallBeforeLoad(t *testing.T) {
	loader := NewLoader("test_path", "test_plugin", "1.0.0")
	defer loader.Close()

	_, err := Call(context.Background(), loader, "anything", nil)
	if err == nil || !strings.Contains(err.Error(), "not loaded") {
		t.Fatalf("expected not loaded error, got %v", err)
	}
}

func TestCloseTwice(t *testing.T) {
	loader := NewLoader("test_path", "test_plugin", "1.0.0")

	if err := loader.Close(); err != nil {
		t.Fatalf("first close failed: %v", err)
	}
	if err := loader.Close(); err == nil {
		t.Fatal("expected error on second close")
	}
	if err := loader.Load(context.Background()); err == nil {
		t.Fatal("expected load after close to fail")
	}
}

func TestLoadMissingExecutable(t *testing.T) {
	loader := NewLoader("/nonexistent/plugin/binary", "missing", "1.0.0")
	defer loader.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := loader.Load(ctx); err == nil {
		t.Fatal("expected load of missing executable to fail")
	}
}

func TestRemoteErrorMessage(t *testing.T) {
	named := &RemoteError{Name: "parse", Message: "boom"}
	if named.Error() != "plugin error for service parse: boom" {
		t.Errorf("unexpected message %q", named.Error())
	}

	dispatched := &RemoteError{Name: NameDispatch, Op: 3, Message: "boom"}
	if dispatched.Error() != "plugin error for op 3: boom" {
		t.Errorf("unexpected message %q", dispatched.Error())
	}

	var target *RemoteError
	if !errors.As(error(dispatched), &target) || target.Op != 3 {
		t.Error("RemoteError should be matchable with errors.As")
	}
}
