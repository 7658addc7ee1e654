package process

import (
	"bytes"
	"io"
	"os/exec"
	"testing"
	"time"
)

func TestFork_InvalidPath(t *testing.T) {
	p, err := Fork("/nonexistent/plugin/binary")
	if err == nil {
		p.Close()
		t.Fatal("Expected error for invalid path")
	}
}

func TestFork_EchoThroughPipes(t *testing.T) {
	cat, err := exec.LookPath("cat")
	if err != nil {
		t.Skip("cat not available")
	}

	var stderr bytes.Buffer
	p, err := ForkWithOptions(cat, Options{Stderr: &stderr})
	if err != nil {
		t.Fatalf("Fork failed: %v", err)
	}

	go func() {
		p.Stdin().Write([]byte("ping"))
		p.Stdin().Close()
	}()

	done := make(chan []byte, 1)
	go func() {
		out, _ := io.ReadAll(p.Stdout())
		done <- out
	}()

	go p.Wait()

	select {
	case out := <-done:
		if string(out) != "ping" {
			t.Errorf("Expected 'ping', got %q", out)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for process output")
	}

	if err := p.Wait(); err != nil {
		t.Errorf("Wait returned error: %v", err)
	}
}
