package multiplexer_test

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/snowmerak/swc.go/lib/multiplexer"
)

func TestNewNode(t *testing.T) {
	reader, writer := io.Pipe()
	defer reader.Close()
	defer writer.Close()

	node := multiplexer.NewNode(reader, writer)
	if node == nil {
		t.Fatal("NewNode returned nil")
	}
}

func TestNode_WriteMessageWithSequence(t *testing.T) {
	tests := []struct {
		name string
		seq  uint32
		data []byte
	}{
		{name: "empty data", seq: 1, data: []byte{}},
		{name: "small data", seq: 2, data: []byte("hello world")},
		{name: "large data", seq: 3, data: bytes.Repeat([]byte("ab"), 1500)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader, writer := io.Pipe()
			defer reader.Close()
			defer writer.Close()

			node := multiplexer.NewNode(reader, writer)
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()

			messageCh, err := node.ReadMessage(ctx)
			if err != nil {
				t.Fatalf("ReadMessage failed: %v", err)
			}

			errCh := make(chan error, 1)
			go func() {
				errCh <- node.WriteMessageWithSequence(ctx, tt.seq, tt.data)
			}()

			select {
			case msg := <-messageCh:
				if msg.Type != multiplexer.MessageHeaderTypeComplete {
					t.Fatalf("Expected complete message, got type %d (%s)", msg.Type, msg.Data)
				}
				if msg.ID != tt.seq {
					t.Errorf("Expected sequence %d, got %d", tt.seq, msg.ID)
				}
				if !bytes.Equal(msg.Data, tt.data) {
					t.Errorf("Expected data of length %d, got %d", len(tt.data), len(msg.Data))
				}
			case <-ctx.Done():
				t.Fatal("timeout waiting for message")
			}

			if err := <-errCh; err != nil {
				t.Errorf("WriteMessageWithSequence() error = %v", err)
			}
		})
	}
}

func TestNode_ReadMessage_EOF(t *testing.T) {
	reader, writer := io.Pipe()
	node := multiplexer.NewNode(reader, writer)

	messageCh, err := node.ReadMessage(context.Background())
	if err != nil {
		t.Fatalf("ReadMessage failed: %v", err)
	}

	writer.Close()

	select {
	case msg, ok := <-messageCh:
		if ok {
			t.Errorf("Expected channel to close, but received message: %+v", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel to close")
	}
}

func TestNode_WriteMessage_ContextCancellation(t *testing.T) {
	var out bytes.Buffer
	node := multiplexer.NewNode(nil, &out)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := node.WriteMessageWithSequence(ctx, 7, []byte("test data"))
	if err == nil {
		t.Fatal("Expected error when context is cancelled")
	}

	frames := out.Bytes()
	if len(frames) != 2*multiplexer.MessageHeaderSize {
		t.Fatalf("Expected start and abort frames only, got %d bytes", len(frames))
	}
	if frames[multiplexer.MessageHeaderSize] != multiplexer.MessageHeaderTypeAbort {
		t.Errorf("Expected abort frame, got type %d", frames[multiplexer.MessageHeaderSize])
	}
}

func TestNode_WriteMessage_TooLarge(t *testing.T) {
	var out bytes.Buffer
	node := multiplexer.NewNodeWithLimit(nil, &out, 16)

	err := node.WriteMessage(context.Background(), make([]byte, 32))
	if err == nil {
		t.Fatal("Expected error for oversized message")
	}
	if out.Len() != 0 {
		t.Errorf("Expected nothing written, got %d bytes", out.Len())
	}
}

func TestNode_ConcurrentWriters(t *testing.T) {
	reader, writer := io.Pipe()
	defer reader.Close()
	defer writer.Close()

	node := multiplexer.NewNode(reader, writer)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	messageCh, err := node.ReadMessage(ctx)
	if err != nil {
		t.Fatalf("ReadMessage failed: %v", err)
	}

	const numMessages = 10
	var wg sync.WaitGroup
	for i := 0; i < numMessages; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			data := bytes.Repeat([]byte(fmt.Sprintf("message-%d;", i)), 300)
			if err := node.WriteMessageWithSequence(ctx, uint32(i+1), data); err != nil {
				t.Errorf("WriteMessageWithSequence failed: %v", err)
			}
		}(i)
	}

	seen := make(map[uint32]bool)
	for len(seen) < numMessages {
		select {
		case msg, ok := <-messageCh:
			if !ok {
				t.Fatal("channel closed early")
			}
			if msg.Type != multiplexer.MessageHeaderTypeComplete {
				t.Fatalf("unexpected message type %d: %s", msg.Type, msg.Data)
			}
			want := bytes.Repeat([]byte(fmt.Sprintf("message-%d;", msg.ID-1)), 300)
			if !bytes.Equal(msg.Data, want) {
				t.Errorf("message %d corrupted", msg.ID)
			}
			seen[msg.ID] = true
		case <-ctx.Done():
			t.Fatalf("timeout, received %d of %d messages", len(seen), numMessages)
		}
	}

	wg.Wait()
}

func TestNode_InvalidMessageType(t *testing.T) {
	reader, writer := io.Pipe()
	defer writer.Close()

	node := multiplexer.NewNode(reader, writer)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	messageCh, err := node.ReadMessage(ctx)
	if err != nil {
		t.Fatalf("ReadMessage failed: %v", err)
	}

	go func() {
		invalidHeader := make([]byte, multiplexer.MessageHeaderSize)
		invalidHeader[0] = 0xFF
		writer.Write(invalidHeader)
	}()

	select {
	case msg := <-messageCh:
		if msg.Type != multiplexer.MessageHeaderTypeError {
			t.Errorf("Expected error message for invalid type, got type %d", msg.Type)
		}
	case <-ctx.Done():
		t.Fatal("timeout waiting for error message")
	}

	select {
	case _, ok := <-messageCh:
		if ok {
			t.Error("Expected channel to close after invalid frame")
		}
	case <-ctx.Done():
		t.Fatal("timeout waiting for channel to close")
	}
}
