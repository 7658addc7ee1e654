package multiplexer

import (
	"context"
	"io"
)

// Multiplexer provides a unified interface for message multiplexing
type Multiplexer interface {
	// WriteMessage sends a message with automatic sequence numbering
	WriteMessage(ctx context.Context, data []byte) error

	// WriteMessageWithSequence sends a message with a specific sequence number
	WriteMessageWithSequence(ctx context.Context, seq uint32, data []byte) error

	// ReadMessage reads messages and returns a channel
	ReadMessage(ctx context.Context) (<-chan *Message, error)

	// Close cleanly shuts down the multiplexer
	Close() error

	// GetPendingMessageCount returns the number of pending messages
	GetPendingMessageCount() int
}

// Config holds configuration options for the multiplexer
type Config struct {
	// MaxMessageSize sets the maximum allowed message size (default: 10MB)
	MaxMessageSize int
}

// New creates a multiplexer with default limits.
func New(reader io.Reader, writer io.Writer) Multiplexer {
	return NewNode(reader, writer)
}

// NewWithConfig creates a multiplexer with custom configuration
func NewWithConfig(reader io.Reader, writer io.Writer, config Config) Multiplexer {
	return NewNodeWithLimit(reader, writer, config.MaxMessageSize)
}
