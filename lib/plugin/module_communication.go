package plugin

import (
	"context"
	"fmt"
)

// SendReady sends a ready message to indicate the plugin is ready to receive requests.
func (m *Module) SendReady(ctx context.Context) error {
	readyHeader := Header{
		Name:        NameReady,
		MessageType: MessageTypeAck,
		Payload:     []byte("ready"),
	}

	readyData, err := readyHeader.MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to marshal ready header: %w", err)
	}

	return m.multiplexer.WriteMessage(ctx, readyData)
}

// SendMessage sends a notification to the loader, e.g. "info" or "warning"
// lines that the host forwards to its logger.
func (m *Module) SendMessage(ctx context.Context, name string, payload []byte) error {
	header := Header{
		Name:        name,
		MessageType: MessageTypeNotify,
		Payload:     payload,
	}

	headerData, err := header.MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}

	return m.multiplexer.WriteMessage(ctx, headerData)
}

func (m *Module) reply(ctx context.Context, seq uint32, header Header) {
	data, err := header.MarshalBinary()
	if err != nil {
		return
	}
	m.multiplexer.WriteMessageWithSequence(ctx, seq, data)
}
