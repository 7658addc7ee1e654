package plugin

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// generateRequestID generates a unique request ID, avoiding collisions with existing pending requests
func (l *Loader) generateRequestID() uint32 {
	const maxAttempts = 100

	for attempt := 0; attempt < maxAttempts; attempt++ {
		id := l.requestID.Add(1)
		if id == 0 {
			continue
		}

		l.requestMutex.RLock()
		_, exists := l.pendingRequests[id]
		l.requestMutex.RUnlock()

		if !exists {
			return id
		}
	}

	// Only reachable with millions of requests in flight.
	return l.requestID.Load()
}

// waitForReadySignal waits for the plugin's ready signal. If it does not
// arrive within the ready timeout a request_ready nudge is sent once.
func (l *Loader) waitForReadySignal(ctx context.Context) error {
	timeout := l.options.ReadyTimeout

	select {
	case <-l.readySignal:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for ready signal: %w", ctx.Err())
	case <-l.loadCtx.Done():
		return errors.New("plugin channel closed while waiting for ready signal")
	case <-time.After(timeout):
	}

	if err := l.RequestReady(); err != nil {
		return fmt.Errorf("timeout waiting for ready signal and failed to request ready: %w", err)
	}

	select {
	case <-l.readySignal:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for ready signal after request: %w", ctx.Err())
	case <-l.loadCtx.Done():
		return errors.New("plugin channel closed while waiting for ready signal after request")
	case <-time.After(timeout):
		return errors.New("timeout waiting for ready signal from plugin even after requesting")
	}
}

// RequestReady asks the plugin to send a ready signal.
func (l *Loader) RequestReady() error {
	if l.closed.Load() {
		return errors.New("loader is closed")
	}

	if l.multiplexer == nil {
		return errors.New("multiplexer not available")
	}

	header := Header{
		Name:        NameRequestReady,
		MessageType: MessageTypeRequest,
		Payload:     []byte("please send ready signal"),
	}

	data, err := header.MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to marshal request ready header: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	return l.multiplexer.WriteMessage(ctx, data)
}
