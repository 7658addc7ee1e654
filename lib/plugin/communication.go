package plugin

import (
	"context"
	"errors"
	"fmt"
)

// RemoteError is returned when the plugin answers a request with an error payload.
type RemoteError struct {
	Name    string
	Op      uint32
	Message string
}

func (e *RemoteError) Error() string {
	if e.Name == NameDispatch {
		return fmt.Sprintf("plugin error for op %d: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("plugin error for service %s: %s", e.Name, e.Message)
}

// Call sends a named request to the loaded plugin and waits for the raw
// response payload.
func Call(ctx context.Context, l *Loader, name string, requestPayload []byte) ([]byte, error) {
	return l.request(ctx, Header{
		Name:        name,
		MessageType: MessageTypeRequest,
		Payload:     requestPayload,
	})
}

// CallOp dispatches a request to the plugin operation with the given id.
func CallOp(ctx context.Context, l *Loader, op uint32, requestPayload []byte) ([]byte, error) {
	return l.request(ctx, Header{
		Name:        NameDispatch,
		MessageType: MessageTypeRequest,
		Op:          op,
		Payload:     requestPayload,
	})
}

func (l *Loader) request(ctx context.Context, requestHeader Header) ([]byte, error) {
	if l.closed.Load() {
		return nil, errors.New("loader is closed")
	}

	if l.multiplexer == nil {
		return nil, errors.New("loader not loaded or load failed")
	}

	if l.loadCtx.Err() != nil {
		return nil, errors.New("loader is shutting down")
	}

	headerData, err := requestHeader.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to encode header: %w", err)
	}

	requestID := l.generateRequestID()

	l.requestMutex.Lock()
	if l.closed.Load() {
		l.requestMutex.Unlock()
		return nil, errors.New("loader closed before dispatching request")
	}
	responseChan := make(chan []byte, 1)
	l.pendingRequests[requestID] = responseChan
	l.requestMutex.Unlock()

	defer func() {
		l.requestMutex.Lock()
		delete(l.pendingRequests, requestID)
		l.requestMutex.Unlock()
	}()

	if err := l.multiplexer.WriteMessageWithSequence(ctx, requestID, headerData); err != nil {
		return nil, fmt.Errorf("failed to write request message: %w", err)
	}

	select {
	case responseData, ok := <-responseChan:
		if !ok {
			return nil, errors.New("response channel closed, loader shutting down")
		}

		var responseHeader Header
		if err := responseHeader.UnmarshalBinary(responseData); err != nil {
			return nil, fmt.Errorf("failed to decode response header: %w", err)
		}

		if responseHeader.IsError {
			return nil, &RemoteError{
				Name:    requestHeader.Name,
				Op:      requestHeader.Op,
				Message: string(responseHeader.Payload),
			}
		}

		return responseHeader.Payload, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.loadCtx.Done():
		return nil, errors.New("loader is shutting down")
	}
}

// SendMessage sends a notification to the module without expecting a response.
func (l *Loader) SendMessage(ctx context.Context, name string, payload []byte) error {
	if l.closed.Load() {
		return errors.New("loader is closed")
	}

	if l.multiplexer == nil {
		return errors.New("multiplexer not available")
	}

	header := Header{
		Name:        name,
		MessageType: MessageTypeNotify,
		Payload:     payload,
	}

	headerData, err := header.MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}

	return l.multiplexer.WriteMessage(ctx, headerData)
}
