package plugin

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/snowmerak/swc.go/lib/multiplexer"
)

// Listen serves requests until the stream ends, the host asks for shutdown
// or ctx is cancelled. A ready signal is sent once the reader is running.
func (m *Module) Listen(ctx context.Context) error {
	listenCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	recv, err := m.multiplexer.ReadMessage(listenCtx)
	if err != nil {
		return fmt.Errorf("failed to read message: %w", err)
	}

	if err := m.SendReady(listenCtx); err != nil {
		return fmt.Errorf("failed to send ready signal: %w", err)
	}

	go func() {
		select {
		case <-m.forceShutdownChan:
			cancel()
		case <-listenCtx.Done():
		}
	}()

	for {
		select {
		case mesg, ok := <-recv:
			if !ok {
				m.waitForJobs(5 * time.Second)
				return nil
			}

			if mesg.Type != multiplexer.MessageHeaderTypeComplete {
				continue
			}

			if m.IsForceShutdown() {
				return nil
			}

			var header Header
			if err := header.UnmarshalBinary(mesg.Data); err != nil {
				continue
			}

			switch header.Name {
			case NameShutdown:
				m.Shutdown()
				m.reply(listenCtx, mesg.ID, Header{
					Name:        NameShutdownAck,
					MessageType: MessageTypeAck,
					Payload:     []byte("graceful shutdown started, waiting for jobs to complete"),
				})

				go func() {
					done := make(chan struct{})
					go func() {
						m.activeJobs.Wait()
						close(done)
					}()

					select {
					case <-done:
					case <-m.forceShutdownChan:
					}
					cancel()
				}()
				continue

			case NameForceShutdown:
				m.ForceShutdown()
				m.reply(listenCtx, mesg.ID, Header{
					Name:        NameForceShutdownAck,
					MessageType: MessageTypeAck,
					Payload:     []byte("force shutting down"),
				})
				return nil

			case NameRequestReady:
				if err := m.SendReady(listenCtx); err == nil {
					m.reply(listenCtx, mesg.ID, Header{
						Name:        NameRequestReadyAck,
						MessageType: MessageTypeAck,
						Payload:     []byte("ready signal sent in response to request"),
					})
				}
				continue
			}

			if header.MessageType != MessageTypeRequest {
				continue
			}

			if m.IsShutdown() {
				m.reply(listenCtx, mesg.ID, Header{
					Name:        header.Name,
					IsError:     true,
					MessageType: MessageTypeError,
					Op:          header.Op,
					Payload:     []byte("service unavailable: graceful shutdown in progress"),
				})
				continue
			}

			m.activeJobs.Add(1)
			atomic.AddInt64(&m.activeJobCount, 1)
			go func(seq uint32, hdr Header) {
				defer func() {
					atomic.AddInt64(&m.activeJobCount, -1)
					m.activeJobs.Done()
				}()
				m.processMessage(listenCtx, seq, hdr)
			}(mesg.ID, header)

		case <-listenCtx.Done():
			m.waitForJobs(5 * time.Second)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return nil
		}
	}
}

func (m *Module) waitForJobs(timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		m.activeJobs.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
	}
}

// processMessage runs the handler for one request and writes the response
// under the request's sequence id. Jobs already started finish even during a
// graceful shutdown.
func (m *Module) processMessage(ctx context.Context, seq uint32, requestHeader Header) {
	responseHeader := Header{
		Name: requestHeader.Name,
		Op:   requestHeader.Op,
	}

	if m.IsForceShutdown() {
		responseHeader.IsError = true
		responseHeader.MessageType = MessageTypeError
		responseHeader.Payload = []byte("service unavailable: force shutdown")
		m.reply(ctx, seq, responseHeader)
		return
	}

	handler, err := m.lookup(requestHeader)
	if err != nil {
		responseHeader.IsError = true
		responseHeader.MessageType = MessageTypeError
		responseHeader.Payload = []byte(err.Error())
		m.reply(ctx, seq, responseHeader)
		return
	}

	appResult, criticalErr := handler(requestHeader.Payload)
	switch {
	case criticalErr != nil:
		responseHeader.IsError = true
		responseHeader.MessageType = MessageTypeError
		responseHeader.Payload = []byte(fmt.Sprintf("critical internal error processing request for %s: %v", requestHeader.Name, criticalErr))
	case appResult.IsError:
		responseHeader.IsError = true
		responseHeader.MessageType = MessageTypeError
		responseHeader.Payload = appResult.Payload
	default:
		responseHeader.MessageType = MessageTypeResponse
		responseHeader.Payload = appResult.Payload
	}

	m.reply(ctx, seq, responseHeader)
}
