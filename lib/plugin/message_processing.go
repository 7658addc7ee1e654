package plugin

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/snowmerak/swc.go/lib/multiplexer"
)

// handleMessages routes frames from the plugin: the ready signal, shutdown
// acknowledgments, responses to pending requests and notifications. When the
// stream ends the load context is cancelled and every pending caller is released.
func (l *Loader) handleMessages() {
	defer l.wg.Done()
	defer l.cancelLoad()
	defer func() {
		l.requestMutex.Lock()
		defer l.requestMutex.Unlock()
		for id, ch := range l.pendingRequests {
			select {
			case <-ch:
			default:
				close(ch)
			}
			delete(l.pendingRequests, id)
		}
	}()

	recv, err := l.multiplexer.ReadMessage(l.loadCtx)
	if err != nil {
		l.logger.Error("failed to start reading plugin messages", zap.Error(err))
		return
	}

	readyReceived := false

	for {
		select {
		case <-l.loadCtx.Done():
			return
		case mesg, ok := <-recv:
			if !ok {
				return
			}

			if mesg.Type != multiplexer.MessageHeaderTypeComplete {
				l.logger.Debug("dropping incomplete plugin frame", zap.Uint32("sequence", mesg.ID), zap.ByteString("detail", mesg.Data))
				continue
			}

			var header Header
			if err := header.UnmarshalBinary(mesg.Data); err != nil {
				l.logger.Debug("dropping malformed plugin message", zap.Error(err))
				continue
			}

			switch header.Name {
			case NameReady:
				if !readyReceived {
					readyReceived = true
					signal(l.readySignal)
				}
				continue
			case NameShutdownAck:
				signal(l.shutdownAck)
				continue
			case NameForceShutdownAck:
				signal(l.forceShutdownAck)
				continue
			case NameRequestReadyAck:
				continue
			}

			if header.MessageType == MessageTypeResponse || header.MessageType == MessageTypeError {
				l.requestMutex.RLock()
				responseChan, exists := l.pendingRequests[mesg.ID]
				l.requestMutex.RUnlock()

				if exists {
					select {
					case responseChan <- mesg.Data:
					default:
					}
				} else {
					l.logger.Debug("response for unknown request", zap.Uint32("sequence", mesg.ID), zap.String("name", header.Name))
				}
				continue
			}

			if header.MessageType == MessageTypeNotify || header.MessageType == MessageTypeAck {
				if handler, exists := l.getMessageHandler(header.Name); exists {
					go func(h MessageHandler, hdr Header) {
						ctx, cancel := context.WithTimeout(l.loadCtx, 30*time.Second)
						defer cancel()

						if err := h.Handle(ctx, hdr); err != nil {
							l.logger.Warn("message handler failed", zap.String("name", hdr.Name), zap.Error(err))
						}
					}(handler, header)
				}
			}
		}
	}
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
