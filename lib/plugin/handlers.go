package plugin

import (
	"context"

	"go.uber.org/zap"
)

// RegisterMessageHandler registers a handler for incoming messages from the module with the specified name
func (l *Loader) RegisterMessageHandler(name string, handler MessageHandler) {
	l.handlerMutex.Lock()
	defer l.handlerMutex.Unlock()
	l.messageHandlers[name] = handler
}

// UnregisterMessageHandler removes the handler for the specified message name
func (l *Loader) UnregisterMessageHandler(name string) {
	l.handlerMutex.Lock()
	defer l.handlerMutex.Unlock()
	delete(l.messageHandlers, name)
}

// RegisterMessageHandlerFunc is a convenience method to register a function as a message handler
func (l *Loader) RegisterMessageHandlerFunc(name string, handler func(ctx context.Context, header Header) error) {
	l.RegisterMessageHandler(name, MessageHandlerFunc(handler))
}

func (l *Loader) getMessageHandler(name string) (MessageHandler, bool) {
	l.handlerMutex.RLock()
	defer l.handlerMutex.RUnlock()
	handler, exists := l.messageHandlers[name]
	return handler, exists
}

// registerBuiltinHandlers forwards plugin log notifications to the loader's logger.
func (l *Loader) registerBuiltinHandlers() {
	logAt := func(level func(string, ...zap.Field)) MessageHandlerFunc {
		return func(ctx context.Context, header Header) error {
			level("plugin message", zap.String("kind", header.Name), zap.ByteString("message", header.Payload))
			return nil
		}
	}

	l.RegisterMessageHandler("info", logAt(l.logger.Info))
	l.RegisterMessageHandler("warning", logAt(l.logger.Warn))
	l.RegisterMessageHandler("error", logAt(l.logger.Error))
	l.RegisterMessageHandler("status", logAt(l.logger.Debug))

	l.RegisterMessageHandlerFunc("heartbeat", func(ctx context.Context, header Header) error {
		return nil
	})
}
