// Package plugin implements the framed request/response protocol spoken
// between a host Loader and a plugin Module over a byte stream.
package plugin

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/snowmerak/swc.go/lib/multiplexer"
	"github.com/snowmerak/swc.go/lib/process"
)

// MessageHandler handles notifications sent by the module.
type MessageHandler interface {
	Handle(ctx context.Context, header Header) error
}

// MessageHandlerFunc is a convenience type for converting functions to MessageHandler
type MessageHandlerFunc func(ctx context.Context, header Header) error

// Handle implements MessageHandler interface
func (f MessageHandlerFunc) Handle(ctx context.Context, header Header) error {
	return f(ctx, header)
}

// Loader manages the lifecycle of a plugin and provides request/response
// communication with it.
type Loader struct {
	Path    string
	Name    string
	Version string

	process     *process.Process
	multiplexer multiplexer.Multiplexer

	requestID atomic.Uint32

	pendingRequests map[uint32]chan []byte
	requestMutex    sync.RWMutex

	loadCtx    context.Context
	cancelLoad context.CancelFunc
	closed     atomic.Bool
	wg         sync.WaitGroup

	processExited atomic.Bool

	readySignal      chan struct{}
	shutdownAck      chan struct{}
	forceShutdownAck chan struct{}

	messageHandlers map[string]MessageHandler
	handlerMutex    sync.RWMutex

	options  *LoaderOptions
	provider CommunicationProvider
	logger   *zap.Logger
}
