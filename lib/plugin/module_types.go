package plugin

import (
	"sync"

	"github.com/snowmerak/swc.go/lib/multiplexer"
)

// AppHandlerResult holds the result of an application handler execution.
type AppHandlerResult struct {
	Payload []byte // Raw payload
	IsError bool   // True if Payload is an error payload
}

// Handler processes a raw request payload. The error return is reserved for
// failures of the handler wrapper itself.
type Handler func(requestPayload []byte) (AppHandlerResult, error)

// Module is the plugin side of the protocol: it serves named handlers and
// numbered operations to a host Loader.
type Module struct {
	multiplexer multiplexer.Multiplexer

	handler     map[string]Handler
	ops         []Handler
	opNames     map[string]uint32
	handlerLock sync.RWMutex

	shutdownChan      chan struct{}
	forceShutdownChan chan struct{}
	shutdownOnce      sync.Once
	forceShutdownOnce sync.Once
	activeJobs        sync.WaitGroup
	activeJobCount    int64 // atomic
}
