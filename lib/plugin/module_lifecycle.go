package plugin

import (
	"io"
	"os"
	"sync/atomic"

	"github.com/snowmerak/swc.go/lib/multiplexer"
)

// New creates a new Module instance with the specified reader and writer.
// If reader or writer are nil, they default to os.Stdin and os.Stdout respectively.
func New(reader io.Reader, writer io.Writer) *Module {
	return NewWithOptions(reader, writer, nil)
}

// NewWithOptions creates a Module with explicit options.
func NewWithOptions(reader io.Reader, writer io.Writer, opts *ModuleOptions) *Module {
	if reader == nil {
		reader = os.Stdin
	}
	if writer == nil {
		writer = os.Stdout
	}
	if opts == nil {
		opts = &ModuleOptions{}
	}

	return &Module{
		multiplexer:       multiplexer.NewWithConfig(reader, writer, multiplexer.Config{MaxMessageSize: opts.MaxMessageSize}),
		handler:           make(map[string]Handler),
		opNames:           make(map[string]uint32),
		shutdownChan:      make(chan struct{}),
		forceShutdownChan: make(chan struct{}),
	}
}

// NewStd creates a new Module instance using standard input and output.
func NewStd() *Module {
	return New(os.Stdin, os.Stdout)
}

// Shutdown initiates graceful shutdown of the module.
func (m *Module) Shutdown() {
	m.shutdownOnce.Do(func() {
		close(m.shutdownChan)
	})
}

// ForceShutdown initiates immediate shutdown of the module.
func (m *Module) ForceShutdown() {
	m.forceShutdownOnce.Do(func() {
		close(m.forceShutdownChan)
	})
}

// IsShutdown returns true if the module is shutting down (gracefully).
func (m *Module) IsShutdown() bool {
	select {
	case <-m.shutdownChan:
		return true
	default:
		return false
	}
}

// IsForceShutdown returns true if the module is force shutting down.
func (m *Module) IsForceShutdown() bool {
	select {
	case <-m.forceShutdownChan:
		return true
	default:
		return false
	}
}

func (m *Module) getActiveJobCount() int64 {
	return atomic.LoadInt64(&m.activeJobCount)
}
