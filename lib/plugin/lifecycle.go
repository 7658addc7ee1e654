package plugin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/snowmerak/swc.go/lib/logging"
	"github.com/snowmerak/swc.go/lib/multiplexer"
)

// NewLoader creates a Loader that forks the executable at path.
func NewLoader(path, name, version string) *Loader {
	return NewLoaderWithOptions(path, name, version, DefaultLoaderOptions())
}

// NewLoaderWithOptions creates a Loader using the given communication options.
func NewLoaderWithOptions(path, name, version string, opts *LoaderOptions) *Loader {
	if opts == nil {
		opts = DefaultLoaderOptions()
	}
	if opts.Provider == nil {
		opts.Provider = &StdioProvider{}
	}
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = defaultReadyTimeout
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = defaultShutdownTimeout
	}

	l := &Loader{
		Path:             path,
		Name:             name,
		Version:          version,
		pendingRequests:  make(map[uint32]chan []byte),
		readySignal:      make(chan struct{}, 1),
		shutdownAck:      make(chan struct{}, 1),
		forceShutdownAck: make(chan struct{}, 1),
		messageHandlers:  make(map[string]MessageHandler),
		options:          opts,
		provider:         opts.Provider,
		logger:           logging.Named("plugin").With(zap.String("plugin", name), zap.String("path", path)),
	}

	l.registerBuiltinHandlers()

	return l
}

// Load opens the communication channel and waits for the plugin's ready signal.
func (l *Loader) Load(ctx context.Context) error {
	if l.closed.Load() {
		return errors.New("loader is closed")
	}
	if l.multiplexer != nil {
		return errors.New("loader already loaded")
	}

	reader, writer, err := l.provider.CreateChannel(ctx, l.Path)
	if err != nil {
		return fmt.Errorf("failed to open plugin channel: %w", err)
	}
	if owner, ok := l.provider.(processOwner); ok {
		l.process = owner.Process()
	}

	l.multiplexer = multiplexer.NewWithConfig(reader, writer, multiplexer.Config{MaxMessageSize: l.options.MaxMessageSize})

	l.loadCtx, l.cancelLoad = context.WithCancel(context.WithoutCancel(ctx))

	if l.process != nil {
		l.wg.Add(1)
		go l.monitorProcess()
	}

	l.wg.Add(1)
	go l.handleMessages()

	if err := l.waitForReadySignal(ctx); err != nil {
		l.cancelLoad()
		l.provider.Close()
		return err
	}

	l.logger.Debug("plugin ready")
	return nil
}

// Close shuts down the loader gracefully: the plugin is asked to finish
// in-flight work, then the channel is closed.
func (l *Loader) Close() error {
	return l.shutdown(NameShutdown, l.shutdownAck, l.options.ShutdownTimeout, 2*time.Second)
}

// ForceClose shuts down the loader without waiting for in-flight work.
func (l *Loader) ForceClose() error {
	return l.shutdown(NameForceShutdown, l.forceShutdownAck, 500*time.Millisecond, 500*time.Millisecond)
}

func (l *Loader) shutdown(signal string, ack <-chan struct{}, ackTimeout, drainTimeout time.Duration) error {
	if !l.closed.CompareAndSwap(false, true) {
		return errors.New("loader already closed")
	}

	if l.multiplexer != nil && l.loadCtx != nil && l.loadCtx.Err() == nil {
		header := Header{
			Name:        signal,
			MessageType: MessageTypeRequest,
			Payload:     []byte(signal),
		}
		if data, err := header.MarshalBinary(); err == nil {
			writeCtx, cancel := context.WithTimeout(context.Background(), ackTimeout)
			if err := l.multiplexer.WriteMessage(writeCtx, data); err == nil {
				select {
				case <-ack:
				case <-writeCtx.Done():
					l.logger.Warn("plugin did not acknowledge shutdown", zap.String("signal", signal))
				case <-l.loadCtx.Done():
				}
			}
			cancel()
		}
	}

	if l.cancelLoad != nil {
		l.cancelLoad()
	}

	closeErr := l.provider.Close()

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(drainTimeout):
		l.logger.Warn("plugin goroutines did not exit in time")
	}

	return closeErr
}

// monitorProcess marks the loader closed once the plugin process exits.
func (l *Loader) monitorProcess() {
	defer l.wg.Done()

	err := l.process.Wait()
	l.processExited.Store(true)

	if !l.closed.Load() {
		l.logger.Warn("plugin process exited", zap.Error(err))
		l.closed.Store(true)
		l.process.Close()
	}
	l.cancelLoad()
}

// IsProcessAlive returns true if the plugin process is still running
func (l *Loader) IsProcessAlive() bool {
	return !l.processExited.Load() && !l.closed.Load()
}
