package plugin

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/snowmerak/swc.go/lib/process"
)

// CommunicationType defines the type of communication channel
type CommunicationType int

const (
	// CommunicationTypeStdio uses stdin/stdout of a forked process (default)
	CommunicationTypeStdio CommunicationType = iota
	// CommunicationTypeCustom uses caller-supplied io.Reader/Writer
	CommunicationTypeCustom
)

// CommunicationProvider creates the byte stream a Loader talks over.
type CommunicationProvider interface {
	// CreateChannel creates a communication channel and returns reader/writer
	CreateChannel(ctx context.Context, path string) (io.Reader, io.Writer, error)
	// Close cleans up any resources
	Close() error
}

// processOwner is implemented by providers that fork a process the loader
// should monitor.
type processOwner interface {
	Process() *process.Process
}

// StdioProvider forks the plugin executable and talks over its stdin/stdout.
type StdioProvider struct {
	Args   []string
	Env    []string
	Stderr io.Writer

	proc *process.Process
}

// CreateChannel implements CommunicationProvider for stdio
func (s *StdioProvider) CreateChannel(ctx context.Context, path string) (io.Reader, io.Writer, error) {
	if s.proc != nil {
		return nil, nil, errors.New("stdio provider already started a process")
	}
	p, err := process.ForkWithOptions(path, process.Options{
		Args:   s.Args,
		Env:    s.Env,
		Stderr: s.Stderr,
	})
	if err != nil {
		return nil, nil, err
	}
	s.proc = p
	return p.Stdout(), p.Stdin(), nil
}

// Process returns the forked process, or nil before CreateChannel.
func (s *StdioProvider) Process() *process.Process {
	return s.proc
}

// Close implements CommunicationProvider for stdio
func (s *StdioProvider) Close() error {
	if s.proc == nil {
		return nil
	}
	return s.proc.Close()
}

// CustomProvider allows using custom io.Reader/Writer
type CustomProvider struct {
	Reader io.Reader
	Writer io.Writer
}

// CreateChannel implements CommunicationProvider for custom IO
func (c *CustomProvider) CreateChannel(ctx context.Context, path string) (io.Reader, io.Writer, error) {
	if c.Reader == nil || c.Writer == nil {
		return nil, nil, errors.New("custom provider requires both reader and writer")
	}
	return c.Reader, c.Writer, nil
}

// Close closes the reader and writer when they are closers.
func (c *CustomProvider) Close() error {
	var errs []error
	if closer, ok := c.Writer.(io.Closer); ok {
		errs = append(errs, closer.Close())
	}
	if closer, ok := c.Reader.(io.Closer); ok {
		errs = append(errs, closer.Close())
	}
	return errors.Join(errs...)
}

// LoaderOptions defines options for creating a Loader
type LoaderOptions struct {
	// CommunicationType specifies the communication method
	CommunicationType CommunicationType

	// Provider specifies the communication provider
	Provider CommunicationProvider

	// ReadyTimeout bounds the wait for the plugin's ready signal before a
	// request_ready nudge is sent. The same bound applies to the nudge.
	ReadyTimeout time.Duration

	// ShutdownTimeout bounds the wait for a shutdown acknowledgment.
	ShutdownTimeout time.Duration

	// MaxMessageSize caps a single framed message.
	MaxMessageSize int
}

const (
	defaultReadyTimeout    = 5 * time.Second
	defaultShutdownTimeout = 2 * time.Second
)

// DefaultLoaderOptions returns default options using stdio communication
func DefaultLoaderOptions() *LoaderOptions {
	return &LoaderOptions{
		CommunicationType: CommunicationTypeStdio,
		Provider:          &StdioProvider{},
		ReadyTimeout:      defaultReadyTimeout,
		ShutdownTimeout:   defaultShutdownTimeout,
	}
}

// WithCustomProvider creates loader options with custom communication provider
func WithCustomProvider(provider CommunicationProvider) *LoaderOptions {
	return &LoaderOptions{
		CommunicationType: CommunicationTypeCustom,
		Provider:          provider,
		ReadyTimeout:      defaultReadyTimeout,
		ShutdownTimeout:   defaultShutdownTimeout,
	}
}

// ModuleOptions defines options for creating a Module
type ModuleOptions struct {
	// MaxMessageSize caps a single framed message.
	MaxMessageSize int
}
