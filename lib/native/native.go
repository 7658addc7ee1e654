// Package native loads compiler plugins and dispatches byte payloads to the
// operations they export.
//
// A plugin advertises an operation table (name to numeric id) once when it
// is opened. Every call afterwards is a single byte-in, byte-out dispatch
// keyed by one of those ids. Three transports implement the contract: Go
// shared objects, child processes speaking the lib/plugin protocol, and
// WebAssembly modules run by wazero.
package native

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// OpID identifies an operation inside a loaded plugin.
type OpID uint32

// OpTable maps operation names to their ids. It is fixed once the plugin is
// open and must not be modified.
type OpTable map[string]OpID

// Lookup returns the id of the named operation.
func (t OpTable) Lookup(name string) (OpID, bool) {
	id, ok := t[name]
	return id, ok
}

//go:generate mockgen -destination=mocks/mock_plugin.go -package=mocks github.com/snowmerak/swc.go/lib/native Plugin

// Plugin is a loaded native plugin.
type Plugin interface {
	Ops() OpTable
	// Dispatch sends req to op. A nil or empty result means the plugin
	// produced no response.
	Dispatch(ctx context.Context, op OpID, req []byte) ([]byte, error)
	Close() error
}

// Kind selects the transport used to load a plugin.
type Kind string

const (
	KindShared  Kind = "shared"
	KindProcess Kind = "process"
	KindWasm    Kind = "wasm"
)

// ParseKind validates a kind name. The empty string is accepted and means
// "infer from the file".
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(s)); k {
	case "", KindShared, KindProcess, KindWasm:
		return k, nil
	default:
		return "", fmt.Errorf("unknown plugin kind %q", s)
	}
}

// KindForPath infers the transport from the file extension.
func KindForPath(path string) Kind {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wasm":
		return KindWasm
	case ".so", ".dylib", ".dll":
		return KindShared
	default:
		return KindProcess
	}
}

var (
	// ErrUnsupported is returned when a transport is not available on the
	// running platform.
	ErrUnsupported = errors.New("native plugin transport not supported on this platform")
	// ErrClosed is returned by Dispatch after Close.
	ErrClosed = errors.New("native plugin is closed")
)

// Aborter is implemented by plugins that can be stopped without waiting for
// in-flight calls to finish.
type Aborter interface {
	Abort() error
}

// PluginError is an error reported by the plugin itself, as opposed to a
// failure to reach it.
type PluginError struct {
	Op      OpID
	Message string
}

func (e *PluginError) Error() string {
	return fmt.Sprintf("plugin op %d failed: %s", e.Op, e.Message)
}

// Options configures Open.
type Options struct {
	// Kind forces a transport. Empty means KindForPath.
	Kind Kind
	// Args and Env are passed to process plugins.
	Args []string
	Env  []string
	// MaxMessageSize bounds process plugin messages. Zero uses the default.
	MaxMessageSize int
}

// Open loads the plugin at path and reads its operation table.
func Open(ctx context.Context, path string, opts Options) (Plugin, error) {
	kind := opts.Kind
	if kind == "" {
		kind = KindForPath(path)
	}

	switch kind {
	case KindShared:
		return openShared(path)
	case KindProcess:
		return openProcess(ctx, path, opts)
	case KindWasm:
		return openWasm(ctx, path)
	default:
		return nil, fmt.Errorf("unknown plugin kind %q", kind)
	}
}
