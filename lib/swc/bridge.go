// Package swc exposes the compiler plugin's parse, print and
// extract_dependencies operations as typed Go calls.
//
// A Bridge is created once with Init (or New around an already opened
// plugin) and passed to every call. Each call encodes its options as JSON,
// dispatches them to the plugin under the operation's id and decodes the
// JSON answer.
package swc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/snowmerak/swc.go/lib/cache"
	"github.com/snowmerak/swc.go/lib/config"
	"github.com/snowmerak/swc.go/lib/logging"
	"github.com/snowmerak/swc.go/lib/native"
	"github.com/snowmerak/swc.go/lib/resolve"
)

// Bridge is an open plugin with its operations resolved.
type Bridge struct {
	plugin native.Plugin
	ops    [numOperations]native.OpID
	closed atomic.Bool
	logger *zap.Logger
}

// New resolves every Operation against the plugin's op table. The plugin
// stays owned by the caller until Bridge.Close.
func New(p native.Plugin) (*Bridge, error) {
	if p == nil {
		return nil, ErrNotInitialized
	}

	table := p.Ops()
	b := &Bridge{plugin: p, logger: logging.Named("swc")}
	for _, op := range Operations() {
		id, ok := table.Lookup(op.String())
		if !ok {
			return nil, fmt.Errorf("%w: plugin does not export %q", ErrUnknownOperation, op)
		}
		b.ops[op] = id
	}
	return b, nil
}

// Init resolves the plugin binary described by cfg, opens it and wraps it in
// a Bridge.
func Init(ctx context.Context, cfg *config.Config) (*Bridge, error) {
	res, err := ResolvePlugin(ctx, cfg, nil)
	if err != nil {
		return nil, err
	}

	p, err := native.Open(ctx, res.Path, native.Options{Kind: res.Kind})
	if err != nil {
		return nil, err
	}

	b, err := New(p)
	if err != nil {
		p.Close()
		return nil, err
	}

	b.logger.Info("plugin initialized", zap.String("path", res.Path), zap.String("kind", string(res.Kind)), zap.String("tag", res.Tag))
	return b, nil
}

// ResolvePlugin finds the plugin binary described by cfg. Release assets are
// fetched through the on-disk cache. client may be nil.
func ResolvePlugin(ctx context.Context, cfg *config.Config, client *http.Client) (*resolve.Result, error) {
	if cfg == nil {
		cfg = config.Default()
	}

	kind, err := native.ParseKind(cfg.Kind)
	if err != nil {
		return nil, err
	}

	opts := resolve.Options{
		Dev:         cfg.Dev,
		DevDir:      cfg.DevDir,
		Locator:     cfg.Locator,
		UseCache:    cfg.Cache,
		Kind:        kind,
		ReleaseBase: cfg.ReleaseBase,
		Client:      client,
	}

	if !cfg.Dev {
		// The tag is checked before the cache is touched.
		if _, err := resolve.ParseVersionTag(cfg.Locator); err != nil {
			return nil, err
		}

		c, err := cache.Open(ctx, cache.Options{
			Dir:    cfg.CacheDir,
			Client: client,
			Retry: &cache.RetryConfig{
				MaxRetries: cfg.Download.MaxRetries,
				RetryDelay: cfg.Download.RetryDelay,
				MaxDelay:   30 * time.Second,
				Timeout:    cfg.Download.Timeout,
			},
		})
		if err != nil {
			return nil, err
		}
		defer c.Close()
		opts.Fetcher = c
	}

	return resolve.Resolve(ctx, opts)
}

func (b *Bridge) ready() error {
	if b == nil || b.plugin == nil || b.closed.Load() {
		return ErrNotInitialized
	}
	return nil
}

// OpID returns the plugin id op was resolved to.
func (b *Bridge) OpID(op Operation) (native.OpID, error) {
	if err := b.ready(); err != nil {
		return 0, err
	}
	if op < 0 || op >= numOperations {
		return 0, fmt.Errorf("%w: %v", ErrUnknownOperation, op)
	}
	return b.ops[op], nil
}

// Close closes the underlying plugin. Later calls fail with ErrNotInitialized.
func (b *Bridge) Close() error {
	if b == nil || b.plugin == nil {
		return ErrNotInitialized
	}
	if !b.closed.CompareAndSwap(false, true) {
		return ErrNotInitialized
	}
	return b.plugin.Close()
}

// Abort closes the underlying plugin without waiting for in-flight calls
// when the transport supports it, and falls back to Close otherwise.
func (b *Bridge) Abort() error {
	if b == nil || b.plugin == nil {
		return ErrNotInitialized
	}
	aborter, ok := b.plugin.(native.Aborter)
	if !ok {
		return b.Close()
	}
	if !b.closed.CompareAndSwap(false, true) {
		return ErrNotInitialized
	}
	return aborter.Abort()
}

// Dispatch runs op with req and decodes the plugin's answer into Resp.
//
// An empty answer is ErrNoResponse and is reported before any decoding is
// attempted. Malformed answers wrap ErrDecode.
func Dispatch[Req, Resp any](ctx context.Context, b *Bridge, op Operation, req Req) (Resp, error) {
	var zero Resp

	raw, err := b.call(ctx, op, req)
	if err != nil {
		return zero, err
	}

	var resp Resp
	if err := json.Unmarshal(raw, &resp); err != nil {
		return zero, fmt.Errorf("%w: %s: %v", ErrDecode, op, err)
	}
	return resp, nil
}

func (b *Bridge) call(ctx context.Context, op Operation, req any) ([]byte, error) {
	id, err := b.OpID(op)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("swc: encode %s request: %w", op, err)
	}

	callID := uuid.New()
	log := b.logger.With(zap.String("call", callID.String()), zap.Stringer("op", op))
	log.Debug("dispatch", zap.Uint32("op_id", uint32(id)), zap.Int("request_bytes", len(payload)))

	raw, err := b.plugin.Dispatch(ctx, id, payload)
	if err != nil {
		log.Debug("dispatch failed", zap.Error(err))
		return nil, fmt.Errorf("swc: %s: %w", op, err)
	}
	if len(raw) == 0 {
		log.Debug("dispatch returned no response")
		return nil, fmt.Errorf("%w: %s", ErrNoResponse, op)
	}

	log.Debug("dispatch done", zap.Int("response_bytes", len(raw)))
	return raw, nil
}

// Parse parses source code into a Program.
func (b *Bridge) Parse(ctx context.Context, opts ParseOptions) (*Program, error) {
	return Dispatch[ParseOptions, *Program](ctx, b, OpParse, opts)
}

// Print renders a Program back to source code.
func (b *Bridge) Print(ctx context.Context, opts PrintOptions) (*PrintResult, error) {
	return Dispatch[PrintOptions, *PrintResult](ctx, b, OpPrint, opts)
}

// ExtractDependencies lists the module specifiers a source file depends on.
func (b *Bridge) ExtractDependencies(ctx context.Context, opts AnalyzeOptions) ([]Dependency, error) {
	return Dispatch[AnalyzeOptions, []Dependency](ctx, b, OpExtractDependencies, opts)
}

// IsPluginError reports whether err came from the plugin itself rather than
// from the bridge or transport.
func IsPluginError(err error) bool {
	var pe *native.PluginError
	return errors.As(err, &pe)
}
