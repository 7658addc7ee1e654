// Package resolve locates the compiler plugin binary: a local development
// build, or a release asset downloaded through the cache.
package resolve

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"runtime"

	"go.uber.org/zap"

	"github.com/snowmerak/swc.go/lib/cache"
	"github.com/snowmerak/swc.go/lib/logging"
	"github.com/snowmerak/swc.go/lib/native"
)

// DefaultDevDir is where a local cargo build places the plugin.
const DefaultDevDir = "./target/debug"

// Fetcher returns a local path for a release asset.
type Fetcher interface {
	Fetch(ctx context.Context, asset cache.Asset, useCache bool) (string, error)
}

// Options selects how the plugin is found.
type Options struct {
	Dev    bool
	DevDir string

	// Locator is the import locator that carries the release tag, e.g.
	// https://deno.land/x/deno_swc@v0.0.4/mod.ts.
	Locator  string
	UseCache bool

	Kind   native.Kind
	GOOS   string
	GOARCH string

	ReleaseBase string
	Client      *http.Client
	Fetcher     Fetcher
}

// Result is a resolved plugin binary.
type Result struct {
	Path string
	Kind native.Kind
	Tag  string
	Dev  bool
}

// Resolve returns exactly one plugin path for the current platform, or an
// error.
func Resolve(ctx context.Context, opts Options) (*Result, error) {
	goos := opts.GOOS
	if goos == "" {
		goos = runtime.GOOS
	}
	goarch := opts.GOARCH
	if goarch == "" {
		goarch = runtime.GOARCH
	}
	kind := opts.Kind
	if kind == "" {
		kind = native.KindShared
	}

	log := logging.Named("resolve")

	if opts.Dev {
		return resolveDev(opts, goos, kind, log)
	}

	tag, err := ParseVersionTag(opts.Locator)
	if err != nil {
		return nil, err
	}

	filename, err := Filename(goos, kind)
	if err != nil {
		return nil, err
	}

	if opts.Fetcher == nil {
		return nil, fmt.Errorf("resolve %s: no asset fetcher configured", tag)
	}

	releases := NewReleaseClient(opts.ReleaseBase, opts.Client)
	release, err := releases.Release(ctx, tag)
	if err != nil {
		return nil, err
	}
	url, err := releases.AssetURL(release, filename)
	if err != nil {
		return nil, err
	}

	path, err := opts.Fetcher.Fetch(ctx, cache.Asset{
		Tag:      tag,
		GOOS:     goos,
		GOARCH:   goarch,
		Filename: filename,
		URL:      url,
	}, opts.UseCache)
	if err != nil {
		return nil, fmt.Errorf("fetch %s %s: %w", tag, filename, err)
	}

	log.Debug("resolved release plugin", zap.String("tag", tag), zap.String("path", path))
	return &Result{Path: path, Kind: kind, Tag: tag}, nil
}

func resolveDev(opts Options, goos string, kind native.Kind, log *zap.Logger) (*Result, error) {
	filename, err := Filename(goos, kind)
	if err != nil {
		return nil, err
	}

	dir := opts.DevDir
	if dir == "" {
		dir = DefaultDevDir
	}
	path := filepath.Join(dir, filename)

	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("development plugin: %w", err)
	}

	log.Debug("resolved development plugin", zap.String("path", path))
	return &Result{Path: path, Kind: kind, Dev: true}, nil
}
