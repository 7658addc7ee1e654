// Package cache stores downloaded plugin release assets on disk and keeps a
// SQLite index of what was fetched, from where, and its BLAKE3 digest.
package cache

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/zeebo/blake3"
	"go.uber.org/zap"

	"github.com/snowmerak/swc.go/lib/logging"
)

const (
	dirName   = "deno_swc"
	indexName = "index.db"
)

// Asset identifies one release binary.
type Asset struct {
	Tag      string
	GOOS     string
	GOARCH   string
	Filename string
	URL      string
}

// Options configures a Cache.
type Options struct {
	// Dir is the cache root. Empty means <user cache dir>/deno_swc.
	Dir    string
	Client *http.Client
	Retry  *RetryConfig
}

// Cache is a directory of release assets plus its index.
type Cache struct {
	dir    string
	db     *sql.DB
	client *http.Client
	retry  *RetryConfig
	logger *zap.Logger
	now    func() time.Time
}

// DefaultDir returns <user cache dir>/deno_swc.
func DefaultDir() (string, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("locate user cache dir: %w", err)
	}
	return filepath.Join(base, dirName), nil
}

// Open opens or creates the cache.
func Open(ctx context.Context, opts Options) (*Cache, error) {
	dir := opts.Dir
	if dir == "" {
		d, err := DefaultDir()
		if err != nil {
			return nil, err
		}
		dir = d
	}

	db, err := openIndex(ctx, filepath.Join(dir, indexName))
	if err != nil {
		return nil, err
	}

	client := opts.Client
	if client == nil {
		client = http.DefaultClient
	}
	retry := opts.Retry
	if retry == nil {
		retry = DefaultRetryConfig()
	}

	return &Cache{
		dir:    dir,
		db:     db,
		client: client,
		retry:  retry,
		logger: logging.Named("cache").With(zap.String("dir", dir)),
		now:    time.Now,
	}, nil
}

// Dir returns the cache root.
func (c *Cache) Dir() string {
	return c.dir
}

func (c *Cache) Close() error {
	return c.db.Close()
}

// PathFor returns where asset is stored: <dir>/<tag>/<goos>_<goarch>/<file>.
func (c *Cache) PathFor(asset Asset) string {
	return filepath.Join(c.dir, asset.Tag, platformDir(asset), asset.Filename)
}

func platformDir(asset Asset) string {
	return asset.GOOS + "_" + asset.GOARCH
}

// Fetch returns a local path for asset. With useCache set an indexed copy
// whose digest still matches is returned as is. Otherwise the asset is
// downloaded.
func (c *Cache) Fetch(ctx context.Context, asset Asset, useCache bool) (string, error) {
	log := c.logger.With(zap.String("tag", asset.Tag), zap.String("file", asset.Filename))

	if useCache {
		path, ok, err := c.hit(ctx, asset)
		if err != nil {
			return "", err
		}
		if ok {
			log.Debug("cache hit", zap.String("path", path))
			return path, nil
		}
	}

	entry, err := c.download(ctx, asset)
	if err != nil {
		return "", err
	}
	log.Info("downloaded plugin", zap.String("path", entry.Path), zap.Int64("size", entry.Size))
	return entry.Path, nil
}

func (c *Cache) hit(ctx context.Context, asset Asset) (string, bool, error) {
	entry, err := c.lookup(ctx, asset)
	if err != nil || entry == nil {
		return "", false, err
	}

	digest, err := hashFile(entry.Path)
	if err != nil {
		c.logger.Debug("cached file unreadable", zap.String("path", entry.Path), zap.Error(err))
		return "", false, nil
	}
	if digest != entry.Blake3 {
		c.logger.Warn("cached file digest mismatch", zap.String("path", entry.Path), zap.String("want", entry.Blake3), zap.String("got", digest))
		return "", false, nil
	}
	return entry.Path, true, nil
}

// Entries lists the index ordered by tag and file name.
func (c *Cache) Entries(ctx context.Context) ([]Entry, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT tag, goos, goarch, filename, url, path, blake3, size, fetched_at
FROM assets ORDER BY tag, goos, goarch, filename`)
	if err != nil {
		return nil, fmt.Errorf("query cache index: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan cache index: %w", err)
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

// ErrInvalidTag is returned for tags that cannot name a directory directly
// below the cache root.
var ErrInvalidTag = errors.New("invalid release tag")

// validTag reports whether tag names its own directory under the cache root
// without touching the index files.
func validTag(tag string) bool {
	return safeName(tag) && !strings.HasPrefix(tag, ".") && !strings.HasPrefix(tag, indexName)
}

// Prune removes every asset of tag from disk and from the index.
func (c *Cache) Prune(ctx context.Context, tag string) error {
	if !validTag(tag) {
		return fmt.Errorf("prune %q: %w", tag, ErrInvalidTag)
	}
	if _, err := c.db.ExecContext(ctx, `DELETE FROM assets WHERE tag = ?`, tag); err != nil {
		return fmt.Errorf("prune cache index: %w", err)
	}
	if err := os.RemoveAll(filepath.Join(c.dir, tag)); err != nil {
		return fmt.Errorf("prune cache directory: %w", err)
	}
	return nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
