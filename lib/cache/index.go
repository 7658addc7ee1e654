package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Entry is one row of the cache index.
type Entry struct {
	Tag       string    `json:"tag" yaml:"tag"`
	GOOS      string    `json:"goos" yaml:"goos"`
	GOARCH    string    `json:"goarch" yaml:"goarch"`
	Filename  string    `json:"filename" yaml:"filename"`
	URL       string    `json:"url" yaml:"url"`
	Path      string    `json:"path" yaml:"path"`
	Blake3    string    `json:"blake3" yaml:"blake3"`
	Size      int64     `json:"size" yaml:"size"`
	FetchedAt time.Time `json:"fetched_at" yaml:"fetched_at"`
}

func openIndex(ctx context.Context, path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open cache index: %w", err)
	}

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := db.ExecContext(pctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}
	if _, err := db.ExecContext(pctx, `CREATE TABLE IF NOT EXISTS assets (
  tag        TEXT NOT NULL,
  goos       TEXT NOT NULL,
  goarch     TEXT NOT NULL,
  filename   TEXT NOT NULL,
  url        TEXT NOT NULL,
  path       TEXT NOT NULL,
  blake3     TEXT NOT NULL,
  size       INTEGER NOT NULL,
  fetched_at TEXT NOT NULL,
  PRIMARY KEY (tag, goos, goarch, filename)
);`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap cache index: %w", err)
	}
	return db, nil
}

func (c *Cache) lookup(ctx context.Context, asset Asset) (*Entry, error) {
	row := c.db.QueryRowContext(ctx, `SELECT tag, goos, goarch, filename, url, path, blake3, size, fetched_at
FROM assets WHERE tag = ? AND goos = ? AND goarch = ? AND filename = ?`, asset.Tag, asset.GOOS, asset.GOARCH, asset.Filename)

	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query cache index: %w", err)
	}
	return e, nil
}

func (c *Cache) upsert(ctx context.Context, e Entry) error {
	_, err := c.db.ExecContext(ctx, `INSERT INTO assets (tag, goos, goarch, filename, url, path, blake3, size, fetched_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(tag, goos, goarch, filename) DO UPDATE SET
  url = excluded.url,
  path = excluded.path,
  blake3 = excluded.blake3,
  size = excluded.size,
  fetched_at = excluded.fetched_at`,
		e.Tag, e.GOOS, e.GOARCH, e.Filename, e.URL, e.Path, e.Blake3, e.Size, e.FetchedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("update cache index: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (*Entry, error) {
	var (
		e         Entry
		fetchedAt string
	)
	if err := s.Scan(&e.Tag, &e.GOOS, &e.GOARCH, &e.Filename, &e.URL, &e.Path, &e.Blake3, &e.Size, &fetchedAt); err != nil {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339Nano, fetchedAt)
	if err != nil {
		return nil, fmt.Errorf("parse fetched_at %q: %w", fetchedAt, err)
	}
	e.FetchedAt = t
	return &e, nil
}
