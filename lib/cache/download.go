package cache

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/zeebo/blake3"
	"go.uber.org/zap"
)

// RetryConfig bounds download retries.
type RetryConfig struct {
	MaxRetries int           // Retries after the first attempt (0 = no retries)
	RetryDelay time.Duration // Initial delay between retries
	MaxDelay   time.Duration // Cap for exponential backoff
	Timeout    time.Duration // Per-attempt timeout
}

func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries: 3,
		RetryDelay: time.Second,
		MaxDelay:   15 * time.Second,
		Timeout:    5 * time.Minute,
	}
}

// StatusError is a non-200 download response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("download %s: unexpected status %d", e.URL, e.StatusCode)
}

func (c *Cache) download(ctx context.Context, asset Asset) (*Entry, error) {
	if asset.URL == "" {
		return nil, fmt.Errorf("asset %s has no download url", asset.Filename)
	}
	if !validTag(asset.Tag) || !safeName(platformDir(asset)) || !safeName(asset.Filename) {
		return nil, fmt.Errorf("invalid asset location %q/%q", asset.Tag, asset.Filename)
	}

	dest := c.PathFor(asset)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return nil, fmt.Errorf("create asset directory: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := c.backoff(attempt)
			c.logger.Debug("retrying download", zap.Int("attempt", attempt), zap.Duration("delay", delay), zap.Error(lastErr))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		digest, size, err := c.fetchOnce(ctx, asset.URL, dest)
		if err == nil {
			entry := Entry{
				Tag:       asset.Tag,
				GOOS:      asset.GOOS,
				GOARCH:    asset.GOARCH,
				Filename:  asset.Filename,
				URL:       asset.URL,
				Path:      dest,
				Blake3:    digest,
				Size:      size,
				FetchedAt: c.now(),
			}
			if err := c.upsert(ctx, entry); err != nil {
				return nil, err
			}
			return &entry, nil
		}

		lastErr = err
		if !isRetryable(err) {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("max retries (%d) exceeded: %w", c.retry.MaxRetries, lastErr)
}

// fetchOnce streams url into a temp file next to dest while hashing it, then
// renames it into place.
func (c *Cache) fetchOnce(ctx context.Context, url, dest string) (string, int64, error) {
	attemptCtx := ctx
	if c.retry.Timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, c.retry.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, url, nil)
	if err != nil {
		return "", 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/octet-stream")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("download %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", 0, &StatusError{URL: url, StatusCode: resp.StatusCode}
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".*.part")
	if err != nil {
		return "", 0, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	h := blake3.New()
	size, err := io.Copy(io.MultiWriter(tmp, h), resp.Body)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return "", 0, fmt.Errorf("write %s: %w", dest, err)
	}

	if err := os.Chmod(tmp.Name(), 0o755); err != nil {
		return "", 0, fmt.Errorf("chmod %s: %w", dest, err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return "", 0, fmt.Errorf("move into place: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), size, nil
}

func (c *Cache) backoff(attempt int) time.Duration {
	delay := c.retry.RetryDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if c.retry.MaxDelay > 0 && delay > c.retry.MaxDelay {
			return c.retry.MaxDelay
		}
	}
	return delay
}

func isRetryable(err error) bool {
	var status *StatusError
	if errors.As(err, &status) {
		return status.StatusCode == http.StatusTooManyRequests || status.StatusCode >= 500
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return strings.Contains(err.Error(), "connection reset") || strings.Contains(err.Error(), "EOF")
}

func safeName(s string) bool {
	return s != "" && s != "." && s != ".." && !strings.ContainsAny(s, `/\`)
}
