// Package httpfetch brings WorkItem bytes to local disk, streaming remote
// documents over HTTP with bounded retries.
package httpfetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/paper-annotator/internal/metrics"
	"github.com/JakeFAU/paper-annotator/internal/paper"
)

// Config controls download behavior.
type Config struct {
	DownloadDir string
	UserAgent   string
	Timeout     time.Duration
	MaxAttempts int
	Backoff     time.Duration
}

// Fetcher implements paper.Fetcher.
type Fetcher struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// New builds a Fetcher with a pooled transport.
func New(cfg Config, logger *zap.Logger) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		cfg: cfg,
		client: &http.Client{
			Transport: newHTTPTransport(),
			Timeout:   cfg.Timeout,
		},
		logger: logger,
	}
}

// WithHTTPClient swaps the underlying client (tests use httptest clients).
func (f *Fetcher) WithHTTPClient(client *http.Client) *Fetcher {
	if client != nil {
		f.client = client
	}
	return f
}

// TargetPath is where a remote item's bytes live locally.
func (f *Fetcher) TargetPath(item paper.WorkItem) string {
	return filepath.Join(f.cfg.DownloadDir, safeSegment(item.Group), safeSegment(item.ID))
}

// Fetch ensures the item's bytes exist locally. Existing targets are reused
// without a network call.
func (f *Fetcher) Fetch(ctx context.Context, item paper.WorkItem) (paper.Document, error) {
	if !item.IsRemote() {
		return f.fetchLocal(item)
	}
	if safeSegment(item.ID) == "" {
		return paper.Document{}, &paper.FetchError{Item: item, Attempts: 0, Err: errors.New("empty document id")}
	}

	target := f.TargetPath(item)
	if info, err := os.Stat(target); err == nil && info.Mode().IsRegular() {
		metrics.ObserveFetch(item.Source, "skipped", 0)
		return paper.Document{Item: item, Path: target, Skipped: true, Bytes: info.Size()}, nil
	}

	var lastErr error
	for attempt := 1; attempt <= f.cfg.MaxAttempts; attempt++ {
		n, err := f.download(ctx, item.Source, target)
		if err == nil {
			metrics.ObserveFetch(item.Source, "downloaded", n)
			f.logger.Debug("document downloaded",
				zap.String("document_id", item.ID),
				zap.String("group", item.Group),
				zap.Int64("bytes", n),
				zap.Int("attempt", attempt),
			)
			return paper.Document{Item: item, Path: target, Bytes: n}, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return paper.Document{}, fmt.Errorf("fetch %s canceled: %w", item.ID, ctxErr)
		}
		if !isTransient(err) {
			metrics.ObserveFetch(item.Source, "failed", 0)
			return paper.Document{}, &paper.FetchError{Item: item, Attempts: attempt, Err: err}
		}
		lastErr = err
		if attempt < f.cfg.MaxAttempts {
			f.logger.Warn("transient fetch error, retrying",
				zap.String("document_id", item.ID),
				zap.String("source", item.Source),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", f.cfg.Backoff),
				zap.Error(err),
			)
			if err := sleep(ctx, f.cfg.Backoff); err != nil {
				return paper.Document{}, fmt.Errorf("fetch %s canceled: %w", item.ID, err)
			}
		}
	}
	metrics.ObserveFetch(item.Source, "failed", 0)
	return paper.Document{}, &paper.FetchError{
		Item:     item,
		Attempts: f.cfg.MaxAttempts,
		Err:      fmt.Errorf("%w: %w", paper.ErrTransientFetch, lastErr),
	}
}

func (f *Fetcher) fetchLocal(item paper.WorkItem) (paper.Document, error) {
	info, err := os.Stat(item.Source)
	if err != nil {
		metrics.ObserveFetch(item.Source, "failed", 0)
		return paper.Document{}, &paper.FetchError{Item: item, Attempts: 1, Err: err}
	}
	if !info.Mode().IsRegular() {
		return paper.Document{}, &paper.FetchError{Item: item, Attempts: 1, Err: fmt.Errorf("%s is not a regular file", item.Source)}
	}
	metrics.ObserveFetch(item.Source, "skipped", 0)
	return paper.Document{Item: item, Path: item.Source, Skipped: true, Bytes: info.Size()}, nil
}

// download streams url into target via a .part file renamed on success.
func (f *Fetcher) download(ctx context.Context, url, target string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, permanent(fmt.Errorf("build request: %w", err))
	}
	if f.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", f.cfg.UserAgent)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("GET %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		// Drain a little so the connection can be reused.
		_, _ = io.CopyN(io.Discard, resp.Body, 4<<10)
		return 0, &statusError{Code: resp.StatusCode, URL: url}
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return 0, permanent(fmt.Errorf("create download dir: %w", err))
	}
	part := target + ".part"
	out, err := os.OpenFile(part, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, permanent(fmt.Errorf("create %s: %w", part, err))
	}
	n, copyErr := io.Copy(out, resp.Body)
	syncErr := out.Sync()
	closeErr := out.Close()
	if err := errors.Join(copyErr, syncErr, closeErr); err != nil {
		_ = os.Remove(part)
		return 0, fmt.Errorf("stream %s: %w", url, err)
	}
	if err := os.Rename(part, target); err != nil {
		_ = os.Remove(part)
		return 0, permanent(fmt.Errorf("rename %s: %w", part, err))
	}
	return n, nil
}

type statusError struct {
	Code int
	URL  string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.Code)
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func permanent(err error) error { return &permanentError{err: err} }

// isTransient reports whether a failed attempt is worth retrying:
// network errors, 429 and 5xx.
func isTransient(err error) bool {
	var perm *permanentError
	if errors.As(err, &perm) {
		return false
	}
	var status *statusError
	if errors.As(err, &status) {
		return status.Code == http.StatusTooManyRequests || status.Code >= 500
	}
	return true
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func safeSegment(v string) string {
	v = strings.TrimSpace(filepath.Base(filepath.Clean("/" + v)))
	if v == "/" || v == "." {
		return ""
	}
	return v
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
