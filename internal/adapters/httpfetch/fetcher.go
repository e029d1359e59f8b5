package httpfetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"

	"go2tv.app/castbeam/internal/adapters"
)

const defaultMaxBytes = 1 << 20

type Options struct {
	Retries  int
	MaxBytes int64
	WaitMin  time.Duration
	WaitMax  time.Duration
	Logger   *slog.Logger
}

// Fetcher downloads device descriptors over HTTP with bounded retries.
type Fetcher struct {
	client   *retryablehttp.Client
	maxBytes int64
}

func New(opts Options) *Fetcher {
	client := retryablehttp.NewClient()
	client.HTTPClient = cleanhttp.DefaultPooledClient()
	client.RetryMax = max(opts.Retries, 0)
	if opts.WaitMin > 0 {
		client.RetryWaitMin = opts.WaitMin
	}
	if opts.WaitMax > 0 {
		client.RetryWaitMax = opts.WaitMax
	}
	// A typed nil *slog.Logger would be called, so only set a real one.
	client.Logger = nil
	if opts.Logger != nil {
		client.Logger = opts.Logger
	}

	maxBytes := opts.MaxBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}
	return &Fetcher{client: client, maxBytes: maxBytes}
}

// StandardClient exposes the retrying client as a plain *http.Client.
func (f *Fetcher) StandardClient() *http.Client {
	return f.client.StandardClient()
}

func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build descriptor request: %w", err)
	}
	req.Header.Set("Accept", "text/xml, application/xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch descriptor: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch descriptor: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return nil, fmt.Errorf("read descriptor: %w", err)
	}
	return body, nil
}

var _ adapters.Fetcher = (*Fetcher)(nil)
