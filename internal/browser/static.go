package browser

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/maltedev/wishlist-scraper/internal/extraction"
	"github.com/maltedev/wishlist-scraper/internal/session"
)

// ensure Static implements session.Sandbox
var _ session.Sandbox = (*Static)(nil)

// Static is a sandbox without a JavaScript engine. It fetches the raw HTML
// and runs the Go rendition of the extraction script on it. Pages that
// render client-side will usually come back without a title.
type Static struct {
	opts   StaticOptions
	logger *slog.Logger
}

type StaticOptions struct {
	Timeout   time.Duration
	UserAgent string
	// Transport replaces the HTTP transport, mainly for tests.
	Transport http.RoundTripper
}

func DefaultStaticOptions() StaticOptions {
	return StaticOptions{
		Timeout:   30 * time.Second,
		UserAgent: DefaultOptions().UserAgent,
	}
}

func NewStatic(opts StaticOptions) *Static {
	defaults := DefaultStaticOptions()
	if opts.Timeout <= 0 {
		opts.Timeout = defaults.Timeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaults.UserAgent
	}
	return &Static{
		opts:   opts,
		logger: slog.Default().With("component", "static_sandbox"),
	}
}

func (s *Static) Load(ctx context.Context, url string, script extraction.Script) (session.View, error) {
	collector := colly.NewCollector(
		colly.UserAgent(s.opts.UserAgent),
		colly.AllowURLRevisit(),
	)
	collector.SetRequestTimeout(s.opts.Timeout)
	if s.opts.Transport != nil {
		collector.WithTransport(s.opts.Transport)
	}

	v := newView(nil)

	collector.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil || v.closed() {
			r.Abort()
		}
	})

	collector.OnResponse(func(r *colly.Response) {
		v.markLoaded()
	})

	collector.OnHTML("html", func(e *colly.HTMLElement) {
		msg := script.Run(e.DOM)
		data, err := msg.Encode()
		if err != nil {
			s.logger.Error("failed to encode extraction result", "url", url, "error", err)
			return
		}
		v.post(data)
	})

	// Non-HTML bodies never reach OnHTML; post an empty result so the
	// session resolves instead of waiting for its timeout.
	collector.OnScraped(func(r *colly.Response) {
		v.post(`{"title":null,"price":null,"description":null,"image":null}`)
	})

	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode >= 400 {
			v.fail(fmt.Errorf("%w: %d", ErrHTTPStatus, r.StatusCode))
			return
		}
		v.fail(fmt.Errorf("failed to fetch page: %w", err))
	})

	go func() {
		s.logger.Debug("fetching page", "url", url)
		if err := collector.Visit(url); err != nil {
			v.fail(fmt.Errorf("failed to fetch page: %w", err))
		}
	}()

	return v, nil
}
