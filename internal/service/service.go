package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/maltedev/wishlist-scraper/internal/events"
	"github.com/maltedev/wishlist-scraper/internal/extraction"
	"github.com/maltedev/wishlist-scraper/internal/linkdetect"
	"github.com/maltedev/wishlist-scraper/internal/metrics"
	"github.com/maltedev/wishlist-scraper/internal/models"
	"github.com/maltedev/wishlist-scraper/internal/ratelimit"
	"github.com/maltedev/wishlist-scraper/internal/session"
	"github.com/maltedev/wishlist-scraper/internal/sharelinks"
)

var (
	ErrMissingTitle = errors.New("product title is required")
	ErrInvalidPrice = errors.New("price is not a number")
	ErrNoTargets    = errors.New("no wishlists selected")
)

// Scraper runs one extraction attempt. *session.Session implements it.
type Scraper interface {
	StartWithScript(ctx context.Context, url string, script extraction.Script) session.Outcome
}

// ProductWriter persists a product into several wishlists. *writer.Writer
// implements it.
type ProductWriter interface {
	Apply(ctx context.Context, targetIDs []int64, sourceURL string, p models.ProductData) (*models.WriteResult, error)
}

type Config struct {
	// MaxRetries is the number of extra attempts after a network error or
	// timeout. Zero disables retries.
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration

	// CacheSize zero disables the product cache.
	CacheSize int
	CacheTTL  time.Duration

	RateLimitMin time.Duration
	RateLimitMax time.Duration

	// SettleDelay overrides every script's settle delay when positive.
	SettleDelay time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxRetries:      2,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		CacheSize:       128,
		CacheTTL:        15 * time.Minute,
	}
}

// Service wires classification, extraction and persistence into the flows
// used by the API and CLI.
type Service struct {
	scraper Scraper
	writer  ProductWriter
	sink    *sharelinks.Sink
	events  events.Emitter
	limiter *ratelimit.HostLimiter
	cache   *expirable.LRU[string, models.ProductData]
	cfg     Config
	logger  *slog.Logger
}

func New(scraper Scraper, writer ProductWriter, sink *sharelinks.Sink, emitter events.Emitter, cfg Config, logger *slog.Logger) *Service {
	if emitter == nil {
		emitter = events.Nop{}
	}
	if sink == nil {
		sink = sharelinks.NewSink(sharelinks.DefaultCapacity)
	}

	s := &Service{
		scraper: scraper,
		writer:  writer,
		sink:    sink,
		events:  emitter,
		limiter: ratelimit.NewHostLimiter(cfg.RateLimitMin, cfg.RateLimitMax),
		cfg:     cfg,
		logger:  logger.With("component", "service"),
	}
	if cfg.CacheSize > 0 {
		s.cache = expirable.NewLRU[string, models.ProductData](cfg.CacheSize, nil, cfg.CacheTTL)
	}
	return s
}

// SharedResult describes one handled share.
type SharedResult struct {
	Link           models.SharedLink         `json:"link"`
	Classification linkdetect.Classification `json:"-"`
	Site           string                    `json:"site,omitempty"`
	Outcome        session.Outcome           `json:"-"`
	Cached         bool                      `json:"cached"`
}

func (s *Service) Sink() *sharelinks.Sink {
	return s.sink
}

// Classify classifies rawURL and records the result.
func (s *Service) Classify(rawURL string) linkdetect.Classification {
	c := linkdetect.Classify(rawURL)
	metrics.RecordClassification(c.SiteName(), c.IsValid)
	return c
}

// HandleShared accepts an inbound share string, which may be a plain URL or
// a custom-scheme wrapper, and extracts the product behind it. The error is
// non-nil only for unsupported URLs; extraction failures are reported in
// the result's Outcome.
func (s *Service) HandleShared(ctx context.Context, raw string) (*SharedResult, error) {
	target := linkdetect.ExtractSharedURL(raw)
	link := s.sink.Record(raw, target)

	c := s.Classify(target)
	if err := s.events.SharedLinkReceived(ctx, events.SharedLinkPayload{
		Raw:       raw,
		URL:       target,
		Site:      c.SiteName(),
		IsProduct: c.IsValid,
	}); err != nil {
		s.logger.Warn("failed to publish shared link event", "error", err)
	}

	res := &SharedResult{Link: link, Classification: c, Site: c.SiteName()}
	if !c.IsValid {
		s.logger.Info("unsupported shared link", "url", target)
		return res, fmt.Errorf("%w: %s", linkdetect.ErrInvalidURL, target)
	}

	res.Outcome, res.Cached = s.Extract(ctx, c)
	return res, nil
}

// Extract returns the product behind a valid classification, from cache
// when possible, retrying transient failures with exponential backoff.
func (s *Service) Extract(ctx context.Context, c linkdetect.Classification) (session.Outcome, bool) {
	url := c.NormalizedURL
	site := c.SiteName()

	if s.cache != nil {
		p, ok := s.cache.Get(url)
		metrics.RecordCache(ok)
		if ok {
			return session.Success(url, p), true
		}
	}

	script := extraction.ScriptFor(site)
	if s.cfg.SettleDelay > 0 {
		script = script.WithSettleDelay(s.cfg.SettleDelay)
	}
	limiter := s.limiter.For(site)

	b := backoff.NewExponentialBackOff()
	if s.cfg.InitialInterval > 0 {
		b.InitialInterval = s.cfg.InitialInterval
	}
	if s.cfg.MaxInterval > 0 {
		b.MaxInterval = s.cfg.MaxInterval
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(b, s.cfg.MaxRetries), ctx)

	var (
		out      session.Outcome
		attempts int
	)
	op := func() error {
		if err := limiter.Wait(ctx); err != nil {
			out = session.Failure(url, session.ReasonAbandoned, err)
			return backoff.Permanent(err)
		}

		attempts++
		out = s.scraper.StartWithScript(ctx, url, script)
		metrics.RecordScrape(site, outcomeLabel(out), out.Duration)

		switch {
		case out.Succeeded():
			limiter.RecordSuccess()
			return nil
		case out.Retryable():
			limiter.RecordError()
			return out.Err()
		default:
			return backoff.Permanent(out.Err())
		}
	}

	notify := func(err error, wait time.Duration) {
		s.logger.Warn("extraction failed, retrying",
			"url", url,
			"attempt", attempts,
			"wait", wait,
			"error", err)
	}

	// The outcome carries the result; the returned error only repeats it.
	_ = backoff.RetryNotify(op, bo, notify)

	if !out.Succeeded() && out.Reason == "" {
		// Context ended before the first attempt.
		out = session.Failure(url, session.ReasonAbandoned, ctx.Err())
	}

	if out.Succeeded() && s.cache != nil {
		s.cache.Add(url, *out.Product)
	}
	return out, false
}

// AddToWishlists stores p in every target wishlist and publishes an event
// when at least one write succeeded.
func (s *Service) AddToWishlists(ctx context.Context, targetIDs []int64, sourceURL string, p models.ProductData) (*models.WriteResult, error) {
	if strings.TrimSpace(p.Title) == "" {
		return nil, ErrMissingTitle
	}
	if len(targetIDs) == 0 {
		return nil, ErrNoTargets
	}

	res, err := s.writer.Apply(ctx, targetIDs, sourceURL, p)
	if err != nil {
		return nil, fmt.Errorf("failed to add product: %w", err)
	}

	if res.SuccessCount > 0 {
		payload := events.ProductSavedPayload{
			URL:            sourceURL,
			Title:          p.Title,
			Price:          p.Price,
			WishlistIDs:    targetIDs,
			EntryIDs:       res.InsertedIDs,
			TotalRequested: res.TotalRequested,
		}
		if name, ok := linkdetect.SiteName(sourceURL); ok {
			payload.Site = name
		}
		if err := s.events.ProductSaved(ctx, payload); err != nil {
			s.logger.Warn("failed to publish product saved event", "error", err)
		}
	}
	return res, nil
}

// ManualProduct builds a product from user input when extraction failed.
// price may be empty.
func ManualProduct(title, price string) (models.ProductData, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return models.ProductData{}, ErrMissingTitle
	}
	p := models.ProductData{Title: title}

	price = strings.TrimSpace(price)
	if price == "" {
		return p, nil
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(price, ",", ""), 64)
	if err != nil || v < 0 {
		return models.ProductData{}, fmt.Errorf("%w: %q", ErrInvalidPrice, price)
	}
	p.Price = &v
	return p, nil
}

func outcomeLabel(o session.Outcome) string {
	if o.Succeeded() {
		return "success"
	}
	return string(o.Reason)
}
