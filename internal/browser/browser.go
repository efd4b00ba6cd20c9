package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/maltedev/wishlist-scraper/internal/extraction"
	"github.com/maltedev/wishlist-scraper/internal/session"
	"github.com/playwright-community/playwright-go"
)

var (
	ErrHTTPStatus = errors.New("page returned an error status")
	ErrBlocked    = errors.New("blocked by bot protection")
)

// ensure Browser implements session.Sandbox
var _ session.Sandbox = (*Browser)(nil)

type Browser struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	opts    *Options
	logger  *slog.Logger
}

type Options struct {
	Headless       bool
	Timeout        time.Duration
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
	AcceptLanguage string
	TimezoneID     string
	Locale         string
	ProxyServer    string
	ExtraHeaders   map[string]string
	// Binding is the window function the extraction script posts to.
	Binding string
}

func DefaultOptions() *Options {
	return &Options{
		Headless:       true,
		Timeout:        30 * time.Second,
		UserAgent:      "Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Mobile Safari/537.36",
		ViewportWidth:  412,
		ViewportHeight: 915,
		AcceptLanguage: "en-IN,en;q=0.9",
		TimezoneID:     "Asia/Kolkata",
		Locale:         "en-IN",
		ExtraHeaders: map[string]string{
			"Accept": "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
			"DNT":    "1",
		},
		Binding: extraction.DefaultBinding,
	}
}

func New(opts *Options) (*Browser, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.Binding == "" {
		opts.Binding = extraction.DefaultBinding
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: &opts.Headless,
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--no-sandbox",
			"--disable-setuid-sandbox",
		},
	}

	if opts.ProxyServer != "" {
		launchOpts.Proxy = &playwright.Proxy{
			Server: opts.ProxyServer,
		}
	}

	browser, err := pw.Chromium.Launch(launchOpts)
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	headers := map[string]string{}
	for k, v := range opts.ExtraHeaders {
		headers[k] = v
	}
	if opts.AcceptLanguage != "" {
		headers["Accept-Language"] = opts.AcceptLanguage
	}

	contextOpts := playwright.BrowserNewContextOptions{
		UserAgent:         &opts.UserAgent,
		AcceptDownloads:   playwright.Bool(false),
		JavaScriptEnabled: playwright.Bool(true),
		Locale:            &opts.Locale,
		TimezoneId:        &opts.TimezoneID,
		Viewport: &playwright.Size{
			Width:  opts.ViewportWidth,
			Height: opts.ViewportHeight,
		},
		ExtraHttpHeaders: headers,
	}

	browserCtx, err := browser.NewContext(contextOpts)
	if err != nil {
		browser.Close()
		pw.Stop()
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	return &Browser{
		pw:      pw,
		browser: browser,
		context: browserCtx,
		opts:    opts,
		logger:  slog.Default().With("component", "browser"),
	}, nil
}

func (b *Browser) NewPage() (playwright.Page, error) {
	page, err := b.context.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to create new page: %w", err)
	}

	page.SetDefaultTimeout(float64(b.opts.Timeout.Milliseconds()))

	return page, nil
}

// Load opens url in a fresh page, waits for the load event and evaluates the
// script. Each call gets its own page; closing the returned view closes it.
func (b *Browser) Load(ctx context.Context, url string, script extraction.Script) (session.View, error) {
	js, err := script.JavaScript(b.opts.Binding)
	if err != nil {
		return nil, err
	}

	page, err := b.NewPage()
	if err != nil {
		return nil, err
	}

	v := newView(func() error {
		if err := page.Close(); err != nil {
			return fmt.Errorf("failed to close page: %w", err)
		}
		return nil
	})

	err = page.ExposeFunction(b.opts.Binding, func(args ...interface{}) interface{} {
		if len(args) == 0 {
			v.post("")
			return nil
		}
		if s, ok := args[0].(string); ok {
			v.post(s)
		} else {
			v.post(fmt.Sprint(args[0]))
		}
		return nil
	})
	if err != nil {
		v.Close()
		return nil, fmt.Errorf("failed to expose result binding: %w", err)
	}

	go b.navigate(ctx, page, v, url, js)

	return v, nil
}

func (b *Browser) navigate(ctx context.Context, page playwright.Page, v *view, url, js string) {
	if err := ctx.Err(); err != nil {
		v.fail(err)
		return
	}

	b.logger.Debug("loading page", "url", url)
	resp, err := page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateLoad,
		Timeout:   playwright.Float(float64(b.opts.Timeout.Milliseconds())),
	})
	if v.closed() {
		return
	}
	if err != nil {
		v.fail(fmt.Errorf("failed to navigate: %w", err))
		return
	}
	if resp != nil && resp.Status() >= 400 {
		v.fail(fmt.Errorf("%w: %d", ErrHTTPStatus, resp.Status()))
		return
	}

	if content, err := page.Content(); err == nil && isBlockedPage(content) {
		v.fail(ErrBlocked)
		return
	}

	v.markLoaded()

	if _, err := page.Evaluate(js); err != nil && !v.closed() {
		// The document loaded; a script that cannot run is reported as an
		// empty result rather than a transport failure.
		b.logger.Warn("failed to evaluate extraction script", "url", url, "error", err)
		v.post(scriptFailureMessage(err))
	}
}

func (b *Browser) Close() error {
	var errs []error

	if b.context != nil {
		if err := b.context.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close context: %w", err))
		}
	}

	if b.browser != nil {
		if err := b.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
		}
	}

	if b.pw != nil {
		if err := b.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
		}
	}

	return errors.Join(errs...)
}

var blockMarkers = []string{
	"Enter the characters you see below",
	"To discuss automated access to Amazon data",
	"Access Denied",
	"Are you a human?",
}

func isBlockedPage(content string) bool {
	for _, marker := range blockMarkers {
		if strings.Contains(content, marker) {
			return true
		}
	}
	return false
}

func scriptFailureMessage(err error) string {
	text := err.Error()
	msg, encErr := extraction.Message{Error: &text}.Encode()
	if encErr != nil {
		return `{"title":null}`
	}
	return msg
}
