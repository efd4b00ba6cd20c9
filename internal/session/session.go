package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/maltedev/wishlist-scraper/internal/extraction"
	"github.com/maltedev/wishlist-scraper/internal/models"
)

const DefaultTimeout = 30 * time.Second

var errSandboxGone = errors.New("sandbox closed without a result")

type State int

const (
	StateIdle State = iota
	StateLoading
	StateAwaitingResult
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateAwaitingResult:
		return "awaiting_result"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// View is one loaded page inside a sandbox. The view reports a load or
// transport failure on Failures, signals a finished document load by closing
// Loaded, and delivers at most one script message on Messages.
type View interface {
	Loaded() <-chan struct{}
	Messages() <-chan string
	Failures() <-chan error
	Close() error
}

// Sandbox loads a URL in isolation and runs script once the document loads.
type Sandbox interface {
	Load(ctx context.Context, url string, script extraction.Script) (View, error)
}

type Options struct {
	Script extraction.Script
	// Timeout is added on top of the script's settle delay to bound a whole
	// attempt. Zero means DefaultTimeout; negative disables the bound.
	Timeout time.Duration
	Logger  *slog.Logger
	// OnTransition, if set, is called for every state change.
	OnTransition func(id string, from, to State)
}

// Session drives extraction attempts against a sandbox. Each Start call is
// an independent attempt with its own state machine.
type Session struct {
	sandbox      Sandbox
	script       extraction.Script
	timeout      time.Duration
	logger       *slog.Logger
	onTransition func(id string, from, to State)

	mu    sync.Mutex
	state State
}

func New(sandbox Sandbox, opts Options) *Session {
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Script.Site == "" {
		opts.Script = extraction.DefaultScript()
	}

	return &Session{
		sandbox:      sandbox,
		script:       opts.Script,
		timeout:      opts.Timeout,
		logger:       opts.Logger.With("component", "session"),
		onTransition: opts.OnTransition,
		state:        StateIdle,
	}
}

// State returns the state of the most recent attempt.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start runs one extraction attempt with the session's script and blocks
// until it reaches a terminal state.
func (s *Session) Start(ctx context.Context, url string) Outcome {
	return s.StartWithScript(ctx, url, s.script)
}

// StartWithScript is Start with a per-call script, used when the site is
// only known after classification.
func (s *Session) StartWithScript(ctx context.Context, url string, script extraction.Script) Outcome {
	a := &attempt{
		session: s,
		id:      uuid.New().String(),
		state:   StateIdle,
		started: time.Now(),
	}
	a.logger = s.logger.With("session_id", a.id, "url", url)

	out := a.run(ctx, url, script)
	out.URL = url
	out.Duration = time.Since(a.started)

	if out.Succeeded() {
		a.logger.Info("extraction succeeded", "title", out.Product.Title, "duration", out.Duration)
	} else {
		a.logger.Warn("extraction failed", "reason", out.Reason, "error", out.Cause, "duration", out.Duration)
	}
	return out
}

type attempt struct {
	session *Session
	id      string
	state   State
	started time.Time
	logger  *slog.Logger
}

func (a *attempt) run(parent context.Context, url string, script extraction.Script) Outcome {
	ctx, cancel := a.session.boundedContext(parent, script)
	defer cancel()

	a.transition(StateLoading)

	view, err := a.session.sandbox.Load(ctx, url, script)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return a.fail(url, contextReason(ctxErr), err)
		}
		return a.fail(url, ReasonNetworkError, err)
	}
	defer func() {
		if err := view.Close(); err != nil {
			a.logger.Warn("failed to close sandbox view", "error", err)
		}
	}()

	loaded := view.Loaded()
	messages := view.Messages()
	failures := view.Failures()

	for {
		select {
		case <-loaded:
			loaded = nil
			a.transition(StateAwaitingResult)

		case err, ok := <-failures:
			if !ok {
				failures = nil
				if messages == nil {
					return a.fail(url, ReasonNetworkError, errSandboxGone)
				}
				continue
			}
			return a.fail(url, ReasonNetworkError, err)

		case data, ok := <-messages:
			if !ok {
				messages = nil
				if failures == nil {
					return a.fail(url, ReasonNetworkError, errSandboxGone)
				}
				continue
			}
			if a.state == StateLoading {
				a.transition(StateAwaitingResult)
			}
			return a.resolve(url, data)

		case <-ctx.Done():
			return a.fail(url, contextReason(ctx.Err()), ctx.Err())
		}
	}
}

func (a *attempt) resolve(url, data string) Outcome {
	msg, err := extraction.ParseMessage(data)
	if err != nil {
		return a.fail(url, ReasonMalformedResponse, err)
	}
	if msg.Error != nil && *msg.Error != "" {
		a.logger.Debug("script reported an error", "script_error", *msg.Error)
	}

	if msg.Title == nil || strings.TrimSpace(*msg.Title) == "" {
		var cause error
		if msg.Error != nil && *msg.Error != "" {
			cause = errors.New(*msg.Error)
		}
		return a.fail(url, ReasonNoTitleFound, cause)
	}

	product := models.ProductData{
		Title:    *msg.Title,
		Price:    msg.Price,
		ImageURL: msg.Image,
	}
	if msg.Description != nil {
		desc := extraction.TruncateDescription(*msg.Description)
		product.Description = &desc
	}

	a.transition(StateSucceeded)
	return Success(url, product)
}

func (a *attempt) fail(url string, reason Reason, cause error) Outcome {
	a.transition(StateFailed)
	return Failure(url, reason, cause)
}

func (a *attempt) transition(to State) {
	from := a.state
	a.state = to

	a.session.mu.Lock()
	a.session.state = to
	a.session.mu.Unlock()

	a.logger.Debug("session state changed", "from", from.String(), "to", to.String())
	if a.session.onTransition != nil {
		a.session.onTransition(a.id, from, to)
	}
}

func (s *Session) boundedContext(parent context.Context, script extraction.Script) (context.Context, context.CancelFunc) {
	if s.timeout < 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, script.SettleDelay+s.timeout)
}

func contextReason(err error) Reason {
	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonTimeout
	}
	return ReasonAbandoned
}
