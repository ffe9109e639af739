// Package llm routes prompts through an ordered chain of reasoning models,
// retrying transient failures and falling back on everything else.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/deusflow/newslens/internal/logger"
	"github.com/deusflow/newslens/internal/metrics"
	"github.com/deusflow/newslens/internal/ratelimit"
	"github.com/deusflow/newslens/internal/retry"
)

// Backend performs a single model call.
type Backend interface {
	Generate(ctx context.Context, model, prompt string, wantJSON bool) (string, error)
}

// EventKind names a gateway lifecycle event.
type EventKind string

const (
	EventAttemptFailed EventKind = "attempt-failed"
	EventRetry         EventKind = "retry"
	EventSkip          EventKind = "skip"
	EventSuccess       EventKind = "success"
	EventExhausted     EventKind = "exhausted"
)

// Event describes one step of a Generate call.
type Event struct {
	Kind    EventKind
	Model   string
	Attempt int
	Delay   time.Duration // retry only
	Err     error
}

// Options configures a Gateway.
type Options struct {
	Models         []string
	Retry          retry.RetryConfig
	RequestTimeout time.Duration
	Limiter        *ratelimit.AIRateLimiter
	OnEvent        func(Event)
}

// Gateway is safe for concurrent use; it keeps no per-call state.
type Gateway struct {
	backend Backend
	opts    Options
}

// New creates a gateway. A nil backend makes every call fail with ErrNoCredential.
func New(backend Backend, opts Options) *Gateway {
	opts.Models = append([]string(nil), opts.Models...)
	return &Gateway{backend: backend, opts: opts}
}

// Models returns the fallback chain in order.
func (g *Gateway) Models() []string {
	return append([]string(nil), g.opts.Models...)
}

// Usage reports request budget consumption; empty without a limiter.
func (g *Gateway) Usage() map[string]interface{} {
	return g.opts.Limiter.GetStats()
}

// Generate sends prompt to each model in turn until one produces output.
func (g *Gateway) Generate(ctx context.Context, prompt string, wantJSON bool) (string, error) {
	if g == nil || g.backend == nil {
		return "", ErrNoCredential
	}

	var lastErr error
	for _, model := range g.opts.Models {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		out, attempts, err := g.tryModel(ctx, model, prompt, wantJSON)
		if err == nil {
			g.emit(Event{Kind: EventSuccess, Model: model, Attempt: attempts})
			return out, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if errors.Is(err, ratelimit.ErrBudgetExhausted) {
			metrics.Global.IncrementGatewayFailures()
			return "", err
		}

		lastErr = err
		g.emit(Event{Kind: EventSkip, Model: model, Attempt: attempts, Err: err})
	}

	g.emit(Event{Kind: EventExhausted, Err: lastErr})
	metrics.Global.IncrementGatewayFailures()
	if lastErr == nil {
		return "", ErrExhausted
	}
	return "", fmt.Errorf("%w (%d models): %w", ErrExhausted, len(g.opts.Models), lastErr)
}

// tryModel runs the retry loop for one model and reports how many attempts it made.
func (g *Gateway) tryModel(ctx context.Context, model, prompt string, wantJSON bool) (string, int, error) {
	cfg := g.opts.Retry
	cfg.Retryable = func(err error) bool {
		return Classify(err) == Transient
	}
	cfg.OnRetry = func(attempt int, delay time.Duration, err error) {
		g.emit(Event{Kind: EventRetry, Model: model, Attempt: attempt, Delay: delay, Err: err})
	}

	var (
		out      string
		attempts int
	)
	err := retry.WithRetry(ctx, cfg, func() error {
		attempts++
		if err := g.opts.Limiter.Wait(ctx, model); err != nil {
			return err
		}

		text, err := g.call(ctx, model, prompt, wantJSON)
		if err != nil {
			g.emit(Event{Kind: EventAttemptFailed, Model: model, Attempt: attempts, Err: err})
			return err
		}
		out = text
		return nil
	})
	return out, attempts, err
}

func (g *Gateway) call(ctx context.Context, model, prompt string, wantJSON bool) (string, error) {
	if g.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.opts.RequestTimeout)
		defer cancel()
	}

	metrics.Global.IncrementModelCalls()
	text, err := g.backend.Generate(ctx, model, prompt, wantJSON)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded && !errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %w", context.DeadlineExceeded, err)
		}
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

func (g *Gateway) emit(ev Event) {
	log := logger.With("model", ev.Model, "attempt", ev.Attempt)
	switch ev.Kind {
	case EventAttemptFailed:
		log.Warn("Model attempt failed", "class", Classify(ev.Err).String(), "error", ev.Err)
	case EventRetry:
		metrics.Global.IncrementModelRetries()
		log.Info("Retrying model", "delay", ev.Delay)
	case EventSkip:
		metrics.Global.IncrementModelSkips()
		log.Warn("Falling back to next model", "error", ev.Err)
	case EventSuccess:
		log.Debug("Model call succeeded")
	case EventExhausted:
		logger.Error("All models failed", "error", ev.Err)
	}

	if g.opts.OnEvent != nil {
		g.opts.OnEvent(ev)
	}
}
