package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"golang.org/x/time/rate"

	"github.com/kirillkom/sekretar-core/internal/core/domain"
	"github.com/kirillkom/sekretar-core/internal/core/ports"
	"github.com/kirillkom/sekretar-core/internal/infrastructure/resilience"
)

// Observer records one outcome per backend call. Satisfied by
// metrics.GatewayMetrics.
type Observer interface {
	ObserveCall(service, backend, operation, outcome string, duration time.Duration)
}

type noopObserver struct{}

func (noopObserver) ObserveCall(string, string, string, string, time.Duration) {}

type Config struct {
	Service     string
	CallTimeout time.Duration
	RateLimit   float64
	RateBurst   int
	// Clock overrides wall-clock time in tests.
	Clock func() time.Time
}

func (c Config) normalize() Config {
	out := c
	if out.Service == "" {
		out.Service = "gateway"
	}
	if out.CallTimeout <= 0 {
		out.CallTimeout = 30 * time.Second
	}
	if out.RateLimit <= 0 {
		out.RateLimit = float64(rate.Inf)
	}
	if out.RateBurst <= 0 {
		out.RateBurst = 1
	}
	if out.Clock == nil {
		out.Clock = func() time.Time { return time.Now().UTC() }
	}
	return out
}

// Gateway fans a call over an ordered list of AI backends. A transient
// failure (timeout, rate limit, 5xx-equivalent, open breaker) falls
// through to the next backend; the first success wins. One pass only,
// so no backend is billed twice for the same call. A well-formed
// low-confidence answer is an answer, never a reason to fall through.
type Gateway struct {
	cfg      Config
	backends []ports.AIBackend
	breakers *resilience.Breakers
	limiters map[string]*rate.Limiter
	logger   *slog.Logger
	obs      Observer
}

func New(cfg Config, backends []ports.AIBackend, breakers *resilience.Breakers, logger *slog.Logger, obs Observer) *Gateway {
	cfg = cfg.normalize()
	if logger == nil {
		logger = slog.Default()
	}
	if obs == nil {
		obs = noopObserver{}
	}
	limiters := make(map[string]*rate.Limiter, len(backends))
	for _, b := range backends {
		limiters[b.Name()] = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst)
	}
	return &Gateway{
		cfg:      cfg,
		backends: backends,
		breakers: breakers,
		limiters: limiters,
		logger:   logger,
		obs:      obs,
	}
}

func (g *Gateway) Classify(ctx context.Context, text string, candidates []domain.TopicCandidate) (domain.ClassificationResult, error) {
	var result domain.ClassificationResult
	err := g.eachBackend(ctx, "classify", func(callCtx context.Context, b ports.AIBackend) error {
		r, err := b.Classify(callCtx, text, candidates)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	return result, err
}

func (g *Gateway) Render(ctx context.Context, text string, topic domain.TopicCandidate) (domain.RenderedNote, error) {
	var note domain.RenderedNote
	err := g.eachBackend(ctx, "render", func(callCtx context.Context, b ports.AIBackend) error {
		n, err := b.Render(callCtx, text, topic)
		if err != nil {
			return err
		}
		note = n
		return nil
	})
	return note, err
}

func (g *Gateway) Transcribe(ctx context.Context, audio io.Reader, mimeType string) (string, error) {
	// Buffer once so each backend in the fallback order can read the
	// payload from the start.
	raw, err := io.ReadAll(audio)
	if err != nil {
		return "", fmt.Errorf("read audio payload: %w", err)
	}

	var text string
	err = g.eachBackend(ctx, "transcribe", func(callCtx context.Context, b ports.AIBackend) error {
		t, err := b.Transcribe(callCtx, bytes.NewReader(raw), mimeType)
		if err != nil {
			return err
		}
		text = t
		return nil
	})
	return text, err
}

func (g *Gateway) eachBackend(ctx context.Context, operation string, call func(context.Context, ports.AIBackend) error) error {
	if len(g.backends) == 0 {
		return domain.WrapError(domain.ErrProviderUnavailable, operation, errors.New("no backends configured"))
	}

	var lastErr error
	for _, backend := range g.backends {
		if limiter := g.limiters[backend.Name()]; limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return err
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, g.cfg.CallTimeout)
		start := g.cfg.Clock()
		err := g.invoke(callCtx, backend, call)
		cancel()
		latency := g.cfg.Clock().Sub(start)

		outcome := callOutcome(err)
		g.obs.ObserveCall(g.cfg.Service, backend.Name(), operation, outcome, latency)
		g.logger.Info("ai_backend_call",
			"backend", backend.Name(),
			"operation", operation,
			"outcome", outcome,
			"latency_ms", latency.Milliseconds(),
		)

		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		lastErr = err
		if !isTransient(err) {
			return err
		}
	}
	return domain.WrapError(domain.ErrProviderUnavailable, operation, lastErr)
}

func (g *Gateway) invoke(ctx context.Context, backend ports.AIBackend, call func(context.Context, ports.AIBackend) error) error {
	if g.breakers == nil {
		return call(ctx, backend)
	}
	return g.breakers.Do(backend.Name(), classifyBackendError, func() error {
		return call(ctx, backend)
	})
}

// classifyBackendError drives the per-backend circuit breaker: transient
// failures count against the breaker, a caller-side cancellation does not.
func classifyBackendError(err error) resilience.Classification {
	if err == nil {
		return resilience.Classification{}
	}
	if errors.Is(err, context.Canceled) {
		return resilience.Classification{}
	}
	if isTransient(err) {
		return resilience.Classification{Retryable: true, RecordFailure: true}
	}
	return resilience.Classification{RecordFailure: true}
}

func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if domain.IsKind(err, domain.ErrTemporary) {
		return true
	}
	if resilience.IsCircuitOpen(err) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func callOutcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case resilience.IsCircuitOpen(err):
		return "circuit_open"
	case isTransient(err):
		return "transient_error"
	default:
		return "error"
	}
}
