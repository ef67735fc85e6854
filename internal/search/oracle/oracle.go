// Package oracle wraps the external scoring function behind an adapter that
// owns timeout, retry, and failure classification.  It is the only component
// in the search engine permitted to perform blocking external work; every
// outcome is absorbed into a Score and never raised as a candidate-level
// error to the controller.
package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/helixforge/helixforge/internal/domain/candidate"
	"github.com/helixforge/helixforge/internal/infrastructure/monitoring/logging"
	"github.com/helixforge/helixforge/pkg/errors"
)

// Invoker is the raw external scoring boundary: one blocking call against a
// docking engine, embedding service, or any black-box evaluator.  Errors
// carry an oracle error code so the adapter can classify them:
//
//   - ErrCodeOracleTransient: retriable fault (process crash, contention)
//   - ErrCodeOracleRejected: the oracle refused the candidate; not retried
//   - anything else: treated as transient
//
// Context cancellation and deadline expiry must abort the call.
type Invoker interface {
	// Invoke evaluates one candidate payload and returns its raw fitness
	// plus an opaque diagnostic payload.
	Invoke(ctx context.Context, c *candidate.Candidate) (float64, json.RawMessage, error)

	// Engine names the backing implementation for logs and metrics.
	Engine() string
}

// Metrics is the subset of the prometheus instrument set the adapter records
// through.  Kept as a local interface so tests run without a registry.
type Metrics interface {
	ObserveOracleCall(engine, status string, elapsed time.Duration)
}

type nopMetrics struct{}

func (nopMetrics) ObserveOracleCall(string, string, time.Duration) {}

// Config carries the adapter's evaluation policy.
type Config struct {
	// Timeout bounds one full evaluation, retries included.
	Timeout time.Duration

	// MaxRetries is the number of additional attempts after the first on a
	// transient fault.
	MaxRetries int

	// RetryBackoff is the delay before the first retry; subsequent retries
	// back off exponentially with ±25% jitter, capped at 16x.
	RetryBackoff time.Duration
}

// Adapter implements the scoring contract: Score never returns an error for
// candidate-level failures; FAILED and TIMED_OUT outcomes travel inside the
// Score so the controller's loop stays isolated from oracle instability.
type Adapter struct {
	invoker Invoker
	cfg     Config
	logger  logging.Logger
	metrics Metrics
	jitter  *rand.Rand
}

// AdapterOption configures an Adapter.
type AdapterOption func(*Adapter)

// WithMetrics attaches the prometheus instrument set.
func WithMetrics(m Metrics) AdapterOption {
	return func(a *Adapter) {
		if m != nil {
			a.metrics = m
		}
	}
}

// WithJitterSource overrides the backoff jitter RNG, pinning delays in tests.
func WithJitterSource(r *rand.Rand) AdapterOption {
	return func(a *Adapter) { a.jitter = r }
}

// NewAdapter constructs an Adapter around the given invoker.
func NewAdapter(invoker Invoker, cfg Config, log logging.Logger, opts ...AdapterOption) (*Adapter, error) {
	if invoker == nil {
		return nil, errors.New(errors.ErrCodeValidation, "oracle adapter requires an invoker")
	}
	if cfg.Timeout <= 0 {
		return nil, errors.New(errors.ErrCodeValidation, "oracle timeout must be positive")
	}
	if log == nil {
		log = logging.NewNopLogger()
	}

	a := &Adapter{
		invoker: invoker,
		cfg:     cfg,
		logger:  log.Named("oracle"),
		metrics: nopMetrics{},
		jitter:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Engine names the backing invoker.
func (a *Adapter) Engine() string { return a.invoker.Engine() }

// Score evaluates one candidate.  The returned error is non-nil only for
// caller-side context cancellation; every oracle-side outcome is a Score:
//
//   - success: Score{SUCCESS, fitness, diagnostics}
//   - rejection: Score{FAILED} carrying the oracle's message
//   - transient faults beyond the retry budget: Score{FAILED}
//   - wall clock past Timeout: Score{TIMED_OUT}
func (a *Adapter) Score(ctx context.Context, c *candidate.Candidate) (candidate.Score, error) {
	start := time.Now()
	callCtx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	var lastErr error
	for attempt := 0; attempt <= a.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := a.backoff(attempt - 1)
			select {
			case <-callCtx.Done():
				return a.finish(ctx, c, start)
			case <-time.After(delay):
			}
			a.logger.Debug("retrying oracle call",
				logging.String("key", c.ShortKey()),
				logging.Int("attempt", attempt),
				logging.Duration("backoff", delay))
		}

		fitness, diagnostics, err := a.invoker.Invoke(callCtx, c)
		if err == nil {
			score := candidate.Success(fitness, diagnostics, time.Since(start))
			a.metrics.ObserveOracleCall(a.Engine(), score.Status.String(), score.Elapsed)
			return score, nil
		}
		lastErr = err

		if callCtx.Err() != nil {
			return a.finish(ctx, c, start)
		}
		if errors.IsCode(err, errors.ErrCodeOracleRejected) {
			// The oracle refused the candidate; retrying cannot help.
			break
		}
	}

	elapsed := time.Since(start)
	diag, _ := json.Marshal(map[string]string{"error": lastErr.Error()})
	score := candidate.Failed(diag, elapsed)
	a.metrics.ObserveOracleCall(a.Engine(), score.Status.String(), elapsed)
	a.logger.Warn("oracle evaluation failed",
		logging.String("key", c.ShortKey()),
		logging.Int("attempts", a.cfg.MaxRetries+1),
		logging.Err(lastErr))
	return score, nil
}

// finish classifies a context termination: the adapter's own deadline becomes
// TIMED_OUT; the caller's cancellation propagates as an error so the
// controller can abandon the run.
func (a *Adapter) finish(parent context.Context, c *candidate.Candidate, start time.Time) (candidate.Score, error) {
	elapsed := time.Since(start)
	if parent.Err() != nil {
		return candidate.Score{}, errors.Wrap(parent.Err(), errors.ErrCodeRunCancelled, "scoring abandoned by run cancellation")
	}
	score := candidate.TimedOut(elapsed)
	a.metrics.ObserveOracleCall(a.Engine(), score.Status.String(), elapsed)
	a.logger.Warn("oracle evaluation timed out",
		logging.String("key", c.ShortKey()),
		logging.Duration("elapsed", elapsed),
		logging.Duration("timeout", a.cfg.Timeout))
	return score, nil
}

// backoff returns the delay before the attempt-th retry: exponential with
// ±25% jitter, capped at 16x the initial backoff.
func (a *Adapter) backoff(attempt int) time.Duration {
	if a.cfg.RetryBackoff <= 0 {
		return 0
	}
	base := float64(a.cfg.RetryBackoff) * math.Pow(2, float64(attempt))
	if max := float64(a.cfg.RetryBackoff) * 16; base > max {
		base = max
	}
	jitter := base * 0.25 * (a.jitter.Float64()*2 - 1)
	d := time.Duration(base + jitter)
	if d < 0 {
		d = 0
	}
	return d
}

// Transient wraps an error as a retriable oracle fault.
func Transient(err error) error {
	return errors.Wrap(err, errors.ErrCodeOracleTransient, "transient oracle fault")
}

// Rejected builds a non-retriable oracle rejection.
func Rejected(msg string) error {
	return errors.New(errors.ErrCodeOracleRejected, fmt.Sprintf("oracle rejected candidate: %s", msg))
}
