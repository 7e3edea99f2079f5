package pipeline

import (
	"context"
	"errors"

	"github.com/cenkalti/backoff/v4"
	"github.com/mohammad-safakhou/atlast/provider"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
)

func (p *Pipeline) newBackOff(ctx context.Context) backoff.BackOffContext {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.cfg.RetryBaseDelay
	b.MaxInterval = p.cfg.RetryMaxDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	retries := p.cfg.RetryAttempts - 1
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)
}

// generateWithRetry calls g until it succeeds, the retry budget is spent or a
// non-transient error arrives. Quota exhaustion is never retried.
func (p *Pipeline) generateWithRetry(ctx context.Context, g provider.Generator, prompt string, r *run) (string, error) {
	op := func() (string, error) {
		actx, cancel := context.WithTimeout(ctx, p.cfg.ProviderTimeout)
		defer cancel()

		started := p.now()
		text, err := g.Generate(actx, prompt)
		outcome := classify(err, ctx)
		p.recordAttempt(ctx, r, ProviderAttempt{Provider: g.Name(), Outcome: outcome, Latency: p.now().Sub(started)})

		switch outcome {
		case OutcomeSuccess:
			return text, nil
		case OutcomeTransientError:
			p.logger.Printf("provider %s transient failure: %v", g.Name(), err)
			return "", err
		default:
			return "", backoff.Permanent(err)
		}
	}
	return backoff.RetryWithData(op, p.newBackOff(ctx))
}

// classify maps a provider error to an attempt outcome. A per-call timeout is
// transient while the run itself still has time left.
func classify(err error, runCtx context.Context) Outcome {
	switch {
	case err == nil:
		return OutcomeSuccess
	case provider.IsQuotaExhausted(err):
		return OutcomeQuotaExhausted
	case provider.IsTransient(err):
		return OutcomeTransientError
	case errors.Is(err, context.DeadlineExceeded) && runCtx.Err() == nil:
		return OutcomeTransientError
	default:
		return OutcomeFatalError
	}
}

func (p *Pipeline) recordAttempt(ctx context.Context, r *run, a ProviderAttempt) {
	r.attempts = append(r.attempts, a)
	if p.metrics.attempts != nil {
		p.metrics.attempts.Add(ctx, 1, otelmetric.WithAttributes(
			attribute.String("provider", a.Provider),
			attribute.String("outcome", string(a.Outcome))))
	}
}
