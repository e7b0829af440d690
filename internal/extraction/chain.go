package extraction

import (
	"context"
	"log/slog"
	"time"
)

// Chain tries strategies in priority order and returns the best result.
//
// Early-exit rule: a result with confidence above EarlyExitConfidence that
// recovers at least MinRequiredFields fields stops the chain. Otherwise every
// available strategy runs and the highest-confidence result wins. Strategy
// failures are logged and swallowed; if all strategies fail the chain returns
// a degraded invalid result rather than an error.
type Chain struct {
	strategies []Strategy
	logger     *slog.Logger
	metrics    *Metrics

	earlyExitConfidence float64
	minRequiredFields   int
	strategyTimeout     time.Duration
}

// ChainOption configures a Chain.
type ChainOption func(*Chain)

// WithEarlyExitConfidence overrides the early-exit confidence bar.
func WithEarlyExitConfidence(c float64) ChainOption {
	return func(ch *Chain) { ch.earlyExitConfidence = c }
}

// WithMinRequiredFields overrides the minimum parsed-field count for early exit.
func WithMinRequiredFields(n int) ChainOption {
	return func(ch *Chain) { ch.minRequiredFields = n }
}

// WithStrategyTimeout bounds each individual strategy call.
func WithStrategyTimeout(d time.Duration) ChainOption {
	return func(ch *Chain) { ch.strategyTimeout = d }
}

// WithMetrics attaches extraction metrics.
func WithMetrics(m *Metrics) ChainOption {
	return func(ch *Chain) { ch.metrics = m }
}

// DegradedConfidence is the ceiling for the fallback result produced when
// every strategy fails. Kept well under any decision threshold.
const DegradedConfidence = 0.05

// NewChain builds a Chain over an explicit, ordered strategy list.
func NewChain(strategies []Strategy, logger *slog.Logger, opts ...ChainOption) *Chain {
	ch := &Chain{
		strategies:          strategies,
		logger:              logger,
		earlyExitConfidence: 0.8,
		minRequiredFields:   3,
		strategyTimeout:     30 * time.Second,
	}
	for _, opt := range opts {
		opt(ch)
	}
	return ch
}

// Extract runs the chain. It always returns a non-nil Result.
func (ch *Chain) Extract(ctx context.Context, image []byte, docType DocumentType) *Result {
	var best *Result

	for _, strategy := range ch.strategies {
		if !strategy.Available() {
			ch.logger.DebugContext(ctx, "extraction strategy unavailable, skipping",
				"strategy", strategy.Name(),
			)
			continue
		}

		result, err := ch.runStrategy(ctx, strategy, image, docType)
		if err != nil {
			if ch.metrics != nil {
				ch.metrics.ObserveStrategy(strategy.Name(), false)
			}
			ch.logger.WarnContext(ctx, "extraction strategy failed",
				"strategy", strategy.Name(),
				"document_type", string(docType),
				"error", err,
			)
			continue
		}
		if ch.metrics != nil {
			ch.metrics.ObserveStrategy(strategy.Name(), true)
		}

		if best == nil || result.Confidence > best.Confidence {
			best = result
		}

		if result.Confidence > ch.earlyExitConfidence && result.FieldCount() >= ch.minRequiredFields {
			ch.logger.DebugContext(ctx, "extraction early exit",
				"strategy", strategy.Name(),
				"confidence", result.Confidence,
				"fields", result.FieldCount(),
			)
			return result
		}
	}

	if best == nil {
		// Every strategy failed. The state machine still needs a result, so
		// degrade instead of erroring; the decision engine will route this
		// verification appropriately via its confidence scores.
		if ch.metrics != nil {
			ch.metrics.ObserveDegraded()
		}
		ch.logger.WarnContext(ctx, "all extraction strategies failed, returning degraded result",
			"document_type", string(docType),
		)
		return &Result{
			Method:       "degraded",
			Confidence:   DegradedConfidence,
			ParsedFields: map[Field]string{},
			Status:       ValidationInvalid,
		}
	}
	return best
}

// runStrategy bounds one strategy call with the chain's timeout and converts
// panics into errors so a misbehaving provider cannot take down the worker.
func (ch *Chain) runStrategy(ctx context.Context, s Strategy, image []byte, docType DocumentType) (result *Result, err error) {
	ctx, cancel := context.WithTimeout(ctx, ch.strategyTimeout)
	defer cancel()

	defer func() {
		if rec := recover(); rec != nil {
			result = nil
			err = &StrategyPanicError{Strategy: s.Name(), Value: rec}
		}
	}()

	result, err = s.Extract(ctx, image, docType)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, &EmptyResultError{Strategy: s.Name()}
	}
	return result, nil
}
