package decision

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/doobee46/idswyft-sub005/internal/platform/config"
	"github.com/doobee46/idswyft-sub005/pkg/domain"
	"github.com/doobee46/idswyft-sub005/pkg/platform/sentinel"
)

// Engine resolves thresholds and evaluates score bags. Organization overrides
// are cached with a TTL and deduplicated through singleflight so a burst of
// verifications for one organization costs a single store read. Any override
// lookup failure falls back to environment defaults; threshold resolution
// never fails a verification.
type Engine struct {
	cfg       config.Decision
	overrides OverrideStore
	logger    *slog.Logger
	now       func() time.Time

	mu    sync.Mutex
	cache map[domain.OrganizationID]cacheEntry
	group singleflight.Group
}

type cacheEntry struct {
	values    map[string]float64
	expiresAt time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides wall-clock time for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine builds the engine. overrides may be nil, in which case only
// environment defaults apply.
func NewEngine(cfg config.Decision, overrides OverrideStore, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		cfg:       cfg,
		overrides: overrides,
		logger:    logger,
		now:       time.Now,
		cache:     make(map[domain.OrganizationID]cacheEntry),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Thresholds resolves the threshold set for one verification. Resolution
// order: organization override (merged over environment defaults) then the
// environment default for the sandbox flag.
func (e *Engine) Thresholds(ctx context.Context, sandbox bool, orgID *domain.OrganizationID) ThresholdSet {
	base := e.environmentSet(sandbox)
	if orgID == nil || e.overrides == nil {
		return base
	}

	overrides, ok := e.lookupOverrides(ctx, *orgID)
	if !ok {
		return base
	}

	merged := make(map[string]float64, len(base.Values))
	for metric, threshold := range base.Values {
		merged[metric] = threshold
	}
	for metric, threshold := range overrides {
		merged[metric] = threshold
	}
	return ThresholdSet{Source: SourceOverride, Values: merged}
}

// Evaluate checks every present metric against its resolved threshold. A
// metric with no score passes vacuously; callers that require a metric must
// check its presence themselves before trusting the verdict.
func (e *Engine) Evaluate(ctx context.Context, scores map[string]float64, sandbox bool, orgID *domain.OrganizationID) Outcome {
	set := e.Thresholds(ctx, sandbox, orgID)

	outcome := Outcome{
		PerMetric:   make(map[string]bool),
		OverallPass: true,
		Thresholds:  set,
	}
	for metric, threshold := range set.Values {
		score, present := scores[metric]
		if !present {
			continue
		}
		pass := score >= threshold
		outcome.PerMetric[metric] = pass
		outcome.OverallPass = outcome.OverallPass && pass
	}
	return outcome
}

func (e *Engine) environmentSet(sandbox bool) ThresholdSet {
	if sandbox {
		return ThresholdSet{Source: SourceSandbox, Values: valuesFrom(e.cfg.Sandbox)}
	}
	return ThresholdSet{Source: SourceProduction, Values: valuesFrom(e.cfg.Production)}
}

// lookupOverrides returns the cached override map, fetching on expiry. The
// no-override case is cached too so absent organizations do not hit the store
// on every verification.
func (e *Engine) lookupOverrides(ctx context.Context, orgID domain.OrganizationID) (map[string]float64, bool) {
	e.mu.Lock()
	entry, cached := e.cache[orgID]
	e.mu.Unlock()
	if cached && e.now().Before(entry.expiresAt) {
		return entry.values, entry.values != nil
	}

	fetched, err, _ := e.group.Do(orgID.String(), func() (any, error) {
		values, err := e.overrides.Get(ctx, orgID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				e.storeCache(orgID, nil)
				return nil, nil
			}
			return nil, err
		}
		e.storeCache(orgID, values)
		return values, nil
	})
	if err != nil {
		e.logger.WarnContext(ctx, "threshold override lookup failed, using environment defaults",
			"organization_id", orgID.String(),
			"error", err)
		return nil, false
	}
	values, _ := fetched.(map[string]float64)
	return values, values != nil
}

func (e *Engine) storeCache(orgID domain.OrganizationID, values map[string]float64) {
	e.mu.Lock()
	e.cache[orgID] = cacheEntry{values: values, expiresAt: e.now().Add(e.cfg.OverrideCacheTTL)}
	e.mu.Unlock()
}
