package ratelimit

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/example/multitenant-api/domain/ratelimit"
)

// overrideRuleName identifies route-level override checks in response
// metadata and logs.
const overrideRuleName = "route-override"

// Decision is the binding outcome of an admission check: the rule that
// decided and its result.
type Decision struct {
	Rule   ratelimit.Rule
	Result *ratelimit.Result
}

// Coordinator resolves the rules applicable to a request, runs the
// sliding-window check for each concurrently, and aggregates the
// results into one admission decision.
type Coordinator struct {
	catalog *ratelimit.Catalog
	limiter *SlidingWindowLimiter
	logger  *slog.Logger
}

// NewCoordinator creates a coordinator over the given catalog and
// limiter.
func NewCoordinator(catalog *ratelimit.Catalog, limiter *SlidingWindowLimiter, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		catalog: catalog,
		limiter: limiter,
		logger:  logger,
	}
}

// Admit checks the request against every applicable rule. A non-nil
// override replaces the catalog lookup entirely. Checks for different
// rules run as independent concurrent round trips.
//
// Aggregation scans results in resolution order: the first disallowed
// result becomes the binding decision. When every rule allows, the
// first rule's result is reported. This is first-violation-wins, not
// most-restrictive-wins; callers stacking rules should declare the
// strictest rule first.
//
// A nil Decision with a nil error means no rule applies and the request
// is admitted unconditionally. A *ratelimit.LimitExceededError is
// returned alongside the binding Decision when the request is rejected.
func (co *Coordinator) Admit(ctx context.Context, rctx ratelimit.RequestContext, override *ratelimit.Config) (*Decision, error) {
	rules := co.resolve(rctx, override)
	if len(rules) == 0 {
		return nil, nil
	}

	results := make([]*ratelimit.Result, len(rules))
	g, gctx := errgroup.WithContext(ctx)
	for i, rule := range rules {
		key := ratelimit.BuildKey(rule, rctx)
		g.Go(func() error {
			results[i] = co.limiter.Check(gctx, key, rule.Config)
			return nil
		})
	}
	// Check fails open instead of erroring, so the only wait here is for
	// the round trips to join.
	_ = g.Wait()

	for i, result := range results {
		if result.Allowed {
			continue
		}
		rule := rules[i]
		co.logger.Warn("rate limit exceeded",
			"rule", rule.Name,
			"limit", rule.MaxRequests,
			"retry_after", result.RetryAfter)
		return &Decision{Rule: rule, Result: result}, &ratelimit.LimitExceededError{
			RuleName:   rule.Name,
			Limit:      rule.MaxRequests,
			Remaining:  result.Remaining,
			ResetAt:    result.ResetAt,
			RetryAfter: result.RetryAfter,
		}
	}

	return &Decision{Rule: rules[0], Result: results[0]}, nil
}

// resolve returns the rules to check: the synthetic override rule when
// one is supplied for the route, otherwise the catalog's matches.
func (co *Coordinator) resolve(rctx ratelimit.RequestContext, override *ratelimit.Config) []ratelimit.Rule {
	if override != nil {
		return []ratelimit.Rule{{
			Name:   overrideRuleName,
			Path:   rctx.Path,
			Method: rctx.Method,
			Config: *override,
		}}
	}
	return co.catalog.Resolve(rctx)
}
