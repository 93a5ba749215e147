package ratelimit

import (
	"fmt"
	"regexp"
	"strings"
)

// Rule is a named rate limit with optional request matchers.
// A rule with no matchers applies to every request; all matchers present
// on a rule must match (absent matchers are wildcards).
type Rule struct {
	// Name uniquely identifies the rule within a catalog.
	Name string
	// Path matches the request path exactly, or as a glob when it
	// contains a single '*' (e.g. "/bulk/*").
	Path string
	// Method matches the HTTP method exactly.
	Method string
	// UserType matches the resolved user classification.
	UserType UserType
	// TenantType matches the resolved tenant plan.
	TenantType TenantType

	Config
}

type compiledRule struct {
	Rule
	pathRe *regexp.Regexp // nil when Path is empty or exact
}

func (cr *compiledRule) matches(rctx RequestContext) bool {
	if cr.Path != "" {
		if cr.pathRe != nil {
			if !cr.pathRe.MatchString(rctx.Path) {
				return false
			}
		} else if cr.Path != rctx.Path {
			return false
		}
	}
	if cr.Method != "" && cr.Method != rctx.Method {
		return false
	}
	if cr.UserType != "" && cr.UserType != rctx.UserType {
		return false
	}
	if cr.TenantType != "" && cr.TenantType != rctx.TenantType {
		return false
	}
	return true
}

// Catalog is a static, ordered table of rate-limit rules. It is built
// once at startup; Resolve is safe for concurrent use.
type Catalog struct {
	rules []*compiledRule
}

// NewCatalog validates and compiles the given rules, preserving their
// declaration order. It fails on unnamed or duplicate rules and on
// non-positive counting parameters.
func NewCatalog(rules []Rule) (*Catalog, error) {
	seen := make(map[string]struct{}, len(rules))
	compiled := make([]*compiledRule, 0, len(rules))

	for _, r := range rules {
		if r.Name == "" {
			return nil, fmt.Errorf("rate limit rule without a name")
		}
		if _, dup := seen[r.Name]; dup {
			return nil, fmt.Errorf("duplicate rate limit rule %q", r.Name)
		}
		seen[r.Name] = struct{}{}

		if err := validateConfig(r.Config); err != nil {
			return nil, fmt.Errorf("rule %q: %w", r.Name, err)
		}

		cr := &compiledRule{Rule: r}
		if strings.Contains(r.Path, "*") {
			re, err := compilePathGlob(r.Path)
			if err != nil {
				return nil, fmt.Errorf("rule %q: %w", r.Name, err)
			}
			cr.pathRe = re
		}
		compiled = append(compiled, cr)
	}

	return &Catalog{rules: compiled}, nil
}

// Resolve returns every rule whose matchers all match the request
// context, in catalog declaration order. An empty result means no
// limiting applies.
func (c *Catalog) Resolve(rctx RequestContext) []Rule {
	var matched []Rule
	for _, cr := range c.rules {
		if cr.matches(rctx) {
			matched = append(matched, cr.Rule)
		}
	}
	return matched
}

// Rules returns the catalog's rules in declaration order.
func (c *Catalog) Rules() []Rule {
	out := make([]Rule, len(c.rules))
	for i, cr := range c.rules {
		out[i] = cr.Rule
	}
	return out
}

func validateConfig(cfg Config) error {
	if cfg.Window <= 0 {
		return fmt.Errorf("window must be positive, got %v", cfg.Window)
	}
	if cfg.MaxRequests <= 0 {
		return fmt.Errorf("max requests must be positive, got %d", cfg.MaxRequests)
	}
	return nil
}

// compilePathGlob translates a path glob into an anchored regexp where
// each '*' spans any run of characters.
func compilePathGlob(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("^")
	for i, part := range strings.Split(pattern, "*") {
		if i > 0 {
			b.WriteString(".*")
		}
		b.WriteString(regexp.QuoteMeta(part))
	}
	b.WriteString("$")

	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, fmt.Errorf("invalid path pattern %q: %w", pattern, err)
	}
	return re, nil
}
