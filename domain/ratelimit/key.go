package ratelimit

import (
	"strings"
)

// BuildKey deterministically composes the counter key for a rule and
// request context. Only the parts the rule depends on are included, so
// unrelated rules never collide on the same counter and keys carry no
// identifying information the rule does not care about.
//
// The composed key is a ":"-joined sequence of label:value segments,
// e.g. "user:u-123:path:/auth/login:method:POST", prefixed with the
// rule's KeyPrefix.
func BuildKey(rule Rule, rctx RequestContext) string {
	parts := make([]string, 0, 8)

	if rule.TenantType != "" && rctx.TenantID != "" {
		parts = append(parts, "tenant", rctx.TenantID)
	}

	switch rule.UserType {
	case UserTypeAuthenticated, UserTypePremium:
		if rctx.UserID != "" {
			parts = append(parts, "user", rctx.UserID)
		} else {
			parts = append(parts, "ip", rctx.ClientIP)
		}
	case UserTypeAnonymous:
		parts = append(parts, "ip", rctx.ClientIP)
	default:
		// Rules that do not scope by identity still need per-caller
		// isolation; fall back to the client IP unless the key is
		// already tenant-scoped.
		if len(parts) == 0 {
			parts = append(parts, "ip", rctx.ClientIP)
		}
	}

	if rule.Path != "" {
		parts = append(parts, "path", rule.Path)
	}
	if rule.Method != "" {
		parts = append(parts, "method", rule.Method)
	}

	composed := strings.Join(parts, ":")
	if rule.KeyPrefix == "" {
		return composed
	}
	return rule.KeyPrefix + ":" + composed
}
