package ratelimit

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/example/multitenant-api/domain/ratelimit"
)

// Locals keys the identity middleware populates for each request. The
// engine consumes them; resolving them is the caller's concern.
const (
	LocalUserID     = "user_id"
	LocalTenantID   = "tenant_id"
	LocalUserType   = "user_type"
	LocalTenantType = "tenant_type"
)

// Middleware enforces rate limits as one named stage of the HTTP
// middleware chain. It builds the request context, consults the route
// table for overrides and skip flags, delegates admission to the
// coordinator, and renders headers and the 429 payload.
type Middleware struct {
	coordinator *Coordinator
	routes      *RouteTable
}

// NewMiddleware creates the rate-limiting middleware stage.
func NewMiddleware(coordinator *Coordinator, routes *RouteTable) *Middleware {
	if routes == nil {
		routes = NewRouteTable()
	}
	return &Middleware{coordinator: coordinator, routes: routes}
}

// Handler returns the fiber handler for the middleware chain.
func (m *Middleware) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var override *ratelimit.Config
		if rr, ok := m.routes.Lookup(c.Method(), c.Path()); ok {
			if rr.Skip {
				return c.Next()
			}
			override = rr.Override
		}

		rctx := requestContext(c)

		decision, err := m.coordinator.Admit(c.Context(), rctx, override)
		if decision != nil {
			setRateLimitHeaders(c, decision)
		}
		if err != nil {
			var limitErr *ratelimit.LimitExceededError
			if errors.As(err, &limitErr) {
				return sendLimitExceeded(c, limitErr)
			}
			// Anything else is a programming error; let the app's error
			// handler surface it instead of masking it.
			return err
		}

		return c.Next()
	}
}

// requestContext derives the immutable request context from the fiber
// request and the locals set by the identity middleware.
func requestContext(c *fiber.Ctx) ratelimit.RequestContext {
	rctx := ratelimit.RequestContext{
		ClientIP: c.IP(),
		Path:     c.Path(),
		Method:   c.Method(),
		UserType: ratelimit.UserTypeAnonymous,
	}

	if v, ok := c.Locals(LocalUserID).(string); ok {
		rctx.UserID = v
	}
	if v, ok := c.Locals(LocalTenantID).(string); ok {
		rctx.TenantID = v
	}
	if v, ok := c.Locals(LocalUserType).(ratelimit.UserType); ok && v != "" {
		rctx.UserType = v
	}
	if v, ok := c.Locals(LocalTenantType).(ratelimit.TenantType); ok {
		rctx.TenantType = v
	}

	return rctx
}

// setRateLimitHeaders reports the binding decision on every checked
// response, allowed or not.
func setRateLimitHeaders(c *fiber.Ctx, d *Decision) {
	c.Set("X-RateLimit-Rule", d.Rule.Name)
	c.Set("X-RateLimit-Limit", strconv.Itoa(d.Rule.MaxRequests))
	c.Set("X-RateLimit-Remaining", strconv.Itoa(d.Result.Remaining))
	c.Set("X-RateLimit-Reset", d.Result.ResetAt.UTC().Format(time.RFC3339))
}

// sendLimitExceeded renders the structured 429 response.
func sendLimitExceeded(c *fiber.Ctx, e *ratelimit.LimitExceededError) error {
	retryAfter := int(e.RetryAfter.Seconds())
	if retryAfter < 1 {
		retryAfter = 1
	}
	c.Set("Retry-After", strconv.Itoa(retryAfter))

	return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
		"error":       "Too Many Requests",
		"message":     "Rate limit exceeded. Please retry later.",
		"rule":        e.RuleName,
		"retry_after": retryAfter,
		"limit":       e.Limit,
		"remaining":   e.Remaining,
		"reset_time":  e.ResetAt.UTC().Format(time.RFC3339),
	})
}
