package ratelimit

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/example/multitenant-api/domain/ratelimit"
)

func newTestApp(t *testing.T, rules []ratelimit.Rule, routes *RouteTable) *fiber.App {
	t.Helper()
	catalog, err := ratelimit.NewCatalog(rules)
	if err != nil {
		t.Fatalf("NewCatalog() error = %v", err)
	}
	limiter := NewSlidingWindowLimiter(NewMemoryCounterStore(), testLogger())
	coordinator := NewCoordinator(catalog, limiter, testLogger())
	mw := NewMiddleware(coordinator, routes)

	app := fiber.New()
	// Stands in for the identity middleware: promote identity headers to
	// the locals the engine reads.
	app.Use(func(c *fiber.Ctx) error {
		if id := c.Get("X-User-ID"); id != "" {
			c.Locals(LocalUserID, id)
			c.Locals(LocalUserType, ratelimit.UserTypeAuthenticated)
		}
		return c.Next()
	})
	app.Use(mw.Handler())
	handler := func(c *fiber.Ctx) error {
		return c.SendString("ok")
	}
	app.Get("/api/v1/data", handler)
	app.Post("/auth/login", handler)
	app.Get("/health", handler)
	return app
}

func TestMiddleware_SetsRateLimitHeaders(t *testing.T) {
	app := newTestApp(t, []ratelimit.Rule{
		{
			Name:   "global",
			Config: ratelimit.Config{Window: time.Minute, MaxRequests: 10, KeyPrefix: "rl:global"},
		},
	}, nil)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/data", nil))
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if got := resp.Header.Get("X-RateLimit-Rule"); got != "global" {
		t.Errorf("X-RateLimit-Rule = %q, want global", got)
	}
	if got := resp.Header.Get("X-RateLimit-Limit"); got != "10" {
		t.Errorf("X-RateLimit-Limit = %q, want 10", got)
	}
	if got := resp.Header.Get("X-RateLimit-Remaining"); got != "9" {
		t.Errorf("X-RateLimit-Remaining = %q, want 9", got)
	}
	if got := resp.Header.Get("X-RateLimit-Reset"); got == "" {
		t.Error("X-RateLimit-Reset missing")
	}
}

func TestMiddleware_Returns429WithPayload(t *testing.T) {
	app := newTestApp(t, []ratelimit.Rule{
		{
			Name:   "login",
			Path:   "/auth/login",
			Method: "POST",
			Config: ratelimit.Config{Window: 15 * time.Minute, MaxRequests: 2, KeyPrefix: "rl:login"},
		},
	}, nil)

	for i := 0; i < 2; i++ {
		resp, err := app.Test(httptest.NewRequest("POST", "/auth/login", nil))
		if err != nil {
			t.Fatalf("app.Test() error = %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != fiber.StatusOK {
			t.Fatalf("attempt %d: status = %d, want 200", i+1, resp.StatusCode)
		}
	}

	resp, err := app.Test(httptest.NewRequest("POST", "/auth/login", nil))
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != fiber.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", resp.StatusCode)
	}
	if got := resp.Header.Get("Retry-After"); got == "" || got == "0" {
		t.Errorf("Retry-After = %q, want at least 1", got)
	}

	var body struct {
		Error      string `json:"error"`
		Message    string `json:"message"`
		Rule       string `json:"rule"`
		RetryAfter int    `json:"retry_after"`
		Limit      int    `json:"limit"`
		Remaining  int    `json:"remaining"`
		ResetTime  string `json:"reset_time"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding 429 body: %v", err)
	}
	if body.Rule != "login" {
		t.Errorf("rule = %q, want login", body.Rule)
	}
	if body.Limit != 2 {
		t.Errorf("limit = %d, want 2", body.Limit)
	}
	if body.Remaining != 0 {
		t.Errorf("remaining = %d, want 0", body.Remaining)
	}
	if body.RetryAfter < 1 {
		t.Errorf("retry_after = %d, want >= 1", body.RetryAfter)
	}
	if body.Error == "" || body.Message == "" || body.ResetTime == "" {
		t.Errorf("incomplete payload: %+v", body)
	}
}

func TestMiddleware_SkipRoute(t *testing.T) {
	routes := NewRouteTable()
	routes.SetSkip("GET", "/health")

	app := newTestApp(t, []ratelimit.Rule{
		{
			Name:   "tight",
			Config: ratelimit.Config{Window: time.Minute, MaxRequests: 1, KeyPrefix: "rl:tight"},
		},
	}, routes)

	for i := 0; i < 5; i++ {
		resp, err := app.Test(httptest.NewRequest("GET", "/health", nil))
		if err != nil {
			t.Fatalf("app.Test() error = %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != fiber.StatusOK {
			t.Fatalf("skipped route attempt %d: status = %d, want 200", i+1, resp.StatusCode)
		}
		if got := resp.Header.Get("X-RateLimit-Rule"); got != "" {
			t.Errorf("skipped route should carry no rate limit headers, got rule %q", got)
		}
	}
}

func TestMiddleware_RouteOverride(t *testing.T) {
	routes := NewRouteTable()
	routes.SetOverride("GET", "/api/v1/data", ratelimit.Config{
		Window:      time.Minute,
		MaxRequests: 2,
		KeyPrefix:   "rl:data",
	})

	app := newTestApp(t, []ratelimit.Rule{
		{
			Name:   "generous",
			Config: ratelimit.Config{Window: time.Minute, MaxRequests: 1000, KeyPrefix: "rl:generous"},
		},
	}, routes)

	for i := 0; i < 2; i++ {
		resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/data", nil))
		if err != nil {
			t.Fatalf("app.Test() error = %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != fiber.StatusOK {
			t.Fatalf("attempt %d under override: status = %d, want 200", i+1, resp.StatusCode)
		}
		if got := resp.Header.Get("X-RateLimit-Rule"); got != overrideRuleName {
			t.Errorf("X-RateLimit-Rule = %q, want %q", got, overrideRuleName)
		}
	}

	resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/data", nil))
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != fiber.StatusTooManyRequests {
		t.Errorf("3rd request: status = %d, want 429 despite the catalog's 1000", resp.StatusCode)
	}
}

func TestMiddleware_NoMatchingRulePassesThrough(t *testing.T) {
	app := newTestApp(t, []ratelimit.Rule{
		{
			Name:   "login-only",
			Path:   "/auth/login",
			Config: ratelimit.Config{Window: time.Minute, MaxRequests: 1, KeyPrefix: "rl:login"},
		},
	}, nil)

	for i := 0; i < 3; i++ {
		resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/data", nil))
		if err != nil {
			t.Fatalf("app.Test() error = %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != fiber.StatusOK {
			t.Fatalf("unmatched route attempt %d: status = %d, want 200", i+1, resp.StatusCode)
		}
		if got := resp.Header.Get("X-RateLimit-Rule"); got != "" {
			t.Errorf("unmatched route should carry no rate limit headers, got rule %q", got)
		}
	}
}

func TestMiddleware_SeparatesUsersByKey(t *testing.T) {
	app := newTestApp(t, []ratelimit.Rule{
		{
			Name:     "per-user",
			UserType: ratelimit.UserTypeAuthenticated,
			Config:   ratelimit.Config{Window: time.Minute, MaxRequests: 1, KeyPrefix: "rl:user"},
		},
	}, nil)

	get := func(userID string) int {
		req := httptest.NewRequest("GET", "/api/v1/data", nil)
		req.Header.Set("X-User-ID", userID)
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("app.Test() error = %v", err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}

	if got := get("alice"); got != fiber.StatusOK {
		t.Fatalf("alice first request: status = %d, want 200", got)
	}
	if got := get("alice"); got != fiber.StatusTooManyRequests {
		t.Errorf("alice second request: status = %d, want 429", got)
	}
	if got := get("bob"); got != fiber.StatusOK {
		t.Errorf("bob first request: status = %d, want 200 (distinct counter)", got)
	}
}
