// Multi-Tenant API - an API server with a distributed rate-limiting engine.
//
// The engine decides, per inbound request, whether to admit or reject it
// based on shared sliding-window counters in Redis:
// - a static rule catalog with per-IP, per-user and per-tenant scopes
// - route-level override and skip configuration built at startup
// - fail-open admission when the counter store is degraded
// - administrative reset/status/keys/stats endpoints and a cleanup sweep
package main

import (
	"context"
	"log"
	"os"
	"strconv"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/go-monolith/mono"

	ratelimitdom "github.com/example/multitenant-api/domain/ratelimit"
	"github.com/example/multitenant-api/modules/api"
	"github.com/example/multitenant-api/modules/ratelimit"
)

const shutdownTimeout = 30 * time.Second

func main() {
	log.Println("=== Multi-Tenant API ===")

	// Configuration from environment variables with defaults
	redisAddr := getEnv("REDIS_ADDR", "localhost:6379")
	redisPassword := getEnv("REDIS_PASSWORD", "")
	httpPort := getEnvInt("HTTP_PORT", 8080)
	keyPrefix := getEnv("RATELIMIT_KEY_PREFIX", "rl")
	sweepInterval := getEnvDuration("RATELIMIT_SWEEP_INTERVAL", time.Hour)

	log.Printf("Configuration:")
	log.Printf("  Redis Address: %s", redisAddr)
	log.Printf("  HTTP Port: %d", httpPort)
	log.Printf("  Key Prefix: %s", keyPrefix)

	// Create mono application
	app, err := mono.NewMonoApplication(
		mono.WithShutdownTimeout(shutdownTimeout),
		mono.WithLogLevel(mono.LogLevelInfo),
		mono.WithLogFormat(mono.LogFormatText),
	)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}

	// The rule catalog, in declaration order. Aggregation is
	// first-violation-wins, so stricter rules come first.
	rateLimitModule := ratelimit.NewModule(
		ratelimit.WithRedisAddr(redisAddr),
		ratelimit.WithRedisPassword(redisPassword),
		ratelimit.WithKeyPrefix(keyPrefix),
		// Credential endpoint: 5 attempts per IP per 15 minutes.
		ratelimit.WithRule(ratelimitdom.Rule{
			Name:   "auth-login",
			Path:   "/auth/login",
			Method: "POST",
			Config: ratelimitdom.Config{
				Window:      15 * time.Minute,
				MaxRequests: 5,
			},
		}),
		// Bulk operations: 10 per authenticated user per hour.
		ratelimit.WithRule(ratelimitdom.Rule{
			Name:     "bulk-ops",
			Path:     "/bulk/*",
			UserType: ratelimitdom.UserTypeAuthenticated,
			Config: ratelimitdom.Config{
				Window:      time.Hour,
				MaxRequests: 10,
			},
		}),
		// Premium users get generous headroom.
		ratelimit.WithRule(ratelimitdom.Rule{
			Name:     "premium-users",
			UserType: ratelimitdom.UserTypePremium,
			Config: ratelimitdom.Config{
				Window:      time.Minute,
				MaxRequests: 1000,
			},
		}),
		// Free-plan tenants share a tighter tenant-wide budget.
		ratelimit.WithRule(ratelimitdom.Rule{
			Name:       "free-tenants",
			TenantType: ratelimitdom.TenantTypeFree,
			Config: ratelimitdom.Config{
				Window:      time.Minute,
				MaxRequests: 100,
			},
		}),
		// Global per-IP safety net.
		ratelimit.WithRule(ratelimitdom.Rule{
			Name: "global-ip",
			Config: ratelimitdom.Config{
				Window:      15 * time.Minute,
				MaxRequests: 1000,
			},
		}),
		// Route-level configuration, assembled once at startup.
		ratelimit.WithSkipRoute("GET", "/health"),
		ratelimit.WithSkipRoute("POST", "/admin/ratelimit/reset"),
		ratelimit.WithSkipRoute("GET", "/admin/ratelimit/status"),
		ratelimit.WithSkipRoute("GET", "/admin/ratelimit/keys"),
		ratelimit.WithSkipRoute("GET", "/admin/ratelimit/stats"),
		ratelimit.WithSkipRoute("POST", "/admin/ratelimit/sweep"),
		ratelimit.WithSweep(sweepInterval, 24*time.Hour),
	)

	apiModule := api.NewModule(httpPort)
	apiModule.SetRateLimitModule(rateLimitModule)

	// Register modules (order matters: rate limit module first)
	app.Register(rateLimitModule)
	app.Register(apiModule)

	// Start application
	if err := app.Start(context.Background()); err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}

	log.Println("=== Application Started ===")
	log.Printf("API available at http://localhost:%d", httpPort)
	log.Println("Endpoints:")
	log.Println("  GET  /health                  - Health check (not limited)")
	log.Println("  GET  /api/v1/data             - Sample endpoint")
	log.Println("  POST /auth/login              - Tightly limited per IP")
	log.Println("  POST /bulk/import             - Limited per user")
	log.Println("  POST /admin/ratelimit/reset   - Reset a counter")
	log.Println("  GET  /admin/ratelimit/status  - Inspect a counter")
	log.Println("  GET  /admin/ratelimit/keys    - List active counters")
	log.Println("  GET  /admin/ratelimit/stats   - Keyspace statistics")
	log.Println("")
	log.Println("Press Ctrl+C to shutdown")

	// Setup graceful shutdown using gelmium/graceful-shutdown
	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		shutdownTimeout,
		map[string]gfshutdown.Operation{
			"mono-app": func(ctx context.Context) error {
				log.Println("Graceful shutdown initiated...")
				return app.Stop(ctx)
			},
		},
	)

	exitCode := <-wait
	log.Printf("Application exited with code: %d", exitCode)
	os.Exit(exitCode)
}

// getEnv returns environment variable value or default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns environment variable as int or default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
		log.Printf("Warning: invalid int value for %s: %s, using default: %d", key, value, defaultValue)
	}
	return defaultValue
}

// getEnvDuration returns environment variable as duration or default.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
		log.Printf("Warning: invalid duration value for %s: %s, using default: %s", key, value, defaultValue)
	}
	return defaultValue
}
