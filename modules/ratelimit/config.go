package ratelimit

import (
	"log/slog"
	"time"

	"github.com/example/multitenant-api/domain/ratelimit"
)

// Config holds the engine module's configuration.
type Config struct {
	// RedisAddr is the Redis server address (e.g. "localhost:6379").
	RedisAddr string

	// RedisPassword is the Redis authentication password (optional).
	RedisPassword string

	// RedisDB is the Redis database number (default: 0).
	RedisDB int

	// KeyPrefix namespaces every counter the engine creates. Rules
	// without their own KeyPrefix are namespaced under
	// "{KeyPrefix}:{rule name}".
	KeyPrefix string

	// Rules is the static rule catalog, in declaration order.
	Rules []ratelimit.Rule

	// Routes is the per-route override/skip table.
	Routes *RouteTable

	// SweepInterval is how often the cleanup sweep runs.
	SweepInterval time.Duration

	// SweepRetention is the horizon beyond which sweep prunes entries.
	SweepRetention time.Duration

	// Store overrides the Redis-backed counter store, e.g. with the
	// in-memory store for tests or single-instance deployments.
	Store ratelimit.CounterStore

	// Logger receives the engine's structured logs.
	Logger *slog.Logger
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		RedisAddr:      "localhost:6379",
		KeyPrefix:      "rl",
		Routes:         NewRouteTable(),
		SweepInterval:  time.Hour,
		SweepRetention: 24 * time.Hour,
	}
}

// Option is a function that modifies Config.
type Option func(*Config)

// WithRedisAddr sets the Redis server address.
func WithRedisAddr(addr string) Option {
	return func(c *Config) {
		c.RedisAddr = addr
	}
}

// WithRedisPassword sets the Redis authentication password.
func WithRedisPassword(password string) Option {
	return func(c *Config) {
		c.RedisPassword = password
	}
}

// WithRedisDB sets the Redis database number.
func WithRedisDB(db int) Option {
	return func(c *Config) {
		c.RedisDB = db
	}
}

// WithKeyPrefix sets the counter key namespace.
func WithKeyPrefix(prefix string) Option {
	return func(c *Config) {
		c.KeyPrefix = prefix
	}
}

// WithRule appends a rule to the catalog. Declaration order is the
// aggregation order; declare the strictest rule first when stacking.
func WithRule(rule ratelimit.Rule) Option {
	return func(c *Config) {
		c.Rules = append(c.Rules, rule)
	}
}

// WithRouteOverride installs a route-level config that fully replaces
// the catalog for that route.
func WithRouteOverride(method, path string, cfg ratelimit.Config) Option {
	return func(c *Config) {
		c.Routes.SetOverride(method, path, cfg)
	}
}

// WithSkipRoute exempts a route from rate limiting.
func WithSkipRoute(method, path string) Option {
	return func(c *Config) {
		c.Routes.SetSkip(method, path)
	}
}

// WithSweep sets the cleanup sweep cadence and retention horizon.
func WithSweep(interval, retention time.Duration) Option {
	return func(c *Config) {
		c.SweepInterval = interval
		c.SweepRetention = retention
	}
}

// WithStore injects a counter store, bypassing the Redis connection.
func WithStore(store ratelimit.CounterStore) Option {
	return func(c *Config) {
		c.Store = store
	}
}

// WithLogger sets the engine's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}
