package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-monolith/mono"
	"github.com/redis/go-redis/v9"

	ratelimitdom "github.com/example/multitenant-api/domain/ratelimit"
)

// Module wires the rate-limiting engine into the application as a mono
// module: it owns the store connection, the catalog, the coordinator,
// the middleware stage, the admin surface, and the cleanup sweeper.
type Module struct {
	config      Config
	client      *redis.Client
	store       ratelimitdom.CounterStore
	limiter     *SlidingWindowLimiter
	catalog     *ratelimitdom.Catalog
	coordinator *Coordinator
	middleware  *Middleware
	admin       *Admin
	sweeper     *Sweeper
	logger      *slog.Logger
}

// NewModule creates the engine module.
func NewModule(opts ...Option) *Module {
	config := DefaultConfig()
	for _, opt := range opts {
		opt(&config)
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Module{config: config, logger: logger}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "rate-limiter"
}

// Init connects to the counter store and builds the engine. Malformed
// rule configuration fails startup rather than being masked.
func (m *Module) Init(_ mono.ServiceContainer) error {
	m.store = m.config.Store
	if m.store == nil {
		m.client = redis.NewClient(&redis.Options{
			Addr:         m.config.RedisAddr,
			Password:     m.config.RedisPassword,
			DB:           m.config.RedisDB,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		})

		if err := m.client.Ping(context.Background()).Err(); err != nil {
			return fmt.Errorf("failed to connect to Redis at %s: %w", m.config.RedisAddr, err)
		}
		m.store = NewRedisCounterStore(m.client)
		m.logger.Info("rate limiter connected to Redis", "addr", m.config.RedisAddr)
	}

	catalog, err := ratelimitdom.NewCatalog(m.namespacedRules())
	if err != nil {
		return fmt.Errorf("invalid rate limit catalog: %w", err)
	}
	m.catalog = catalog

	m.limiter = NewSlidingWindowLimiter(m.store, m.logger)
	m.coordinator = NewCoordinator(m.catalog, m.limiter, m.logger)
	m.middleware = NewMiddleware(m.coordinator, m.namespacedRoutes())

	pattern := m.config.KeyPrefix + ":*"
	m.admin = NewAdmin(m.store, m.limiter, pattern, m.logger)
	m.sweeper = NewSweeper(m.store, pattern, m.config.SweepInterval, m.config.SweepRetention, m.logger)

	return nil
}

// Start launches the cleanup sweeper.
func (m *Module) Start(ctx context.Context) error {
	m.sweeper.Start(ctx)
	m.logger.Info("rate limiter started",
		"rules", len(m.config.Rules),
		"sweep_interval", m.config.SweepInterval)
	return nil
}

// Stop ends the sweeper and closes the store connection.
func (m *Module) Stop(_ context.Context) error {
	if m.sweeper != nil {
		m.sweeper.Stop()
	}
	if m.store != nil {
		if err := m.store.Close(); err != nil {
			m.logger.Error("failed to close counter store", "error", err)
			return err
		}
	}
	m.logger.Info("rate limiter stopped")
	return nil
}

// Middleware returns the rate-limiting middleware stage.
func (m *Module) Middleware() *Middleware {
	return m.middleware
}

// Admin returns the administrative operations surface.
func (m *Module) Admin() *Admin {
	return m.admin
}

// Catalog returns the compiled rule catalog.
func (m *Module) Catalog() *ratelimitdom.Catalog {
	return m.catalog
}

// Sweeper returns the cleanup sweeper, mainly for triggering manual
// passes from admin tooling.
func (m *Module) Sweeper() *Sweeper {
	return m.sweeper
}

// HealthCheck verifies the store connection is healthy.
func (m *Module) HealthCheck(ctx context.Context) error {
	if m.client != nil {
		return m.client.Ping(ctx).Err()
	}
	if m.store == nil {
		return fmt.Errorf("counter store not initialized")
	}
	return nil
}

// namespacedRules fills in each rule's key prefix so counters group by
// rule under the engine's namespace.
func (m *Module) namespacedRules() []ratelimitdom.Rule {
	rules := make([]ratelimitdom.Rule, len(m.config.Rules))
	for i, r := range m.config.Rules {
		if r.KeyPrefix == "" {
			r.KeyPrefix = m.config.KeyPrefix + ":" + r.Name
		}
		rules[i] = r
	}
	return rules
}

// namespacedRoutes fills in override key prefixes the same way.
func (m *Module) namespacedRoutes() *RouteTable {
	routes := m.config.Routes
	if routes == nil {
		return NewRouteTable()
	}
	for key, rr := range routes.entries {
		if rr.Override != nil && rr.Override.KeyPrefix == "" {
			rr.Override.KeyPrefix = m.config.KeyPrefix + ":" + overrideRuleName
			routes.entries[key] = rr
		}
	}
	return routes
}
