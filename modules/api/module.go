// Package api provides the HTTP surface of the multi-tenant API: the
// fiber application, its ordered middleware chain, and the sample and
// administrative endpoints.
package api

import (
	"context"
	"fmt"
	"log"

	"github.com/go-monolith/mono"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"

	ratelimitmod "github.com/example/multitenant-api/modules/ratelimit"
)

// Module provides the HTTP API.
type Module struct {
	app             *fiber.App
	handlers        *Handlers
	rateLimitModule *ratelimitmod.Module
	port            int
}

// NewModule creates a new API module.
func NewModule(port int) *Module {
	return &Module{port: port}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "api"
}

// SetRateLimitModule sets the rate limiting module dependency.
func (m *Module) SetRateLimitModule(rlm *ratelimitmod.Module) {
	m.rateLimitModule = rlm
}

// Init builds the Fiber app and assembles the middleware chain. The
// chain order is fixed here, once, at startup: recover, request id,
// request logging, identity resolution, then the rate-limit stage.
func (m *Module) Init(_ mono.ServiceContainer) error {
	m.handlers = NewHandlers(m.rateLimitModule)

	m.app = fiber.New(fiber.Config{
		AppName:               "Multi-Tenant API",
		DisableStartupMessage: true,
		ErrorHandler:          m.errorHandler,
	})

	m.app.Use(recover.New())
	m.app.Use(requestid.New(requestid.Config{
		Generator: uuid.NewString,
	}))
	m.app.Use(logger.New(logger.Config{
		Format: "[${time}] ${locals:requestid} ${status} - ${latency} ${method} ${path}\n",
	}))
	m.app.Use(IdentityMiddleware())
	if m.rateLimitModule != nil {
		m.app.Use(m.rateLimitModule.Middleware().Handler())
	}

	m.setupRoutes()

	return nil
}

// setupRoutes configures all HTTP routes.
func (m *Module) setupRoutes() {
	m.app.Get("/health", m.handlers.Health)

	api := m.app.Group("/api/v1")
	api.Get("/data", m.handlers.GetData)

	m.app.Post("/auth/login", m.handlers.Login)
	m.app.Post("/bulk/import", m.handlers.BulkImport)

	admin := m.app.Group("/admin/ratelimit")
	admin.Post("/reset", m.handlers.AdminReset)
	admin.Get("/status", m.handlers.AdminStatus)
	admin.Get("/keys", m.handlers.AdminKeys)
	admin.Get("/stats", m.handlers.AdminStats)
	admin.Post("/sweep", m.handlers.AdminSweep)
}

// Start starts the HTTP server.
func (m *Module) Start(_ context.Context) error {
	go func() {
		addr := fmt.Sprintf(":%d", m.port)
		log.Printf("[api] Starting HTTP server on %s", addr)
		if err := m.app.Listen(addr); err != nil {
			log.Printf("[api] HTTP server error: %v", err)
		}
	}()
	return nil
}

// Stop stops the HTTP server gracefully.
func (m *Module) Stop(_ context.Context) error {
	if m.app != nil {
		log.Println("[api] Shutting down HTTP server...")
		return m.app.Shutdown()
	}
	return nil
}

// errorHandler handles errors that propagate out of routes, including
// internal engine errors the rate-limit stage does not mask.
func (m *Module) errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error":  message,
		"code":   code,
		"path":   c.Path(),
		"method": c.Method(),
	})
}

// GetApp returns the Fiber app (for testing).
func (m *Module) GetApp() *fiber.App {
	return m.app
}
