package api

import (
	"time"

	"github.com/gofiber/fiber/v2"

	ratelimitdom "github.com/example/multitenant-api/domain/ratelimit"
	ratelimitmod "github.com/example/multitenant-api/modules/ratelimit"
)

// Handlers provides the HTTP handlers for the API endpoints.
type Handlers struct {
	rateLimitModule *ratelimitmod.Module
}

// NewHandlers creates a new handlers instance.
func NewHandlers(rlm *ratelimitmod.Module) *Handlers {
	return &Handlers{rateLimitModule: rlm}
}

// Health returns the health status of the service, including the
// counter store connection.
func (h *Handlers) Health(c *fiber.Ctx) error {
	status := "healthy"
	code := fiber.StatusOK

	if h.rateLimitModule != nil {
		if err := h.rateLimitModule.HealthCheck(c.Context()); err != nil {
			status = "degraded"
			code = fiber.StatusServiceUnavailable
		}
	}

	return c.Status(code).JSON(fiber.Map{
		"status":    status,
		"service":   "multitenant-api",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// GetData handles the general-purpose data endpoint.
func (h *Handlers) GetData(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"message":   "ok",
		"endpoint":  "/api/v1/data",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Login handles the credential endpoint. The tight path-specific rate
// limit on this route is what keeps credential stuffing in check; the
// actual authentication is out of scope here.
func (h *Handlers) Login(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"message":   "login accepted",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// BulkImport handles bulk ingestion requests.
func (h *Handlers) BulkImport(c *fiber.Ctx) error {
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"message":   "import queued",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// AdminReset deletes one counter so its next request starts a fresh
// window.
func (h *Handlers) AdminReset(c *fiber.Ctx) error {
	var body struct {
		Key string `json:"key"`
	}
	if err := c.BodyParser(&body); err != nil || body.Key == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "request body must carry a non-empty key",
		})
	}

	if err := h.rateLimitModule.Admin().Reset(c.Context(), body.Key); err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}

	return c.JSON(fiber.Map{"reset": body.Key})
}

// AdminStatus reports one counter's state under a named catalog rule's
// configuration, without recording a request.
func (h *Handlers) AdminStatus(c *fiber.Ctx) error {
	key := c.Query("key")
	ruleName := c.Query("rule")
	if key == "" || ruleName == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "key and rule query parameters are required",
		})
	}

	rule, ok := h.findRule(ruleName)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "unknown rule " + ruleName,
		})
	}

	status, err := h.rateLimitModule.Admin().Status(c.Context(), key, rule.Config)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}

	return c.JSON(status)
}

// AdminKeys enumerates active counter keys by pattern.
func (h *Handlers) AdminKeys(c *fiber.Ctx) error {
	keys, err := h.rateLimitModule.Admin().ListActiveKeys(c.Context(), c.Query("pattern"))
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}

	return c.JSON(fiber.Map{
		"keys":  keys,
		"count": len(keys),
	})
}

// AdminStats reports keyspace statistics for observability.
func (h *Handlers) AdminStats(c *fiber.Ctx) error {
	stats, err := h.rateLimitModule.Admin().Stats(c.Context())
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(stats)
}

// AdminSweep triggers one manual cleanup pass.
func (h *Handlers) AdminSweep(c *fiber.Ctx) error {
	h.rateLimitModule.Sweeper().Sweep(c.Context())
	return c.JSON(fiber.Map{"sweep": "done"})
}

func (h *Handlers) findRule(name string) (ratelimitdom.Rule, bool) {
	for _, rule := range h.rateLimitModule.Catalog().Rules() {
		if rule.Name == name {
			return rule, true
		}
	}
	return ratelimitdom.Rule{}, false
}
