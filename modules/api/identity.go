package api

import (
	"github.com/gofiber/fiber/v2"

	ratelimitdom "github.com/example/multitenant-api/domain/ratelimit"
	ratelimitmod "github.com/example/multitenant-api/modules/ratelimit"
)

// Identity resolution is external to the rate-limiting engine. This
// middleware stands in for the real resolver by trusting the identity
// headers an upstream gateway would set, and publishes the resolved
// context in locals for the stages behind it.
const (
	headerUserID     = "X-User-ID"
	headerTenantID   = "X-Tenant-ID"
	headerUserTier   = "X-User-Tier"
	headerTenantPlan = "X-Tenant-Plan"
)

// IdentityMiddleware resolves the caller's user and tenant context and
// stores it in request locals.
func IdentityMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Get(headerUserID)
		c.Locals(ratelimitmod.LocalUserID, userID)
		c.Locals(ratelimitmod.LocalTenantID, c.Get(headerTenantID))
		c.Locals(ratelimitmod.LocalUserType, resolveUserType(userID, c.Get(headerUserTier)))
		c.Locals(ratelimitmod.LocalTenantType, resolveTenantType(c.Get(headerTenantPlan)))
		return c.Next()
	}
}

func resolveUserType(userID, tier string) ratelimitdom.UserType {
	if userID == "" {
		return ratelimitdom.UserTypeAnonymous
	}
	if tier == "premium" {
		return ratelimitdom.UserTypePremium
	}
	return ratelimitdom.UserTypeAuthenticated
}

func resolveTenantType(plan string) ratelimitdom.TenantType {
	switch plan {
	case "paid":
		return ratelimitdom.TenantTypePaid
	case "enterprise":
		return ratelimitdom.TenantTypeEnterprise
	case "free":
		return ratelimitdom.TenantTypeFree
	default:
		return ""
	}
}
