package routes

import (
	"github.com/julienschmidt/httprouter"

	"vigila/ratelim"
)

func RoutesWrapper(router *httprouter.Router, d Deps, rateLimiter *ratelim.RateLimiter) {
	AddAuthRoutes(router, d, rateLimiter)
	AddHomeRoutes(router, d)
	AddBookingRoutes(router, d, rateLimiter)
	AddServiceRoutes(router, d)
	AddSaleRoutes(router, d)
	AddGuestRoutes(router, d)
	AddCacheRoutes(router, d)
	AddFeedRoutes(router, d)
	AddUtilityRoutes(router, d)
}
