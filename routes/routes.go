package routes

import (
	"net/http"

	"github.com/julienschmidt/httprouter"

	"vigila/auth"
	"vigila/booking"
	"vigila/feed"
	"vigila/guard"
	"vigila/models"
	"vigila/ratelim"
	"vigila/resource"
	"vigila/sales"
	"vigila/session"
	"vigila/utils"
	"vigila/workspace"
)

// Deps are the handlers and services the routes are built from.
type Deps struct {
	Guard    *guard.Guard
	Accessor guard.Accessor
	Spaces   *workspace.Registry
	Auth     *auth.Handler
	Bookings *booking.Handler
	Services *resource.Handler[models.Service]
	Sales    *sales.Handler
	Guests   *resource.Handler[models.Guest]
	Control  *resource.Control
	Hub      *feed.Hub
	Metrics  http.Handler
}

func AddAuthRoutes(router *httprouter.Router, d Deps, rateLimiter *ratelim.RateLimiter) {
	router.POST("/api/auth/register", rateLimiter.Limit(d.Auth.Register))
	router.POST("/api/auth/login", rateLimiter.Limit(d.Auth.Login))
	router.POST("/api/auth/logout", d.Auth.Logout)
	router.POST("/api/auth/token/refresh", rateLimiter.Limit(d.Auth.Refresh))
}

func AddHomeRoutes(router *httprouter.Router, d Deps) {
	router.GET("/", d.Guard.Protect(guard.RouteHome, Home(d.Accessor)))
	router.GET("/login", d.Guard.Protect(guard.RouteLogin, LoginInfo(d.Accessor)))
	router.GET("/profile", d.Guard.Protect(guard.RouteProfile, d.Auth.Me))
	router.GET("/admin", d.Guard.Protect(guard.RouteAdmin, AdminOverview(d.Spaces, d.Hub)))
	router.GET("/api/nav", Navigate(d.Guard))
}

func AddBookingRoutes(router *httprouter.Router, d Deps, rateLimiter *ratelim.RateLimiter) {
	g, h := d.Guard, d.Bookings
	router.GET("/bookings", g.Protect(guard.RouteBookings, h.List))
	router.POST("/bookings", g.Protect(guard.RouteBookings, rateLimiter.Limit(h.Create)))
	router.GET("/bookings/:id", g.Protect(guard.RouteBookingDetail, h.Detail))
	router.DELETE("/bookings/:id", g.Protect(guard.RouteBookingDetail, h.Delete))
	router.POST("/bookings/:id/cancel", g.Protect(guard.RouteBookingDetail, h.Cancel))
	router.POST("/bookings/:id/confirm", g.Protect(guard.RouteBookingDetail, h.Confirm))
	router.GET("/bookings/:id/voucher", g.Protect(guard.RouteBookingVoucher, h.Voucher))
	router.POST("/bookings/:id/voucher", g.Protect(guard.RouteBookingVoucher, h.Redeem))
}

func AddServiceRoutes(router *httprouter.Router, d Deps) {
	g, h := d.Guard, d.Services
	router.GET("/services", g.Protect(guard.RouteServices, h.List))
	router.POST("/services", g.Protect(guard.RouteServices, h.Create))
	router.GET("/services/:id", g.Protect(guard.RouteServiceDetail, h.Detail))
	router.DELETE("/services/:id", g.Protect(guard.RouteServiceDetail, h.Delete))
}

func AddSaleRoutes(router *httprouter.Router, d Deps) {
	g, h := d.Guard, d.Sales
	router.GET("/sales", g.Protect(guard.RouteSales, h.List))
	router.GET("/sales/:id", g.Protect(guard.RouteSaleDetail, h.Detail))
	router.GET("/sales/:id/receipt", g.Protect(guard.RouteSaleReceipt, h.Receipt))
}

func AddGuestRoutes(router *httprouter.Router, d Deps) {
	g, h := d.Guard, d.Guests
	router.GET("/guests", g.Protect(guard.RouteGuests, h.List))
	router.POST("/guests", g.Protect(guard.RouteGuests, h.Create))
	router.GET("/guests/:id", g.Protect(guard.RouteGuestDetail, h.Detail))
	router.DELETE("/guests/:id", g.Protect(guard.RouteGuestDetail, h.Delete))
}

func AddCacheRoutes(router *httprouter.Router, d Deps) {
	router.GET("/cache/:domain", d.Guard.Protect(guard.RouteCache, d.Control.Status))
	router.POST("/cache/:domain", d.Guard.Protect(guard.RouteCache, d.Control.Invalidate))
}

func AddFeedRoutes(router *httprouter.Router, d Deps) {
	router.GET("/feed", d.Guard.Protect(guard.RouteFeed, d.Hub.Serve))
}

func AddUtilityRoutes(router *httprouter.Router, d Deps) {
	router.GET("/health", Health)
	if d.Metrics != nil {
		router.Handler(http.MethodGet, "/metrics", d.Metrics)
	}
}

// Health is a simple health check handler.
func Health(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	utils.RespondWithJSON(w, http.StatusOK, utils.M{"status": "ok"})
}

// Home handles GET /
func Home(acc guard.Accessor) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		body := utils.M{"name": "vigila", "authenticated": false}
		if s := caller(acc, r); s != nil {
			body["authenticated"] = true
			body["role"] = s.Role
		}
		utils.RespondWithJSON(w, http.StatusOK, body)
	}
}

// LoginInfo handles GET /login, the page denied navigations land on.
func LoginInfo(acc guard.Accessor) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		body := utils.M{
			"login":         "/api/auth/login",
			"next":          r.URL.Query().Get("next"),
			"authenticated": false,
		}
		if s := caller(acc, r); s != nil {
			body["authenticated"] = true
			body["username"] = s.Username
		}
		utils.RespondWithJSON(w, http.StatusOK, body)
	}
}

// caller resolves the session of a public route, which the guard admits
// without looking it up.
func caller(acc guard.Accessor, r *http.Request) *session.Session {
	if s := session.FromContext(r.Context()); s != nil {
		return s
	}
	if acc == nil {
		return nil
	}
	return acc.Current(r.Context())
}

type navResult struct {
	Path     string `json:"path"`
	Route    string `json:"route"`
	Decision string `json:"decision"`
	Redirect string `json:"redirect,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// Navigate handles GET /api/nav?path=/sales. It answers whether the caller
// may open path without opening it.
func Navigate(g *guard.Guard) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		path := r.URL.Query().Get("path")
		if path == "" {
			utils.RespondWithError(w, http.StatusBadRequest, "path is required")
			return
		}
		out := g.DecidePath(r.Context(), path, session.FromContext(r.Context()))
		utils.RespondWithJSON(w, http.StatusOK, navResult{
			Path:     path,
			Route:    out.Route.String(),
			Decision: out.Decision.String(),
			Redirect: out.Redirect,
			Reason:   out.Reason,
		})
	}
}

// AdminOverview handles GET /admin
func AdminOverview(spaces *workspace.Registry, hub *feed.Hub) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		byRole := map[session.Role]int{}
		var subscribers int
		spaces.Each(func(ws *workspace.Workspace) {
			byRole[ws.Role]++
			if hub != nil {
				subscribers += hub.Subscribers(ws.SessionID)
			}
		})
		utils.RespondWithJSON(w, http.StatusOK, utils.M{
			"workspaces":  spaces.Len(),
			"byRole":      byRole,
			"subscribers": subscribers,
		})
	}
}
