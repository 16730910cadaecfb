package web

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/spear-it/spearhead/internal/adapters/web/middleware"
	"github.com/spear-it/spearhead/internal/core/domain"
)

func SetupRoutes(s *Server) http.Handler {
	r := mux.NewRouter()

	// Rate limiter for credential guessing
	loginLimiter := middleware.NewRateLimiter(5, 1*time.Minute)

	// Public API
	r.Handle("/api/login", middleware.RateLimitMiddleware(loginLimiter)(http.HandlerFunc(s.handleLogin))).Methods(http.MethodPost)
	r.HandleFunc("/api/logout", s.handleLogout).Methods(http.MethodPost)

	// Protected API
	auth := middleware.AuthMiddleware(s.AuthService)
	protect := func(h http.HandlerFunc) http.Handler {
		return auth(h)
	}

	// RBAC Middleware Helpers
	requireOperator := middleware.RoleMiddleware(domain.RoleOperator)
	protectOp := func(h http.HandlerFunc) http.Handler {
		return auth(requireOperator(h))
	}
	requireAdmin := middleware.RoleMiddleware(domain.RoleAdmin)
	protectAdmin := func(h http.HandlerFunc) http.Handler {
		return auth(requireAdmin(h))
	}

	r.Handle("/api/me", protect(s.handleMe)).Methods(http.MethodGet)
	r.Handle("/api/users", protectAdmin(s.handleCreateUser)).Methods(http.MethodPost)

	// WebSocket event stream
	r.Handle("/ws", protect(s.WSManager.HandleWebSocket))

	// Devices
	r.Handle("/api/devices", protect(s.handleListDevices)).Methods(http.MethodGet)
	r.Handle("/api/devices/{id}", protect(s.handleGetDevice)).Methods(http.MethodGet)
	r.Handle("/api/devices/{id}/heartbeats", protect(s.handleDeviceHeartbeats)).Methods(http.MethodGet)

	// Events
	r.Handle("/api/events", protect(s.handleListEvents)).Methods(http.MethodGet)

	// Campaigns
	r.Handle("/api/campaigns", protect(s.handleListCampaigns)).Methods(http.MethodGet)
	r.Handle("/api/campaigns/{id}", protect(s.handleGetCampaign)).Methods(http.MethodGet)
	r.Handle("/api/campaigns/{id}", protectOp(s.handleUpdateCampaign)).Methods(http.MethodPatch)
	r.Handle("/api/campaigns/{id}/events/{event_id}", protectOp(s.handleAssignEvent)).Methods(http.MethodPut)
	r.Handle("/api/campaigns/{id}/report", protectOp(s.handleCampaignReport)).Methods(http.MethodGet)

	// Rules
	r.Handle("/api/rules", protect(s.handleListRules)).Methods(http.MethodGet)
	r.Handle("/api/rules", protectOp(s.handleSaveRule)).Methods(http.MethodPost)

	// Metrics endpoint (protected - requires authentication)
	r.Handle("/metrics", protect(func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	}))

	return r
}
