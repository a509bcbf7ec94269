package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/SandboxServers/MeridianConsole-sub003/pkg/exchange"
	"github.com/SandboxServers/MeridianConsole-sub003/pkg/httputil"
	"github.com/SandboxServers/MeridianConsole-sub003/pkg/observability"
	"github.com/SandboxServers/MeridianConsole-sub003/pkg/roles"
	"github.com/SandboxServers/MeridianConsole-sub003/pkg/sessions"
	"github.com/SandboxServers/MeridianConsole-sub003/pkg/tokens"
)

// Server is the identity service HTTP API
type Server struct {
	router      *mux.Router
	coordinator *exchange.Coordinator
	lifecycle   *sessions.Lifecycle
	switcher    *sessions.OrganizationSwitcher
	rolesSvc    *roles.Service
	authMW      *BearerAuthMiddleware
	limiter     *RateLimiter
	logger      *observability.Logger
	metrics     *observability.Metrics
	otelMetrics *observability.OTelMetrics
}

// NewServer creates the API server and wires its routes. limiter may be nil,
// in which case the credential endpoints are not rate limited.
func NewServer(coordinator *exchange.Coordinator, lifecycle *sessions.Lifecycle, switcher *sessions.OrganizationSwitcher, rolesSvc *roles.Service, verifier *tokens.Verifier, limiter *RateLimiter, logger *observability.Logger, metrics *observability.Metrics) *Server {
	s := &Server{
		router:      mux.NewRouter(),
		coordinator: coordinator,
		lifecycle:   lifecycle,
		switcher:    switcher,
		rolesSvc:    rolesSvc,
		authMW:      NewBearerAuthMiddleware(verifier),
		limiter:     limiter,
		logger:      logger,
		metrics:     metrics,
	}
	s.setupRoutes()
	return s
}

// SetOTelMetrics attaches OpenTelemetry instruments. Optional; when unset
// only the Prometheus metrics are recorded.
func (s *Server) SetOTelMetrics(m *observability.OTelMetrics) {
	s.otelMetrics = m
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	s.router.Use(httputil.RecoveryMiddleware(s.logger))
	s.router.Use(httputil.MaxBytesMiddleware(httputil.MaxRequestBody))
	s.router.Use(RequestLoggingMiddleware(s.logger))
	if s.metrics != nil {
		s.router.Use(observability.HTTPMetricsMiddleware(s.metrics))
	}

	// Credential flows. Exchange and refresh carry their own proof; no
	// bearer token required. These are the attack-facing endpoints, so they
	// get the per-IP rate limit.
	public := s.router.PathPrefix("/v1/token").Subrouter()
	if s.limiter != nil {
		public.Use(s.limiter.Middleware())
	}
	public.HandleFunc("/exchange", s.exchangeToken).Methods("POST")
	public.HandleFunc("/refresh", s.refreshToken).Methods("POST")
	public.HandleFunc("/revoke", s.revokeToken).Methods("POST")

	// Everything below requires a valid access token.
	authed := s.router.NewRoute().Subrouter()
	authed.Use(s.authMW.Handler)

	authed.HandleFunc("/v1/organizations/switch", s.switchOrganization).Methods("POST")

	authed.HandleFunc("/v1/sessions", s.listSessions).Methods("GET")
	authed.HandleFunc("/v1/sessions/revoke_all", s.revokeAllSessions).Methods("POST")
	authed.HandleFunc("/v1/sessions/{id}", s.revokeSession).Methods("DELETE")

	authed.HandleFunc("/v1/organizations/{orgID}/roles", s.createRole).Methods("POST")
	authed.HandleFunc("/v1/organizations/{orgID}/roles/{name}", s.updateRole).Methods("PUT")
	authed.HandleFunc("/v1/organizations/{orgID}/roles/assign", s.assignRole).Methods("POST")
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
