// Package http wires the protocol services to their endpoints.
package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/agentauth/agentauth/internal/auth/service"
	"github.com/agentauth/agentauth/internal/auth/store"
	"github.com/agentauth/agentauth/pkg/httpx"
	"github.com/agentauth/agentauth/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	issuer       string
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger
	store        store.Store

	// AdminToken guards the admin endpoints. When empty they are not
	// registered at all.
	AdminToken string

	AuthorizeService *service.AuthorizeService
	AgentService     *service.AgentService
	TokenService     *service.TokenService
	AdminService     *service.AdminService
}

func NewRouter(issuer, buildVersion string, st store.Store, logger *slog.Logger) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		issuer:       issuer,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		logger:       logger,
		store:        st,
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

// ServeHTTP applies the global middleware chain in front of the mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) ApplyRoutes() {
	r.registerAuthorize()
	r.registerAgent()
	r.registerToken()
	r.registerDiscovery()
	r.registerAdmin()
	r.registerSystem()
}

func (r *Router) registerAuthorize() {
	h := &AuthorizeHandler{AuthorizeService: r.AuthorizeService}

	// GET /authorize renders the waiting page; cheap, lenient limit.
	r.Mux.Handle("GET /authorize",
		httpx.Chain(http.HandlerFunc(h.HandlePage),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)

	// The JSON view of the same session, preferred by the agent SDK.
	r.Mux.Handle("GET /api/authorize-session",
		httpx.Chain(http.HandlerFunc(h.HandleSession),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)

	// Poll target for the waiting page; the page polls at sub-second
	// intervals so the limit stays generous.
	r.Mux.Handle("GET /api/check-status",
		httpx.Chain(http.HandlerFunc(h.HandleCheckStatus),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)

	r.Mux.Handle("GET /error",
		httpx.Chain(http.HandlerFunc(h.HandleErrorPage),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
}

func (r *Router) registerAgent() {
	h := &AgentHandler{AgentService: r.AgentService}

	// Credential-bearing endpoints get the strict limit.
	r.Mux.Handle("POST /api/agent/authenticate",
		httpx.Chain(http.HandlerFunc(h.HandleAuthenticate),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
	r.Mux.Handle("POST /api/agent/verify-2fa",
		httpx.Chain(http.HandlerFunc(h.HandleVerifyTwoFactor),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
}

func (r *Router) registerToken() {
	tokenHandler := &TokenHandler{TokenService: r.TokenService}
	r.Mux.Handle("POST /token",
		httpx.Chain(tokenHandler,
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	introspectHandler := &IntrospectHandler{TokenService: r.TokenService}
	r.Mux.Handle("POST /introspect",
		httpx.Chain(introspectHandler,
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)

	revokeHandler := &RevokeHandler{TokenService: r.TokenService}
	r.Mux.Handle("POST /revoke",
		httpx.Chain(revokeHandler,
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
}

func (r *Router) registerDiscovery() {
	r.Mux.Handle("GET /.well-known/oauth-authorization-server", DiscoveryHandler(r.issuer))
	r.Mux.Handle("GET /.well-known/jwks.json", JWKSHandler())
}

func (r *Router) registerAdmin() {
	if r.AdminToken == "" {
		return
	}

	h := &AdminHandler{AdminService: r.AdminService}
	guard := requireAdminToken(r.AdminToken)

	r.Mux.Handle("POST /api/admin/agents", guard(http.HandlerFunc(h.HandleCreateAgent)))
	r.Mux.Handle("GET /api/admin/agents", guard(http.HandlerFunc(h.HandleListAgents)))
	r.Mux.Handle("POST /api/admin/agents/two-factor", guard(http.HandlerFunc(h.HandleSetTwoFactor)))
	r.Mux.Handle("POST /api/admin/clients", guard(http.HandlerFunc(h.HandleCreateClient)))
	r.Mux.Handle("GET /api/admin/clients", guard(http.HandlerFunc(h.HandleListClients)))
	r.Mux.Handle("POST /api/admin/clients/update", guard(http.HandlerFunc(h.HandleUpdateClient)))
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez", LivezHandler(r.buildVersion, r.startTime))
	r.Mux.Handle("GET /readyz", ReadyzHandler(r.store))
}
