package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/realmkit/internal/resource/store"
	"github.com/aussiebroadwan/realmkit/pkg/httpx"
	"github.com/aussiebroadwan/realmkit/pkg/realmx"
	"github.com/aussiebroadwan/realmkit/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	authenticator httpx.BearerAuthenticator
	resolver      *realmx.Resolver
	buildVersion  string
	startTime     time.Time
	logger        *slog.Logger

	store store.Store
}

func NewRouter(
	authenticator httpx.BearerAuthenticator,
	resolver *realmx.Resolver,
	buildVersion string,
	st store.Store,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:           http.NewServeMux(),
		authenticator: authenticator,
		resolver:      resolver,
		buildVersion:  buildVersion,
		startTime:     time.Now(),
		store:         st,
		logger:        logger,
	}

	// Set default middleware chain
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerIdentity()
	r.registerSystem()
}

// ServeHTTP implements http.Handler for Router and applies the global
// middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerIdentity() {
	whoami := &WhoamiHandler{Store: r.store}

	secured := httpx.Chain(whoami,
		httpx.AuthnMiddleware(r.authenticator),
		httpx.RequireAnyScope("openid", "profile"),
		httpx.RateLimitBySubject(httpx.LenientLimit),
	)

	r.Mux.Handle("GET /v1/whoami", secured)
}

func (r *Router) registerSystem() {
	// Monitoring systems may poll frequently, keep the limits lenient.
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store, r.resolver),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
}
