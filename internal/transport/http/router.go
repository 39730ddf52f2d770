package httptransport

import (
	"log/slog"
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/unrolled/secure"

	"medshare/pkg/platform/httputil"
	authmw "medshare/pkg/platform/middleware/auth"
	"medshare/pkg/platform/middleware/metadata"
	"medshare/pkg/platform/middleware/request"
	"medshare/pkg/requestcontext"
	"medshare/pkg/validation"
)

const (
	rateWindow   = time.Minute
	roleProvider = "PROVIDER"
)

// RouteRegistrar mounts a feature's routes under /v1.
type RouteRegistrar interface {
	Register(r chi.Router)
}

// DisclosureRoutes mounts disclosure routes, letting the router wrap the
// scan endpoint separately.
type DisclosureRoutes interface {
	Register(r chi.Router, scanGuards ...func(http.Handler) http.Handler)
}

// Deps collects everything the router mounts.
type Deps struct {
	Logger         *slog.Logger
	Registry       *prometheus.Registry
	RequestMetrics *request.Metrics
	Tokens         authmw.TokenValidator
	TrustedProxies []netip.Prefix
	Production     bool

	LoginRateLimit int
	ScanRateLimit  int

	Health      RouteRegistrar
	Auth        RouteRegistrar
	Consent     RouteRegistrar
	Audit       RouteRegistrar
	Disclosures DisclosureRoutes
}

// NewRouter wires all public endpoints with middleware. Login is the only
// unauthenticated /v1 route.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	secureMiddleware := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		ReferrerPolicy:        "no-referrer",
		ContentSecurityPolicy: "default-src 'none'",
		STSSeconds:            31536000,
		STSIncludeSubdomains:  true,
		SSLRedirect:           d.Production,
		SSLProxyHeaders:       map[string]string{"X-Forwarded-Proto": "https"},
		IsDevelopment:         !d.Production,
	})

	r.Use(request.Recovery(d.Logger))
	r.Use(request.RequestID)
	r.Use(metadata.New(d.TrustedProxies).Handler)
	r.Use(request.Logger(d.Logger))
	r.Use(request.Latency(d.RequestMetrics))
	r.Use(secureMiddleware.Handler)

	d.Health.Register(r)
	if d.Registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Registry, promhttp.HandlerOpts{Registry: d.Registry}))
	}

	r.Route("/v1", func(v1 chi.Router) {
		v1.Use(request.BodyLimit(validation.MaxBodySize))
		v1.Use(request.ContentTypeJSON)

		v1.Group(func(public chi.Router) {
			public.Use(rateLimit(d.LoginRateLimit))
			d.Auth.Register(public)
		})

		v1.Group(func(private chi.Router) {
			private.Use(authmw.RequireAuth(d.Tokens, d.Logger))
			d.Consent.Register(private)
			d.Audit.Register(private)
			d.Disclosures.Register(private,
				authmw.RequireRole(d.Logger, roleProvider),
				rateLimit(d.ScanRateLimit),
			)
		})
	})

	return r
}

// rateLimit caps requests per client address per minute. The address comes
// from the metadata middleware, so forwarded headers count only behind a
// trusted proxy.
func rateLimit(perMinute int) func(http.Handler) http.Handler {
	return httprate.Limit(perMinute, rateWindow,
		httprate.WithKeyFuncs(clientKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httputil.WriteJSON(w, http.StatusTooManyRequests, map[string]string{
				"error":             "rate_limited",
				"error_description": "too many requests",
			})
		}),
	)
}

func clientKey(r *http.Request) (string, error) {
	if ip := requestcontext.ClientIP(r.Context()); ip != "" && ip != "unknown" {
		return "ip:" + ip, nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}
