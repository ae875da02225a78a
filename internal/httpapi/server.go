// Package httpapi wires every component the composition root builds into
// chi routes, and is the single boundary that maps apierror.Kind to HTTP
// status (spec.md §7/§9). Router shape and middleware chain are grounded
// on the teacher's router/router.go (CORS → security headers → RequestID
// → RealIP → Recoverer → request logger → body size limit).
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/zncgate/proxy/internal/admission"
	"github.com/zncgate/proxy/internal/auditlog"
	"github.com/zncgate/proxy/internal/bundles"
	"github.com/zncgate/proxy/internal/config"
	"github.com/zncgate/proxy/internal/ledger"
	"github.com/zncgate/proxy/internal/payment"
	"github.com/zncgate/proxy/internal/proxy"
	"github.com/zncgate/proxy/internal/tokens"
)

// Server holds every dependency the HTTP handlers need.
type Server struct {
	cfg       *config.Config
	ledger    *ledger.Ledger
	tokens    *tokens.Lifecycle
	bundles   *bundles.Purchaser
	admission *admission.Pipeline
	forwarder *proxy.Forwarder
	payments  payment.Gateway
	audit     *auditlog.Pipeline
	upgrader  websocket.Upgrader
	log       zerolog.Logger
}

func NewServer(
	cfg *config.Config,
	l *ledger.Ledger,
	t *tokens.Lifecycle,
	b *bundles.Purchaser,
	a *admission.Pipeline,
	fwd *proxy.Forwarder,
	pay payment.Gateway,
	audit *auditlog.Pipeline,
	log zerolog.Logger,
) *Server {
	return &Server{
		cfg: cfg, ledger: l, tokens: t, bundles: b, admission: a, forwarder: fwd, payments: pay, audit: audit,
		upgrader: websocket.Upgrader{
			// Browsers cannot set custom headers on a WS handshake, so the
			// origin check here is intentionally permissive; authorization
			// happens via the token, not the Origin header.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log: log.With().Str("component", "httpapi").Logger(),
	}
}

// Router builds the full chi.Router for the gateway.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(securityHeaders)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(requestLogger(s.log))
	r.Use(bodySizeLimit(10 << 20))

	// A 60s request timeout is appropriate for the management API, but not
	// for /proxy/*: its WebSocket path (spec.md §4.7) is long-lived by
	// design ("no added idle timeout"), so that group is deliberately left
	// outside this middleware rather than inheriting it from the root.
	r.Group(func(r chi.Router) {
		r.Use(chimw.Timeout(60 * time.Second))

		r.Route("/tokens", func(r chi.Router) {
			r.Use(RequireUser(s.cfg.SigningSecret))
			r.Post("/purchase", s.handlePurchaseToken)
			r.Get("/my-tokens", s.handleListTokens)
			r.Delete("/{id}", s.handleRevokeToken)
		})

		r.Route("/bundles", func(r chi.Router) {
			r.Use(RequireUser(s.cfg.SigningSecret))
			r.Post("/{id}/purchase", s.handlePurchaseBundle)
		})

		r.Route("/currency", func(r chi.Router) {
			r.Use(RequireUser(s.cfg.SigningSecret))
			r.Get("/balance", s.handleBalance)
			r.Get("/transactions", s.handleTransactions)
			r.Post("/deposit", s.handleCreateDeposit)
		})
		r.Post("/webhooks/payments/{id}", s.handlePaymentWebhook)
		r.Get("/proxy/status", s.handleProxyStatus)
	})

	r.HandleFunc("/proxy/*", s.handleProxy)

	return r
}
