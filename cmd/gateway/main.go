// Command gateway is the composition root: it wires configuration, storage,
// and every domain component together and serves the HTTP surface built by
// internal/httpapi, with graceful shutdown on SIGINT/SIGTERM. Grounded on
// the teacher's services/gateway/main.go entry-point shape (config → logger
// → Redis → subsystems → router → http.Server → signal-driven shutdown).
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zncgate/proxy/internal/admission"
	"github.com/zncgate/proxy/internal/auditlog"
	"github.com/zncgate/proxy/internal/bundles"
	"github.com/zncgate/proxy/internal/clock"
	"github.com/zncgate/proxy/internal/config"
	"github.com/zncgate/proxy/internal/httpapi"
	"github.com/zncgate/proxy/internal/ledger"
	"github.com/zncgate/proxy/internal/logger"
	"github.com/zncgate/proxy/internal/payment"
	"github.com/zncgate/proxy/internal/proxy"
	"github.com/zncgate/proxy/internal/ratelimit"
	"github.com/zncgate/proxy/internal/redisclient"
	"github.com/zncgate/proxy/internal/scope"
	"github.com/zncgate/proxy/internal/session"
	"github.com/zncgate/proxy/internal/store"
	"github.com/zncgate/proxy/internal/tokencache"
	"github.com/zncgate/proxy/internal/tokens"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg)
	clk := clock.Real{}

	log.Info().Str("env", cfg.Env).Msg("znc access gateway starting")

	db, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("database init failed")
	}

	ctx := context.Background()
	rdb, err := redisclient.New(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("redis init failed")
	}

	repos := store.NewPostgresRepos()

	l := ledger.New(db, repos, clk, log)
	cache := tokencache.New(rdb, log)
	tk := tokens.New(db, repos, l, cache, clk, log)
	sc := scope.New()
	sess := session.New(db, repos, clk, log)
	rl := ratelimit.New(rdb, clk, cfg.RateLimitEnabled, log)
	bp := bundles.New(db, repos, l, clk, log)
	pay := payment.NewMockGateway(cfg.BackendPublicURL, l, clk, log)

	fwd, err := proxy.New(proxy.Config{
		UpstreamBaseURL:   cfg.UpstreamBaseURL,
		BasicUser:         cfg.UpstreamBasicUser,
		BasicPass:         cfg.UpstreamBasicPass,
		TLSVerify:         cfg.UpstreamTLSVerify,
		Timeout:           cfg.UpstreamTimeout,
		AccessTokenHeader: cfg.AccessTokenHeader,
		DeviceIDHeader:    cfg.DeviceIDHeader,
	}, log)
	if err != nil {
		log.Fatal().Err(err).Msg("proxy forwarder init failed")
	}

	admissionPipeline := admission.New(tk, sc, sess, rl, log)

	auditSink := auditlog.NewPostgresSink(db, repos)
	auditPipeline := auditlog.NewPipeline(auditlog.DefaultPipelineConfig(), auditSink, clk, log)
	auditPipeline.Start(ctx)

	reaper := session.NewReaper(sess, cfg.SessionReapInterval, cfg.SessionIdleThreshold, log)
	reaper.Start(ctx)

	srv := httpapi.NewServer(cfg, l, tk, bp, admissionPipeline, fwd, pay, auditPipeline, log)

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		// No ReadTimeout/WriteTimeout: net/http applies both as an absolute
		// per-connection deadline that Hijack (gorilla/websocket's upgrade
		// path) does not reset, which would force-close long-lived
		// /proxy/* WebSocket sessions once the deadline lapsed. Per-request
		// timeouts for ordinary HTTP proxying are instead bounded by
		// proxy.Config.Timeout on the upstream client and by
		// chimw.Timeout in the router (excluded from the proxy routes).
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("gateway listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-done
	log.Info().Msg("shutdown signal received")

	reaper.Stop()
	auditPipeline.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.GracefulTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	} else {
		log.Info().Msg("gateway stopped gracefully")
	}
}
