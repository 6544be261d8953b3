package app

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"smartpark/internal/health/handler"
	"smartpark/pkg/config"
	"smartpark/pkg/contracts"
	"smartpark/pkg/middleware"
	"syscall"

	"github.com/julienschmidt/httprouter"
)

type Application struct {
	cfg              *config.Config
	server           *http.Server
	idempotencyStore *middleware.InMemoryIdempotencyStore
	rateLimiter      *middleware.PrincipalRateLimiter
	healthHandler    http.Handler
	apiHandler       http.Handler
	wsHandler        http.Handler
	shutdownHooks    []func()
}

func NewApplication() *Application {
	return &Application{}
}

// SetApp wires the three handler chains: health endpoints with minimal
// middleware, the REST API with the full stack, and the WebSocket endpoint
// without the timeout and body middlewares that would break a long-lived
// upgraded connection.
func (a *Application) SetApp(cfg *config.Config, verifier middleware.TokenVerifier, apiHandler contracts.Handler, wsHandler contracts.Handler) {
	a.cfg = cfg
	a.setHealthHandler(cfg)
	a.setAPIHandler(cfg, verifier, apiHandler)
	a.setWSHandler(cfg, verifier, wsHandler)
	a.setAppServer()
}

// OnShutdown registers a hook to run during graceful shutdown, after the
// HTTP server stops accepting requests.
func (a *Application) OnShutdown(hook func()) {
	a.shutdownHooks = append(a.shutdownHooks, hook)
}

func (a *Application) setHealthHandler(cfg *config.Config) {
	healthRouter := httprouter.New()
	healthHandler := handler.NewHealthHandler(cfg.Client.Mongo, cfg.Log)
	healthHandler.RegisterRoutes(healthRouter)

	var h http.Handler = healthRouter
	h = middleware.RequestLogging(cfg.Log)(h)
	h = middleware.Recovery(cfg.Log)(h)
	a.healthHandler = h
	cfg.Log.Info("Health endpoints configured with minimal middleware (Recovery + Logging only)")
}

func (a *Application) setAPIHandler(cfg *config.Config, verifier middleware.TokenVerifier, apiHandler contracts.Handler) {
	apiRouter := httprouter.New()
	apiHandler.RegisterRoutes(apiRouter)

	a.idempotencyStore = middleware.NewInMemoryIdempotencyStore(cfg.IdempotencyTTL)
	a.rateLimiter = middleware.NewPrincipalRateLimiter(
		cfg.RateLimitRequests,
		cfg.RateLimitWindow,
		cfg.Log,
	)

	var h http.Handler = apiRouter
	h = middleware.Idempotency(a.idempotencyStore, "Idempotency-Key")(h)
	h = middleware.RequestTimeout(cfg.RequestTimeout)(h)
	h = middleware.PrincipalRateLimit(a.rateLimiter)(h)
	h = middleware.Authentication(verifier, cfg.Log)(h)
	h = middleware.ContentTypeValidation(cfg.Log)(h)
	h = middleware.MaxRequestSize(int64(cfg.MaxRequestSize))(h)
	h = middleware.RequestLogging(cfg.Log)(h)
	h = middleware.Recovery(cfg.Log)(h)
	a.apiHandler = h
	cfg.Log.Info("API endpoints configured with full middleware stack")
}

func (a *Application) setWSHandler(cfg *config.Config, verifier middleware.TokenVerifier, wsHandler contracts.Handler) {
	wsRouter := httprouter.New()
	wsHandler.RegisterRoutes(wsRouter)

	var h http.Handler = wsRouter
	h = middleware.Authentication(verifier, cfg.Log)(h)
	h = middleware.RequestLogging(cfg.Log)(h)
	h = middleware.Recovery(cfg.Log)(h)
	a.wsHandler = h
	cfg.Log.Info("WebSocket endpoint configured (Recovery + Logging + Authentication)")
}

func (a *Application) setAppServer() {
	mux := http.NewServeMux()
	mux.Handle("/health", a.healthHandler)
	mux.Handle("/ready", a.healthHandler)
	mux.Handle("/ws", a.wsHandler)
	mux.Handle("/", a.apiHandler)

	a.server = &http.Server{
		Addr:    ":" + a.cfg.Port,
		Handler: mux,
		// No WriteTimeout: it would sever long-lived WebSocket connections.
		// The REST chain enforces its own per-request timeout.
		ReadHeaderTimeout: a.cfg.ReadTimeout,
		IdleTimeout:       a.cfg.IdleTimeout,
	}

	a.cfg.Log.Info("HTTP server configured", "port", a.cfg.Port)
}

func (a *Application) Run() {
	serverErrors := make(chan error, 1)

	go func() {
		a.cfg.Log.Info("Starting HTTP server", "address", a.server.Addr)
		serverErrors <- a.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		a.cfg.Log.Fatal("HTTP server failed", "error", err)

	case sig := <-shutdown:
		a.cfg.Log.Info("Shutdown signal received", "signal", sig)
		a.gracefulShutdown()
	}
}

func (a *Application) gracefulShutdown() {
	a.cfg.Log.Info("Starting graceful shutdown...")

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	if err := a.server.Shutdown(ctx); err != nil {
		a.cfg.Log.Error("Server shutdown failed", "error", err)
		if err := a.server.Close(); err != nil {
			a.cfg.Log.Fatal("Could not stop server gracefully", "error", err)
		}
	}

	a.cfg.Log.Info("Stopping background workers...")
	a.idempotencyStore.Stop()
	a.rateLimiter.Stop()
	for _, hook := range a.shutdownHooks {
		hook()
	}
	a.cfg.Log.Info("Background workers stopped")

	a.cfg.Log.Info("Server stopped gracefully")
}
