// Package app wires the warden server runtime: config, logging, HTTP routes,
// the session store, and the change-feed gateway.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"warden/internal/feed"
	"warden/internal/identity"
	"warden/internal/session"
	"warden/internal/sessionapi"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Store is a small app-level lifecycle abstraction.
// It exists to allow DB-backed resources to be closed gracefully.
type Store interface {
	Close(ctx context.Context) error
}

// nopStore is used for in-memory store mode.
type nopStore struct{}

func (nopStore) Close(_ context.Context) error { return nil }

// App is the warden server runtime.
type App struct {
	cfg Config
	log Logger

	store Store

	dbPool    *pgxpool.Pool
	dbEnabled bool

	sessions *sessionapi.Handler
	ws       *feed.Gateway
	metrics  http.Handler
}

// New constructs a fully wired App instance from config and logger.
func New(cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}

	if err := ValidateSecurityConfig(cfg); err != nil {
		return nil, err
	}

	st, sessStore, dbPool, dbEnabled, err := newStore(context.Background(), cfg, log)
	if err != nil {
		return nil, err
	}

	cleanup := func() { _ = st.Close(context.Background()) }

	source, err := identitySource(cfg, log)
	if err != nil {
		cleanup()
		return nil, err
	}

	sessCfg, err := session.LoadConfigFromEnv()
	if err != nil {
		cleanup()
		return nil, err
	}

	hub := feed.NewHub(log)
	svc := session.NewService(sessCfg, log, sessStore, hub)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	apiCfg := sessionapi.LoadConfigFromEnv()
	handler, err := sessionapi.NewHandler(log, apiCfg, svc, source, sessionapi.NewMetrics(reg), dbPool)
	if err != nil {
		cleanup()
		return nil, err
	}

	return &App{
		cfg:       cfg,
		log:       log,
		store:     st,
		dbPool:    dbPool,
		dbEnabled: dbEnabled,
		sessions:  handler,
		ws:        feed.NewGateway(log, hub, source),
		metrics:   promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal
// server error.
func (a *App) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.cfg, a.dbPool, a.dbEnabled, a.sessions, a.ws, a.metrics)

	var h http.Handler = mux
	h = WithSecurityHeaders(h)
	h = WithCORS(h, a.cfg, a.log)
	h = WithRequestLogging(h, a.log)

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           h,
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "db_enabled", a.dbEnabled)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	if err := a.store.Close(shutdownCtx); err != nil {
		a.log.Error("store.close.fail", "err", err)
	}

	a.log.Info("server.stopped")
	return nil
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// identitySource picks the request identity resolver: signed bearer tokens
// when a secret is configured, the trusted dev header otherwise.
func identitySource(cfg Config, log Logger) (identity.SessionSource, error) {
	if cfg.AuthSecret != "" {
		src, err := identity.NewJWTSource([]byte(cfg.AuthSecret), cfg.AuthIssuer)
		if err != nil {
			return nil, fmt.Errorf("auth: %w", err)
		}
		log.Info("auth.enabled.jwt_source", "issuer_pinned", cfg.AuthIssuer != "")
		return src, nil
	}

	log.Warn("auth.enabled.header_source", "header", cfg.UserHeader)
	return identity.HeaderSource{Header: cfg.UserHeader}, nil
}

// newStore decides between Postgres-backed persistence and in-memory dev store.
func newStore(ctx context.Context, cfg Config, log Logger) (Store, session.Store, *pgxpool.Pool, bool, error) {
	if cfg.DatabaseURL == "" {
		log.Info("db.disabled.inmemory_store")
		return nopStore{}, session.NewMemoryStore(), nil, false, nil
	}

	pool, err := NewDBPool(ctx, cfg)
	if err != nil {
		return nil, nil, nil, false, err
	}

	log.Info("db.enabled.postgres_store", "schema", cfg.DBSchema)

	// Ownership model: app owns the pool lifecycle; the session store never
	// closes it.
	sessStore, err := session.NewPostgresStore(pool, session.WithSchema(cfg.DBSchema))
	if err != nil {
		pool.Close()
		return nil, nil, nil, false, err
	}

	return dbStore{pool: pool}, sessStore, pool, true, nil
}

type dbStore struct {
	pool *pgxpool.Pool
}

func (s dbStore) Close(_ context.Context) error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}
