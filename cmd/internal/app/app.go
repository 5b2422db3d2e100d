// Package app wires the EatSoon server runtime: config, logging, storage,
// the invitation trigger listener and the callable HTTP surface.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"eatsoon/cmd/internal/caller"
	"eatsoon/cmd/internal/invitation"
	"eatsoon/cmd/internal/mailqueue"
	"eatsoon/cmd/internal/trigger"
)

// App owns the process resources: the DB pool, the metrics registry, the
// HTTP handlers and the trigger listener.
type App struct {
	cfg Config
	log Logger

	dbPool    *pgxpool.Pool
	dbEnabled bool

	reg      *prometheus.Registry
	verifier *caller.Verifier
	accept   *invitation.Handler
	listener *trigger.Listener
}

// New constructs a fully wired App instance from config and logger.
func New(cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg)
	}

	authCfg, err := caller.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}
	verifier, err := caller.NewVerifier(authCfg)
	if err != nil {
		return nil, fmt.Errorf("caller verifier: %w", err)
	}

	var pool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		pool, err = NewDBPool(context.Background(), cfg)
		if err != nil {
			return nil, err
		}
	}

	a, err := newApp(cfg, log, pool, verifier)
	if err != nil && pool != nil {
		pool.Close()
	}
	return a, err
}

// newApp wires handlers around an optional pool. A nil pool selects the
// in-memory invitation store and disables the trigger listener and the
// email notifier behind it.
func newApp(cfg Config, log Logger, pool *pgxpool.Pool, verifier *caller.Verifier) (*App, error) {
	if verifier == nil {
		return nil, errors.New("app: verifier is required")
	}
	reg := newRegistry()

	var (
		invStore invitation.Store
		listener *trigger.Listener
		err      error
	)
	if pool != nil {
		log.Info("db.enabled.postgres_store", "schema", cfg.DBSchema)
		invStore, err = invitation.NewPostgresStore(pool, invitation.WithSchema(cfg.DBSchema))
		if err != nil {
			return nil, err
		}
		listener, err = newInvitationListener(cfg, log, pool, reg)
		if err != nil {
			return nil, err
		}
	} else {
		log.Info("db.disabled.inmemory_store")
		log.Warn("mail.notifier.disabled", "reason", "no database, invitation inserts are not observed")
		invStore = invitation.NewMemoryStore()
	}

	svc, err := invitation.NewService(invStore,
		invitation.WithLogger(log),
		invitation.WithMaxAttempts(cfg.AcceptMaxAttempts),
		invitation.WithMetrics(invitation.NewMetrics(reg)),
	)
	if err != nil {
		return nil, err
	}
	accept, err := invitation.NewHandler(svc, log, cfg.CallableMaxBodyBytes)
	if err != nil {
		return nil, err
	}

	return &App{
		cfg:       cfg,
		log:       log,
		dbPool:    pool,
		dbEnabled: pool != nil,
		reg:       reg,
		verifier:  verifier,
		accept:    accept,
		listener:  listener,
	}, nil
}

// newInvitationListener wires the created-invitation outbox to the email
// notifier over a dedicated LISTEN connection.
func newInvitationListener(cfg Config, log Logger, pool *pgxpool.Pool, reg *prometheus.Registry) (*trigger.Listener, error) {
	mailStore, err := mailqueue.NewPostgresStore(pool, mailqueue.WithSchema(cfg.DBSchema))
	if err != nil {
		return nil, err
	}
	notifier, err := mailqueue.NewNotifier(mailStore,
		mailqueue.WithLogger(log),
		mailqueue.WithMetrics(mailqueue.NewMetrics(reg)),
	)
	if err != nil {
		return nil, err
	}
	outbox, err := invitation.NewCreatedOutbox(pool, invitation.WithSchema(cfg.DBSchema))
	if err != nil {
		return nil, err
	}
	return trigger.NewListener(pool, cfg.NotifyChannel, outbox, notifier.HandleInvitationCreated,
		trigger.WithLogger(log),
	)
}

// Handler returns the root HTTP handler with all middleware applied.
func (a *App) Handler() http.Handler {
	return newRouter(a)
}

// Run starts the HTTP server and the trigger listener and blocks until
// context cancellation or a fatal server error.
func (a *App) Run(ctx context.Context) error {
	shutdownTracing, err := SetupTracing(ctx, a.cfg.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 30*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start",
		"addr", a.cfg.HTTPAddr,
		"db_enabled", a.dbEnabled,
		"appcheck_required", a.verifier.AppCheckRequired(),
		"tracing", a.cfg.OTelEndpoint != "",
	)

	listenCtx, stopListener := context.WithCancel(ctx)
	defer stopListener()
	listenerDone := make(chan struct{})
	go func() {
		defer close(listenerDone)
		if a.listener == nil {
			return
		}
		if err := a.listener.Run(listenCtx); err != nil {
			a.log.Error("trigger.listener.fail", "err", err)
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case runErr = <-errCh:
		a.log.Error("server.fail", "err", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		runErr = errors.Join(runErr, err)
	}

	stopListener()
	<-listenerDone

	if err := shutdownTracing(shutdownCtx); err != nil {
		a.log.Error("tracing.shutdown.fail", "err", err)
	}

	// The pool goes last: the listener and in-flight requests hold connections.
	if a.dbPool != nil {
		a.dbPool.Close()
	}

	a.log.Info("server.stopped")
	return runErr
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
