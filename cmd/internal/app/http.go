package app

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"eatsoon/cmd/internal/caller"
)

// newRouter builds the root router. Request IDs and the real client IP are
// resolved before logging so every log line carries them.
func newRouter(a *App) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(func(next http.Handler) http.Handler { return WithRequestLogging(next, a.log) })
	r.Use(middleware.Recoverer)
	r.Use(WithSecurityHeaders)
	if len(a.cfg.CORSAllowedOrigins) > 0 {
		r.Use(corsMiddleware(a.cfg))
	}

	registerHTTP(r, a)
	return r
}

func registerHTTP(r chi.Router, a *App) {
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, req *http.Request) {
		if a.cfg.ReadinessRequireDB && !a.dbEnabled {
			http.Error(w, "db not configured", http.StatusServiceUnavailable)
			return
		}

		if a.dbEnabled && a.dbPool != nil {
			if err := PingDB(req.Context(), a.dbPool, 2*time.Second); err != nil {
				http.Error(w, "db not ready", http.StatusServiceUnavailable)
				a.log.Info("readyz.db.not_ready", "err", err)
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready\n"))
	})

	r.Method(http.MethodGet, "/metrics", metricsHandler(a.reg))

	// Attestation runs before identity so unattested requests never reach token parsing.
	a.accept.Register(r, func(next http.Handler) http.Handler {
		h := caller.WithBearerIdentity(next, a.verifier, a.log)
		return caller.RequireAppCheck(h, a.verifier, a.log)
	})
}
