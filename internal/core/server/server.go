package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/agrimap/parcel-onboarding/internal/core/config"
	"github.com/agrimap/parcel-onboarding/internal/core/health"
	middleware "github.com/agrimap/parcel-onboarding/internal/core/middleware"
	"github.com/agrimap/parcel-onboarding/internal/lookup"
)

// Deps carries the request handlers the server mounts. Notify is
// optional; without it the /notify route is not registered.
type Deps struct {
	Lookup       *lookup.Service
	Notify       http.HandlerFunc
	Parcels      http.HandlerFunc
	ParcelDelete http.HandlerFunc
	Ready        []health.Check
}

// sets up http and starts serving
func Run(ctx context.Context, cfg config.Config, logger *slog.Logger, deps Deps) error {
	r := chi.NewRouter()
	r.Use(middleware.Recover())
	r.Use(middleware.Logging(logger))
	r.Use(middleware.CORS())

	r.Get("/healthz", health.Liveness())
	r.Get("/readyz", health.Readiness(deps.Ready...))
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	query := lookup.HandleQueryByCoordinates(logger, deps.Lookup)
	r.Get("/api/cadastral/query-by-coordinates", query)
	r.Post("/api/cadastral/query-by-coordinates", query)
	if deps.Parcels != nil {
		r.Get("/api/cadastral/parcels", deps.Parcels)
	}
	if deps.ParcelDelete != nil {
		r.Delete("/api/cadastral/parcels/{id}", deps.ParcelDelete)
	}
	if deps.Notify != nil {
		r.Post("/notify", deps.Notify)
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listen", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
