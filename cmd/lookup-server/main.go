package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/agrimap/parcel-onboarding/internal/cadastral/coordcache"
	"github.com/agrimap/parcel-onboarding/internal/cadastral/upstream"
	"github.com/agrimap/parcel-onboarding/internal/core/config"
	"github.com/agrimap/parcel-onboarding/internal/core/health"
	"github.com/agrimap/parcel-onboarding/internal/core/httpclient"
	"github.com/agrimap/parcel-onboarding/internal/core/observability"
	"github.com/agrimap/parcel-onboarding/internal/core/server"
	"github.com/agrimap/parcel-onboarding/internal/invalidation/kafkaconsumer"
	"github.com/agrimap/parcel-onboarding/internal/logger"
	"github.com/agrimap/parcel-onboarding/internal/lookup"
	"github.com/agrimap/parcel-onboarding/internal/parcels/store"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	_ = godotenv.Load()
	cfg := config.FromEnv()

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   strings.ToLower(os.Getenv("LOG_CONSOLE")) == "true",
		Component: "lookup-server",
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)

	observability.ExposeBuildInfo(Version)
	appLog.Info("starting lookup-server",
		"addr", cfg.Addr,
		"version", Version,
		"redis", cfg.RedisAddr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var cache lookup.Cache
	coords, err := coordcache.New(ctx, appLog, cfg.RedisAddr,
		coordcache.WithFrontSize(cfg.CacheFrontLen),
		coordcache.WithFrontTTL(cfg.CacheFrontTTL),
		coordcache.WithRefTTL(cfg.RefTTL))
	if err != nil {
		// Lookups still work uncached; every click just hits the WFS.
		appLog.Warn("redis unavailable, serving uncached", "err", err)
	} else {
		cache = coords
		defer func() { _ = coords.Close() }()
	}

	var ready []health.Check
	if coords != nil {
		ready = append(ready, health.Check{Name: "redis", Probe: coords.Ping})
	}

	wfsClient := httpclient.NewOutbound()
	wfsClient.Timeout = cfg.UpstreamTimeout
	eps := upstream.Endpoints(cfg.NavarraWFSURL, cfg.EuskadiWFSURL, cfg.SpainWFSURL)
	for i := range eps {
		eps[i].RatePerSec = cfg.UpstreamRate
	}
	registry, err := upstream.NewRegistry(appLog, wfsClient, eps)
	if err != nil {
		appLog.Error("upstream registry setup failed", "err", err)
		return 1
	}

	svc := lookup.NewService(appLog, cache, registry, cfg.CoordTTL)

	deps := server.Deps{Lookup: svc}
	if cfg.PostgresDSN != "" {
		db, err := store.OpenDB(cfg.PostgresDSN)
		if err != nil {
			appLog.Error("postgres setup failed", "err", err)
			return 1
		}
		defer func() { _ = db.Close() }()

		parcelStore := store.New(db)
		if err := parcelStore.EnsureSchema(ctx); err != nil {
			appLog.Error("schema setup failed", "err", err)
			return 1
		}
		deps.Notify = store.HandleNotify(appLog, parcelStore)
		deps.Parcels = store.HandleList(appLog, parcelStore)
		deps.ParcelDelete = store.HandleDelete(appLog, parcelStore)
		ready = append(ready, health.Check{Name: "postgres", Probe: db.PingContext})
	}
	deps.Ready = ready

	if cfg.Invalidation.Enabled && coords != nil {
		consumerCfg := kafkaconsumer.FromEnv()
		consumer := kafkaconsumer.New(consumerCfg, appLog, coords)
		go func() {
			if err := consumer.Start(ctx); err != nil && ctx.Err() == nil {
				appLog.Error("invalidation consumer stopped", "err", err)
			}
		}()
	}

	if err := server.Run(ctx, cfg, appLog, deps); err != nil {
		appLog.Error("server error", "err", err)
		return 1
	}
	appLog.Info("server stopped")
	return 0
}
