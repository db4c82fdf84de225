// Command server runs the restaurant back-office REST API.
package main

import (
	"context"
	"errors"
	"fmt"
	stdlog "log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"syscall"
	"time"

	"github.com/enrichman/httpgrace"
	"github.com/gin-gonic/gin"
	"github.com/honeybadger-io/honeybadger-go"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/restaurant-backoffice/internal/cache"
	"github.com/tbourn/restaurant-backoffice/internal/config"
	httpapi "github.com/tbourn/restaurant-backoffice/internal/http"
	"github.com/tbourn/restaurant-backoffice/internal/observability"
	"github.com/tbourn/restaurant-backoffice/internal/repo"
	"github.com/tbourn/restaurant-backoffice/internal/sysutil"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const purgeInterval = 10 * time.Minute

func main() {
	// A missing .env is fine.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		stdlog.Fatalf("configuration error: %v", err)
	}
	logger := sysutil.ConfigureLogger(os.Stderr, cfg.LogLevel, cfg.LogPretty, cfg.OTEL.ServiceName)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("tracing setup failed")
	}
	defer func() {
		sctx, scancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer scancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("tracing shutdown failed")
		}
	}()

	db, err := repo.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.DBDriver).Msg("cannot open database")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}

	store, closeStore := openStore(ctx, cfg.Redis)
	defer closeStore()

	go purgeIdempotency(ctx, db)

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, db, store, cfg)

	srv := newServer(ctx, cfg, r, logger)
	log.Info().Str("port", cfg.Port).Str("version", version).Str("db", cfg.DBDriver).Msg("listening")
	if err := srv.ListenAndServe(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("server error")
	}

	if cfg.HoneybadgerAPIKey != "" {
		honeybadger.Flush()
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	log.Info().Msg("server stopped")
}

// openStore connects the response cache, falling back to no caching when
// Redis is disabled or unreachable.
func openStore(ctx context.Context, rc config.RedisConfig) (cache.Store, func()) {
	if !rc.Enabled {
		return cache.Noop{}, func() {}
	}
	rs, err := cache.NewRedis(ctx, cache.RedisOptions{
		Addr:     rc.Addr,
		Password: rc.Password,
		DB:       rc.DB,
		TTL:      rc.TTL,
	})
	if err != nil {
		log.Warn().Err(err).Str("addr", rc.Addr).Msg("redis unavailable, response cache disabled")
		return cache.Noop{}, func() {}
	}
	return rs, func() {
		if err := rs.Close(); err != nil {
			log.Warn().Err(err).Msg("redis close failed")
		}
	}
}

// purgeIdempotency deletes expired idempotency records until ctx ends.
func purgeIdempotency(ctx context.Context, db *gorm.DB) {
	t := time.NewTicker(purgeInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n, err := repo.PurgeIdempotency(ctx, db, now.UTC())
			if err != nil {
				log.Warn().Err(err).Msg("idempotency purge failed")
				continue
			}
			if n > 0 {
				log.Debug().Int64("rows", n).Msg("idempotency records purged")
			}
		}
	}
}

func newServer(ctx context.Context, cfg config.Config, h http.Handler, logger zerolog.Logger) *httpgrace.Server {
	slogger := slog.New(slog.NewTextHandler(logger, nil))
	return httpgrace.NewServer(h,
		httpgrace.WithTimeout(cfg.ShutdownTimeout),
		httpgrace.WithSignals(syscall.SIGTERM, syscall.SIGINT),
		httpgrace.WithLogger(slogger),
		httpgrace.WithBeforeShutdown(func() {
			log.Info().Msg("shutting down")
		}),
		httpgrace.WithServerOptions(
			httpgrace.WithReadTimeout(cfg.ReadTimeout),
			httpgrace.WithWriteTimeout(cfg.WriteTimeout),
			httpgrace.WithIdleTimeout(cfg.IdleTimeout),
			func(srv *http.Server) {
				srv.ReadHeaderTimeout = cfg.ReadHeaderTimeout
				srv.MaxHeaderBytes = cfg.MaxHeaderBytes
				srv.BaseContext = func(net.Listener) context.Context { return ctx }
				srv.ErrorLog = stdlog.New(logger, fmt.Sprintf("[%s] ", cfg.OTEL.ServiceName), 0)
			},
		),
	)
}
