// Command cafesync runs the campus café sync core behind a local HTTP bridge
// for the UI shell.
//
// @title       Campus Café Sync bridge
// @version     1.0
// @description Local HTTP bridge over the campus café client sync core.
// @BasePath    /api/v1
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/campus-cafe-sync/internal/api"
	"github.com/tbourn/campus-cafe-sync/internal/config"
	httpapi "github.com/tbourn/campus-cafe-sync/internal/http"
	"github.com/tbourn/campus-cafe-sync/internal/observability"
	"github.com/tbourn/campus-cafe-sync/internal/repo"
	"github.com/tbourn/campus-cafe-sync/internal/sysutil"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const purgeInterval = time.Hour

func main() {
	cfg := config.MustLoad()
	sysutil.ConfigureLogger(os.Stderr, cfg.LogLevel, cfg.LogPretty)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}

	remote := api.New(cfg.API.BaseURL, cfg.API.Timeout, cfg.API.RateRPS, cfg.API.RateBurst)

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	bridge := httpapi.RegisterRoutes(r, db, remote, cfg)

	go purgeIdempotency(ctx, bridge)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Str("api", cfg.API.BaseURL).
			Str("version", version).
			Msg("bridge listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server stopped")
		}
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	}

	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

// purgeIdempotency drops expired Idempotency-Key records until ctx ends.
func purgeIdempotency(ctx context.Context, b *httpapi.Bridge) {
	t := time.NewTicker(purgeInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := b.Idempotency.Purge(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("idempotency purge")
				continue
			}
			if n > 0 {
				log.Debug().Int("removed", n).Msg("idempotency purge")
			}
		}
	}
}
