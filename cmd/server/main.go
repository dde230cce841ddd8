package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"lol-dashboard/internal/config"
	"lol-dashboard/internal/constants"
	fxmodules "lol-dashboard/internal/fx"
	"lol-dashboard/internal/live"
	"lol-dashboard/internal/middleware"
	"lol-dashboard/internal/server"

	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

func main() {
	fx.New(
		fxmodules.Module,
		fx.Invoke(runServer),
	).Run()
}

func runServer(
	lc fx.Lifecycle,
	dashboard *server.DashboardServer,
	liveReg *live.Registry,
	cfg *config.Config,
	db *sql.DB,
	logger zerolog.Logger,
) {
	mux := http.NewServeMux()
	dashboard.Routes(mux)

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	handler := middleware.RequestID(logger)(c.Handler(mux))

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: handler,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				logger.Info().Str("addr", srv.Addr).Msg("server starting")
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Fatal().Err(err).Msg("server failed")
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info().Msg("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
			defer cancel()

			liveReg.Close()

			if err := db.Close(); err != nil {
				logger.Warn().Err(err).Msg("error closing cache database")
			}

			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error().Err(err).Msg("server shutdown failed")
				return err
			}
			logger.Info().Msg("server stopped gracefully")
			return nil
		},
	})
}
