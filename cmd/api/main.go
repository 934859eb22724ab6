package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/fieldstock-backend/api/routes"
	"github.com/angelmondragon/fieldstock-backend/internal/app"
	"github.com/angelmondragon/fieldstock-backend/pkg/instance"
	"github.com/angelmondragon/fieldstock-backend/pkg/logger"
)

const (
	kind            = "api"
	shutdownTimeout = 15 * time.Second
	readTimeout     = 15 * time.Second
	writeTimeout    = 60 * time.Second
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := app.Boot(ctx, app.BootOptions{Kind: kind, Tracing: true, Redis: true, DevMigrate: true})
	if err != nil {
		logger.New(logger.Options{ServiceName: kind}).Error(ctx, "api bootstrap failed", err)
		return 1
	}
	defer rt.Close(context.Background())
	logg := rt.Logger

	services, err := app.WireServices(rt.Params(prometheus.DefaultRegisterer))
	if err != nil {
		logg.Error(ctx, "failed to wire pipeline services", err)
		return 1
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = rt.Config.App.Port
	}
	server := &http.Server{
		Addr:              ":" + port,
		ReadHeaderTimeout: readTimeout,
		WriteTimeout:      writeTimeout,
		Handler: routes.NewRouter(routes.Deps{
			Config:      rt.Config,
			Logger:      logg,
			DB:          rt.DB,
			Cache:       rt.Redis,
			Idempotency: rt.Redis,
			Gatherer:    prometheus.DefaultGatherer,
			Services: routes.Services{
				Ledger:          services.Ledger,
				Rollups:         services.Rollups,
				Forecasts:       services.Forecasts,
				Recommendations: services.Recommendations,
				Alerts:          services.Alerts,
			},
		}),
	}

	ctx = logg.WithFields(ctx, map[string]any{
		"env":      rt.Config.App.Env,
		"addr":     server.Addr,
		"instance": instance.GetID(),
	})
	logg.Info(ctx, "starting api server")

	serveErr := make(chan error, 1)
	go func() { serveErr <- server.ListenAndServe() }()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			return 1
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(shutdownCtx, "api server shutdown incomplete", err)
			return 1
		}
		logg.Info(ctx, "api server shut down gracefully")
	}
	return 0
}
