package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/fieldstock-backend/internal/app"
	"github.com/angelmondragon/fieldstock-backend/pkg/instance"
	"github.com/angelmondragon/fieldstock-backend/pkg/logger"
)

const kind = "cron-worker"

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := app.Boot(ctx, app.BootOptions{Kind: kind, Tracing: true, Redis: true, DevMigrate: true})
	if err != nil {
		logger.New(logger.Options{ServiceName: kind}).Error(ctx, "cron worker bootstrap failed", err)
		return 1
	}
	defer rt.Close(context.Background())
	logg := rt.Logger

	params := rt.Params(prometheus.DefaultRegisterer)
	services, err := app.WireServices(params)
	if err != nil {
		logg.Error(ctx, "failed to wire pipeline services", err)
		return 1
	}
	scheduler, err := app.WireCron(params, services, rt.Redis)
	if err != nil {
		logg.Error(ctx, "failed to create cron service", err)
		return 1
	}

	ctx = logg.WithFields(ctx, map[string]any{
		"env":      rt.Config.App.Env,
		"jobs":     scheduler.JobNames(),
		"instance": instance.GetID(),
		"interval": rt.Config.Cron.Interval.String(),
	})
	logg.Info(ctx, "starting cron worker")

	if err := scheduler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		return 1
	}
	logg.Info(ctx, "cron worker shutting down gracefully")
	return 0
}
