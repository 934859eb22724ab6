// Command pipeline runs one full replenishment cycle and exits. It takes the same
// lock as the cron worker, so the two never overlap.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/angelmondragon/fieldstock-backend/internal/app"
	"github.com/angelmondragon/fieldstock-backend/pkg/logger"
)

const kind = "pipeline"

// Exit codes.
const (
	exitOK           = 0
	exitBootstrap    = 1
	exitStagesFailed = 2
)

func main() {
	stages := flag.String("stages", "", "comma separated stages to run (default: all)")
	flag.Parse()
	os.Exit(run(splitStages(*stages)))
}

func splitStages(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return strings.Split(raw, ",")
}

func run(stages []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := app.Boot(ctx, app.BootOptions{Kind: kind, Tracing: true, Redis: true})
	if err != nil {
		logger.New(logger.Options{ServiceName: kind}).Error(ctx, "pipeline bootstrap failed", err)
		return exitBootstrap
	}
	defer rt.Close(context.Background())
	logg := rt.Logger

	params := rt.Params(nil)
	services, err := app.WireServices(params)
	if err != nil {
		logg.Error(ctx, "failed to wire pipeline services", err)
		return exitBootstrap
	}
	scheduler, err := app.WireCron(params, services, rt.Redis)
	if err != nil {
		logg.Error(ctx, "failed to create pipeline runner", err)
		return exitBootstrap
	}
	if len(stages) > 0 {
		if err := scheduler.Restrict(stages...); err != nil {
			logg.Error(ctx, "invalid -stages", err)
			return exitBootstrap
		}
	}

	ctx = logg.WithFields(ctx, map[string]any{
		"env":  rt.Config.App.Env,
		"jobs": scheduler.JobNames(),
	})
	report, err := scheduler.RunOnce(ctx)
	if err != nil {
		logg.Error(ctx, "pipeline run failed", err)
		return exitBootstrap
	}
	if report.Skipped {
		logg.Warn(ctx, "pipeline lock held by another runner")
		return exitOK
	}
	ctx = logg.WithFields(ctx, map[string]any{
		"succeeded": report.Succeeded,
		"failed":    report.Failed,
	})
	if len(report.Failed) > 0 {
		logg.Warn(ctx, "pipeline run finished with failed stages")
		return exitStagesFailed
	}
	logg.Info(ctx, "pipeline run completed")
	return exitOK
}
