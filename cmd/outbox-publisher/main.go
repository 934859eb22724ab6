package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/fieldstock-backend/internal/app"
	"github.com/angelmondragon/fieldstock-backend/pkg/db/models"
	"github.com/angelmondragon/fieldstock-backend/pkg/logger"
	"github.com/angelmondragon/fieldstock-backend/pkg/metrics"
	"github.com/angelmondragon/fieldstock-backend/pkg/outbox"
	"github.com/angelmondragon/fieldstock-backend/pkg/outbox/registry"
	"github.com/angelmondragon/fieldstock-backend/pkg/pubsub"
)

const kind = "outbox-publisher"

func main() {
	requeueID := flag.String("requeue", "", "dead letter id to hand back to the publisher, then exit")
	flag.Parse()
	os.Exit(run(*requeueID))
}

func run(requeueID string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := app.Boot(ctx, app.BootOptions{Kind: kind, Tracing: requeueID == "", DevMigrate: true})
	if err != nil {
		logger.New(logger.Options{ServiceName: kind}).Error(ctx, "outbox publisher bootstrap failed", err)
		return 1
	}
	defer rt.Close(context.Background())
	logg := rt.Logger
	conn := rt.DB.DB()

	if requeueID != "" {
		return requeue(ctx, logg, outbox.NewDLQRepository(conn), requeueID)
	}

	pubsubClient, err := pubsub.NewClient(ctx, rt.Config.GCP, rt.Config.PubSub, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap pubsub", err)
		return 1
	}
	rt.OnClose("pubsub", func(context.Context) error { return pubsubClient.Close() })

	eventRegistry, err := registry.NewEventRegistry(rt.Config.PubSub)
	if err != nil {
		logg.Error(ctx, "failed to build event registry", err)
		return 1
	}
	service, err := NewService(ServiceParams{
		Config:        rt.Config,
		Logger:        logg,
		DB:            rt.DB,
		PubSub:        pubsubClient,
		Repository:    outbox.NewRepository(conn),
		Registry:      eventRegistry,
		DLQRepository: outbox.NewDLQRepository(conn),
		Metrics:       metrics.NewPipelineMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		logg.Error(ctx, "failed to create outbox publisher", err)
		return 1
	}

	ctx = logg.WithField(ctx, "env", rt.Config.App.Env)
	logg.Info(ctx, "starting outbox publisher")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "outbox publisher stopped unexpectedly", err)
		return 1
	}
	logg.Info(ctx, "outbox publisher shutting down gracefully")
	return 0
}

type requeuer interface {
	Requeue(ctx context.Context, id uuid.UUID) (*models.OutboxEvent, error)
}

func requeue(ctx context.Context, logg *logger.Logger, dlq requeuer, rawID string) int {
	id, err := uuid.Parse(rawID)
	if err != nil {
		logg.Error(ctx, "invalid dead letter id", err)
		return 1
	}
	ctx = logg.WithField(ctx, "dlq_id", id.String())
	event, err := dlq.Requeue(ctx, id)
	if err != nil {
		logg.Error(ctx, "failed to requeue dead letter", err)
		return 1
	}
	ctx = logg.WithFields(ctx, map[string]any{
		"event_id":   event.ID.String(),
		"event_type": event.EventType,
	})
	logg.Info(ctx, "dead letter requeued")
	return 0
}
