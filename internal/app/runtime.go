package app

import (
	"context"
	"fmt"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/fieldstock-backend/pkg/config"
	"github.com/angelmondragon/fieldstock-backend/pkg/db"
	"github.com/angelmondragon/fieldstock-backend/pkg/logger"
	"github.com/angelmondragon/fieldstock-backend/pkg/migrate"
	"github.com/angelmondragon/fieldstock-backend/pkg/redis"
	"github.com/angelmondragon/fieldstock-backend/pkg/tracing"
)

// BootOptions selects which shared clients a binary needs.
type BootOptions struct {
	Kind       string
	Tracing    bool
	Redis      bool
	DevMigrate bool
}

// Runtime holds the clients bootstrapped for one process. Close releases them
// in reverse order of acquisition.
type Runtime struct {
	Config *config.Config
	Logger *logger.Logger
	DB     *db.Client
	Redis  *redis.Client

	closers []namedCloser
}

type namedCloser struct {
	name string
	fn   func(context.Context) error
}

// Boot loads .env and config, rebuilds the logger from config and opens the
// requested clients. On error everything opened so far is closed.
func Boot(ctx context.Context, opts BootOptions) (rt *Runtime, err error) {
	bootLog := logger.New(logger.Options{ServiceName: opts.Kind})
	if loadErr := godotenv.Load(); loadErr != nil {
		bootLog.Warn(ctx, ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg.Service.Kind = opts.Kind

	rt = &Runtime{
		Config: cfg,
		Logger: logger.New(logger.Options{
			ServiceName: opts.Kind,
			Level:       cfg.App.LogLevel,
			WarnStack:   cfg.App.LogWarnStack,
			Format:      cfg.App.LogFormat,
		}),
	}
	defer func() {
		if err != nil {
			rt.Close(ctx)
			rt = nil
		}
	}()

	if opts.Tracing {
		shutdown, err := tracing.Init(ctx, cfg.Tracing, opts.Kind, cfg.App.Env, rt.Logger)
		if err != nil {
			return rt, fmt.Errorf("init tracing: %w", err)
		}
		rt.onClose("tracing", shutdown)
	}

	if rt.DB, err = db.New(ctx, cfg.DB, rt.Logger); err != nil {
		return rt, fmt.Errorf("bootstrap database: %w", err)
	}
	rt.onClose("database", func(context.Context) error { return rt.DB.Close() })

	if opts.DevMigrate {
		if err := migrate.MaybeRunDev(ctx, cfg, rt.Logger, rt.DB); err != nil {
			return rt, fmt.Errorf("dev migrations: %w", err)
		}
	}

	if opts.Redis {
		if rt.Redis, err = redis.New(ctx, cfg.Redis, rt.Logger); err != nil {
			return rt, fmt.Errorf("bootstrap redis: %w", err)
		}
		rt.onClose("redis", func(context.Context) error { return rt.Redis.Close() })
	}
	return rt, nil
}

// OnClose registers an extra resource to release with the runtime.
func (r *Runtime) OnClose(name string, fn func(context.Context) error) {
	r.onClose(name, fn)
}

func (r *Runtime) onClose(name string, fn func(context.Context) error) {
	r.closers = append(r.closers, namedCloser{name: name, fn: fn})
}

// Params returns the wiring inputs for WireServices.
func (r *Runtime) Params(reg prometheus.Registerer) Params {
	p := Params{
		Config:     r.Config,
		Logger:     r.Logger,
		DB:         r.DB,
		Registerer: reg,
	}
	if r.Redis != nil {
		p.Trust = r.Redis
	}
	return p
}

// Close releases resources last-in first-out and logs failures.
func (r *Runtime) Close(ctx context.Context) {
	if r == nil {
		return
	}
	for i := len(r.closers) - 1; i >= 0; i-- {
		c := r.closers[i]
		if err := c.fn(ctx); err != nil {
			r.Logger.Error(r.Logger.WithField(ctx, "resource", c.name), "error releasing resource", err)
		}
	}
	r.closers = nil
}
