package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/fieldstock-backend/pkg/config"
	"github.com/angelmondragon/fieldstock-backend/pkg/db"
	"github.com/angelmondragon/fieldstock-backend/pkg/logger"
)

// MaybeRunDev migrates the database on boot in dev when FIELDSTOCK_AUTO_MIGRATE is on.
// sqlite dev databases get the equivalent schema instead of the postgres set.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}

	if cfg.FeatureFlags.UseSQLite {
		logg.Info(ctx, "applying sqlite schema (dev auto-run)")
		return ApplySQLiteSchema(client.DB())
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}
	runner, err := NewRunner(sqlDB, nil)
	if err != nil {
		return err
	}

	applied, err := runner.Up(ctx)
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "applied": len(applied)})
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logg.Info(ctx, "migrations applied (dev auto-run)")
	return nil
}
