package migrate

import (
	"context"

	"github.com/orderlyhq/orderly-backend/pkg/config"
	"github.com/orderlyhq/orderly-backend/pkg/logger"
)

// AutoRun applies migrations at boot when the feature flag is set. Meant for
// dev and preview environments; production runs the migrate command in a
// release step.
func AutoRun(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	if !cfg.Features.AutoMigrate {
		logg.Info(ctx, "auto-migrate disabled, skipping")
		return nil
	}

	logg.Info(ctx, "auto-migrate enabled, applying pending migrations")
	if err := Up(ctx, cfg.DB.DSN); err != nil {
		return err
	}
	logg.Info(ctx, "migrations applied")
	return nil
}
