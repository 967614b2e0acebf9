package controllers

import (
	"net/http"

	"github.com/orderlyhq/orderly-backend/api/responses"
	"github.com/orderlyhq/orderly-backend/pkg/db"
	pkgerrors "github.com/orderlyhq/orderly-backend/pkg/errors"
	"github.com/orderlyhq/orderly-backend/pkg/logger"
	"github.com/orderlyhq/orderly-backend/pkg/redis"
)

// Health reports process liveness plus database and cache reachability.
func Health(dbClient *db.Client, redisClient *redis.Client, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		status := map[string]string{
			"status": "ok",
			"db":     "ok",
			"redis":  "ok",
		}

		if dbClient == nil {
			status["db"] = "unconfigured"
		} else if err := dbClient.Ping(ctx); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "database unreachable"))
			return
		}

		if redisClient == nil {
			status["redis"] = "unconfigured"
		} else if err := redisClient.Ping(ctx); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "redis unreachable"))
			return
		}

		responses.WriteSuccess(w, status)
	}
}
