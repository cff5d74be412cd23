package controllers

import (
	"net/http"

	"go.uber.org/multierr"

	"github.com/sunroad-co/sunroad-backend/api/responses"
	"github.com/sunroad-co/sunroad-backend/pkg/config"
	"github.com/sunroad-co/sunroad-backend/pkg/db"
	pkgerrors "github.com/sunroad-co/sunroad-backend/pkg/errors"
	"github.com/sunroad-co/sunroad-backend/pkg/logger"
	"github.com/sunroad-co/sunroad-backend/pkg/redis"
)

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Sunroad-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady reports readiness only when every backing dependency answers.
func HealthReady(cfg *config.Config, logg *logger.Logger, dbP db.Pinger, redisP redis.Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		w.Header().Set("X-Sunroad-Env", cfg.App.Env)

		var err error
		if dbP != nil {
			err = multierr.Append(err, dbP.Ping(ctx))
		}
		if redisP != nil {
			err = multierr.Append(err, redisP.Ping(ctx))
		}
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "readiness check failed"))
			return
		}

		responses.WriteSuccess(w, map[string]string{"status": "ready"})
	}
}
