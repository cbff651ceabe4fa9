package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/angelmondragon/atelie-backend/api/responses"
	"github.com/angelmondragon/atelie-backend/pkg/config"
	"github.com/angelmondragon/atelie-backend/pkg/logger"
)

const envHeader = "X-Atelie-Env"

type pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings Postgres and Redis with a short deadline.
func HealthReady(cfg *config.Config, logg *logger.Logger, dbPinger, redisPinger pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		checks := map[string]string{"db": "ok", "redis": "ok"}
		if dbPinger == nil {
			checks["db"] = "missing"
		} else if dbPinger.Ping(ctx) != nil {
			checks["db"] = "down"
		}
		if redisPinger == nil {
			checks["redis"] = "missing"
		} else if redisPinger.Ping(ctx) != nil {
			checks["redis"] = "down"
		}

		if checks["db"] != "ok" || checks["redis"] != "ok" {
			if logg != nil {
				logg.Warn(logg.WithFields(r.Context(), map[string]any{"checks": checks}), "health.not_ready")
			}
			responses.WriteSuccessStatus(w, http.StatusServiceUnavailable, map[string]any{"status": "not_ready", "checks": checks})
			return
		}
		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": checks})
	}
}
