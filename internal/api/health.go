package api

import (
	"context"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports process and dependency health. A nil dependency is
// reported as disabled, which is how the memory backend runs.
type HealthHandler struct {
	postgres Pinger
	redis    *redis.Client
	env      string
	version  string
}

func NewHealthHandler(postgres Pinger, rdb *redis.Client, env, version string) *HealthHandler {
	return &HealthHandler{
		postgres: postgres,
		redis:    rdb,
		env:      env,
		version:  version,
	}
}

type LivenessResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Env     string `json:"env,omitempty"`
}

type ReadinessResponse struct {
	Status       string            `json:"status"`
	Version      string            `json:"version,omitempty"`
	Env          string            `json:"env,omitempty"`
	Dependencies map[string]string `json:"dependencies"`
}

func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, LivenessResponse{
		Status:  "ok",
		Version: h.version,
		Env:     h.env,
	})
}

// Readiness fails when Postgres is down. A Redis outage only degrades the
// service: bookings still work, waitlist promotion does not.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	deps := make(map[string]string)
	status := "ok"

	switch {
	case h.postgres == nil:
		deps["postgres"] = "disabled"
	case ping(ctx, h.postgres.Ping) != nil:
		deps["postgres"] = "down"
		status = "error"
	default:
		deps["postgres"] = "ok"
	}

	switch {
	case h.redis == nil:
		deps["redis"] = "disabled"
	case ping(ctx, func(ctx context.Context) error { return h.redis.Ping(ctx).Err() }) != nil:
		deps["redis"] = "down"
		if status == "ok" {
			status = "degraded"
		}
	default:
		deps["redis"] = "ok"
	}

	httpStatus := http.StatusOK
	if status == "error" {
		httpStatus = http.StatusServiceUnavailable
	}
	writeJSON(w, httpStatus, ReadinessResponse{
		Status:       status,
		Version:      h.version,
		Env:          h.env,
		Dependencies: deps,
	})
}

func ping(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	return fn(ctx)
}
