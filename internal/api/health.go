package api

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// dependencyCheck probes one backend. A nil probe means the backend is not
// configured for this deployment.
type dependencyCheck struct {
	name  string
	probe func(ctx context.Context) error
}

type HealthHandler struct {
	checks  []dependencyCheck
	env     string
	version string
}

// NewHealthHandler probes whichever of pgPool and rdb are non-nil. Both are
// critical: postgres holds the occupancy state and redis the seat locks.
func NewHealthHandler(pgPool *pgxpool.Pool, rdb *redis.Client, env, version string) *HealthHandler {
	h := &HealthHandler{env: env, version: version}

	pg := dependencyCheck{name: "postgres"}
	if pgPool != nil {
		pg.probe = pgPool.Ping
	}
	rc := dependencyCheck{name: "redis"}
	if rdb != nil {
		rc.probe = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}
	h.checks = []dependencyCheck{pg, rc}
	return h
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
	writeJSON(w, http.StatusOK, LivenessResponse{Status: "ok", Version: h.version, Env: h.env})
}

func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := ReadinessResponse{
		Status:       "ok",
		Version:      h.version,
		Env:          h.env,
		Dependencies: make(map[string]string, len(h.checks)),
	}

	for _, c := range h.checks {
		if c.probe == nil {
			resp.Dependencies[c.name] = "disabled"
			continue
		}
		probeCtx, probeCancel := context.WithTimeout(ctx, time.Second)
		err := c.probe(probeCtx)
		probeCancel()
		if err != nil {
			resp.Dependencies[c.name] = "down"
			resp.Status = "error"
			continue
		}
		resp.Dependencies[c.name] = "ok"
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
