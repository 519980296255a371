package api

import (
	"context"
	"net/http"
	"time"
)

// Pinger checks one dependency.
type Pinger func(ctx context.Context) error

type BacklogReporter interface {
	Backlog(ctx context.Context) (pending, deadLetter int64, err error)
}

type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
	Outbox *OutboxHealth     `json:"outbox,omitempty"`
}

type OutboxHealth struct {
	Pending    int64 `json:"pending"`
	DeadLetter int64 `json:"dead_letter"`
}

// Health reports 200 when every dependency answers and 503 otherwise.
// outbox may be nil.
func (h *Handlers) Health(checks map[string]Pinger, outbox BacklogReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		resp := HealthResponse{Status: "healthy", Checks: map[string]string{}}
		status := http.StatusOK
		for name, ping := range checks {
			if err := ping(ctx); err != nil {
				h.logger.Warn("health check failed", "check", name, "error", err)
				resp.Checks[name] = "unhealthy"
				resp.Status = "unhealthy"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "healthy"
		}

		if outbox != nil {
			pending, dead, err := outbox.Backlog(ctx)
			if err == nil {
				resp.Outbox = &OutboxHealth{Pending: pending, DeadLetter: dead}
			}
		}

		h.respondJSON(w, status, resp)
	}
}
