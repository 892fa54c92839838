package httpd

import (
	"context"
	"net/http"
	"time"

	"github.com/RubachokBoss/exam-grading/import-service/internal/models"
)

func (h *Handler) health(ctx context.Context) models.HealthCheckResponse {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	resp := models.HealthCheckResponse{
		Status:    "healthy",
		Database:  true,
		Storage:   h.deps.StorageProvider,
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		Timestamp: time.Now().UTC(),
	}

	if h.deps.Database != nil {
		if err := h.deps.Database.Ping(ctx); err != nil {
			h.logger.Warn().Err(err).Msg("Database health check failed")
			resp.Database = false
			resp.Status = "unhealthy"
		}
	}
	if h.deps.Broker != nil {
		resp.RabbitMQ = h.deps.Broker.IsHealthy()
		if !resp.RabbitMQ && resp.Status == "healthy" {
			resp.Status = "degraded"
		}
	}
	if h.deps.Imports != nil {
		resp.ActiveJobs = h.deps.Imports.ActiveJobs()
	}
	if h.deps.Pool != nil {
		resp.ActiveWorkers = h.deps.Pool.GetActiveWorkers()
		resp.QueueLength = h.deps.Pool.GetQueueLength()
	}

	return resp
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	resp := h.health(r.Context())

	status := http.StatusOK
	if resp.Status == "unhealthy" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

func (h *Handler) GetServiceStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"service": "import-service",
		"health":  h.health(r.Context()),
	}
	if h.deps.Pool != nil {
		status["worker_pool"] = h.deps.Pool.GetStats()
	}

	writeSuccess(w, status)
}
