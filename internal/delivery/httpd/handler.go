package httpd

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/RubachokBoss/exam-grading/import-service/internal/middleware"
	"github.com/RubachokBoss/exam-grading/import-service/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type BrokerStatus interface {
	IsHealthy() bool
}

type PoolStats interface {
	GetActiveWorkers() int
	GetQueueLength() int
	GetStats() map[string]interface{}
}

type Dependencies struct {
	Imports    service.ImportService
	Jobs       service.JobStatusStore
	Plagiarism service.PlagiarismService

	Database        Pinger
	Broker          BrokerStatus // nil when RabbitMQ is disabled
	StorageProvider string
	Pool            PoolStats
	Metrics         http.Handler

	// UploadLimiter wraps the submission endpoints; nil disables it.
	UploadLimiter func(http.Handler) http.Handler
	MaxUploadSize int64
	// QueryTimeout bounds the read-only import endpoints; zero disables it.
	QueryTimeout time.Duration
}

type Handler struct {
	deps      Dependencies
	logger    zerolog.Logger
	startTime time.Time
}

func NewHandler(deps Dependencies, logger zerolog.Logger) *Handler {
	if deps.UploadLimiter == nil {
		deps.UploadLimiter = func(next http.Handler) http.Handler { return next }
	}
	return &Handler{
		deps:      deps,
		logger:    logger,
		startTime: time.Now(),
	}
}

func (h *Handler) RegisterRoutes(router chi.Router) {
	router.Get("/health", h.HealthCheck)
	router.Get("/status", h.GetServiceStatus)
	if h.deps.Metrics != nil {
		router.Handle("/metrics", h.deps.Metrics)
	}

	query := func(next http.Handler) http.Handler { return next }
	if h.deps.QueryTimeout > 0 {
		query = middleware.Timeout(h.deps.QueryTimeout)
	}

	router.Route("/api/v1", func(api chi.Router) {
		api.Route("/imports", func(r chi.Router) {
			r.With(h.deps.UploadLimiter).Post("/", h.SubmitUpload)
			r.With(h.deps.UploadLimiter).Post("/local", h.SubmitLocal)
			r.With(query).Get("/", h.ListImports)
			r.With(query).Get("/{job_id}", h.GetImportStatus)
			r.With(query).Get("/{job_id}/results", h.GetImportResults)
			r.Post("/{job_id}/cancel", h.CancelImport)
		})

		api.Post("/submissions/{submission_id}/plagiarism-check", h.CheckPlagiarism)
	})
}

func getIntQueryParam(r *http.Request, key string, defaultValue int) int {
	value := r.URL.Query().Get(key)
	if value == "" {
		return defaultValue
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	return intValue
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error":   http.StatusText(status),
		"message": message,
	})
}

func writeSuccess(w http.ResponseWriter, data interface{}) {
	writeSuccessStatus(w, http.StatusOK, data)
}

func writeSuccessStatus(w http.ResponseWriter, status int, data interface{}) {
	writeJSON(w, status, map[string]interface{}{
		"success": true,
		"data":    data,
	})
}

func statusForKind(kind service.ErrorKind) int {
	switch kind {
	case service.KindValidation:
		return http.StatusBadRequest
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindInvalidOperation:
		return http.StatusConflict
	case service.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForKind(service.KindOf(err))
	if status >= http.StatusInternalServerError {
		h.logger.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
	} else {
		h.logger.Debug().Err(err).Str("path", r.URL.Path).Int("status", status).Msg("Request rejected")
	}
	writeError(w, status, service.MessageOf(err))
}
