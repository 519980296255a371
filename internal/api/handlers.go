package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/maltedev/dealer-portal-scraper/internal/jobs"
	"github.com/maltedev/dealer-portal-scraper/internal/models"
)

type JobService interface {
	CreateJob(ctx context.Context, portal, mode string, items []models.WorkItem) (*models.Job, error)
	GetJob(ctx context.Context, id string) (*models.Job, error)
	ListJobs(ctx context.Context, status string, limit int) ([]*models.Job, error)
	JobLines(ctx context.Context, id string, afterID int64, limit int) ([]models.JobLine, error)
	GetStats(ctx context.Context) (*models.JobStats, error)
}

type Handlers struct {
	jobs   JobService
	logger *slog.Logger
}

func NewHandlers(jobs JobService, logger *slog.Logger) *Handlers {
	return &Handlers{
		jobs:   jobs,
		logger: logger.With("component", "api"),
	}
}

// Routes mounts the job API on r.
func (h *Handlers) Routes(r chi.Router) {
	r.Post("/jobs", h.CreateJob)
	r.Get("/jobs", h.ListJobs)
	r.Get("/jobs/{jobID}", h.GetJob)
	r.Get("/jobs/{jobID}/logs", h.GetJobLogs)
	r.Get("/stats", h.GetStats)
}

type CreateJobRequest struct {
	Portal string            `json:"portal"`
	Mode   string            `json:"mode"`
	Items  []models.WorkItem `json:"items"`
	// Codes is shorthand for items without a category.
	Codes []string `json:"codes"`
}

type CreateJobResponse struct {
	JobID   string `json:"job_id"`
	Status  string `json:"status"`
	Items   int    `json:"items"`
	Message string `json:"message"`
}

func (h *Handlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Portal == "" {
		h.respondError(w, http.StatusBadRequest, "portal is required")
		return
	}

	items := req.Items
	for _, code := range req.Codes {
		items = append(items, models.WorkItem{Code: code})
	}

	job, err := h.jobs.CreateJob(r.Context(), req.Portal, req.Mode, items)
	if errors.Is(err, jobs.ErrInvalidJob) {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		h.logger.Error("failed to create job", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to create job")
		return
	}

	h.respondJSON(w, http.StatusCreated, CreateJobResponse{
		JobID:   job.ID,
		Status:  job.Status,
		Items:   len(items),
		Message: "Job created successfully",
	})
}

func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.jobs.GetJob(r.Context(), chi.URLParam(r, "jobID"))
	if errors.Is(err, models.ErrJobNotFound) {
		h.respondError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to get job", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to get job")
		return
	}

	h.respondJSON(w, http.StatusOK, job)
}

func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	list, err := h.jobs.ListJobs(r.Context(), r.URL.Query().Get("status"), limit)
	if err != nil {
		h.logger.Error("failed to list jobs", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	if list == nil {
		list = []*models.Job{}
	}

	h.respondJSON(w, http.StatusOK, list)
}

// GetJobLogs returns log lines of a job. Clients poll with ?after=<last id>.
func (h *Handlers) GetJobLogs(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if _, err := h.jobs.GetJob(r.Context(), jobID); err != nil {
		if errors.Is(err, models.ErrJobNotFound) {
			h.respondError(w, http.StatusNotFound, "job not found")
			return
		}
		h.logger.Error("failed to get job", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to get job")
		return
	}

	after, err := parseInt64(r.URL.Query().Get("after"))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "after must be a line id")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	lines, err := h.jobs.JobLines(r.Context(), jobID, after, limit)
	if err != nil {
		h.logger.Error("failed to get job logs", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to get job logs")
		return
	}
	if lines == nil {
		lines = []models.JobLine{}
	}

	h.respondJSON(w, http.StatusOK, lines)
}

func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.jobs.GetStats(r.Context())
	if err != nil {
		h.logger.Error("failed to get stats", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}

	h.respondJSON(w, http.StatusOK, stats)
}

func parseInt64(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseInt(s, 10, 64)
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
