package server

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/warydiaz/json-ingestion-platform/internal/metrics"
	"github.com/warydiaz/json-ingestion-platform/internal/models"
	"github.com/warydiaz/json-ingestion-platform/internal/query"
	"github.com/warydiaz/json-ingestion-platform/internal/service"
)

const defaultHistoryLimit = 50

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.Pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := s.deps.Pinger.Ping(ctx); err != nil {
			s.logger.Warn("health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()})
			return
		}
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

// queryParams flattens a query string into filter params. Repeated keys keep
// their first value.
func queryParams(values url.Values) query.Params {
	params := make(query.Params, len(values))
	for key, vals := range values {
		if len(vals) > 0 {
			params[key] = vals[0]
		}
	}
	return params
}

func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	page, err := s.deps.Records.Query(r.Context(), queryParams(r.URL.Query()))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

type triggerResponse struct {
	Message   string `json:"message"`
	Published int    `json:"published"`
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	n, err := s.deps.Publisher.PublishAll(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, triggerResponse{
		Message:   "Ingestion jobs published successfully",
		Published: n,
	})
}

type datasetsResponse struct {
	Datasets []models.DatasetDescriptor `json:"datasets"`
}

func (s *Server) handleListDatasets(w http.ResponseWriter, r *http.Request) {
	datasets, err := s.deps.Datasets.List()
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, datasetsResponse{Datasets: datasets})
}

func (s *Server) handleReloadDatasets(w http.ResponseWriter, r *http.Request) {
	datasets, err := s.deps.Datasets.Reload()
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.logger.Info("datasets reloaded", "datasets", len(datasets))
	writeJSON(w, http.StatusOK, datasetsResponse{Datasets: datasets})
}

func (s *Server) handleIngestDataset(w http.ResponseWriter, r *http.Request) {
	dataset, err := s.deps.Datasets.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	job, err := s.deps.Jobs.Start(r.Context(), dataset.Job(), service.TriggerAdmin)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job.Snapshot())
}

type jobsResponse struct {
	Jobs []service.JobSnapshot `json:"jobs"`
}

func (s *Server) handleListJobs(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, jobsResponse{Jobs: s.deps.Jobs.ListJobs()})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.deps.Jobs.GetJob(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

type historyResponse struct {
	Runs []models.JobRun `json:"runs"`
}

func (s *Server) handleJobHistory(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			writeError(w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be an integer between 1 and 500")
			return
		}
		limit = n
	}
	runs, err := s.deps.Jobs.History(r.Context(), limit)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if runs == nil {
		runs = []models.JobRun{}
	}
	writeJSON(w, http.StatusOK, historyResponse{Runs: runs})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Metrics == nil {
		writeJSON(w, http.StatusOK, metrics.Snapshot{})
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Metrics.Snapshot())
}
