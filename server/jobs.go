package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/brandforge/brandforge/engine"
)

const (
	defaultJobLimit = 50
	maxJobLimit     = 200
)

type submitJobRequest struct {
	Kind       string            `json:"kind"`
	TotalItems int               `json:"total_items"`
	Items      []json.RawMessage `json:"items"`
}

type submitJobResponse struct {
	JobID      string           `json:"job_id"`
	Status     engine.JobStatus `json:"status"`
	TotalItems int              `json:"total_items"`
}

// HandleJobs handles requests to /api/jobs
// POST: submit a new generation job, returns 202 immediately
// GET: list the tenant's jobs
func (s *Server) HandleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleSubmitJob(w, r)
	case http.MethodGet:
		s.handleListJobs(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// HandleJob handles requests to /api/jobs/{id}
// GET: progress snapshot, including the result once terminal
func (s *Server) HandleJob(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}

	jobID := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	if jobID == "" || strings.Contains(jobID, "/") {
		writeError(w, http.StatusBadRequest, "Missing job ID")
		return
	}

	snapshot, err := s.reporter.GetProgress(r.Context(), tenantID, jobID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	ownerID := r.Header.Get("X-User-ID")

	var req submitJobRequest
	if err := readJSON(w, r, &req); err != nil {
		return
	}

	workflow := s.registry.Get(req.Kind)
	if workflow == nil {
		writeError(w, http.StatusBadRequest, "Unknown job kind: "+req.Kind)
		return
	}

	totalItems := req.TotalItems
	if totalItems == 0 {
		totalItems = len(req.Items)
	}
	if totalItems != len(req.Items) {
		writeError(w, http.StatusBadRequest, "total_items does not match the number of items")
		return
	}

	work, err := workflow.Work(req.Items)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	job, err := s.dispatcher.Submit(r.Context(), engine.SubmitRequest{
		TenantID:   tenantID,
		OwnerID:    ownerID,
		Kind:       req.Kind,
		TotalItems: totalItems,
		Work:       work,
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}

	s.logger.Infow("Job submitted",
		"job_id", shortID(job.ID),
		"tenant_id", tenantID,
		"kind", job.Kind,
		"total_items", job.TotalItems,
	)

	writeJSON(w, http.StatusAccepted, submitJobResponse{
		JobID:      job.ID,
		Status:     job.Status,
		TotalItems: job.TotalItems,
	})
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}

	limit := parseIntQueryParam(r, "limit", defaultJobLimit, 1, maxJobLimit)

	var status *engine.JobStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		if !engine.IsValidStatus(raw) {
			writeError(w, http.StatusBadRequest, "Invalid status filter: "+raw)
			return
		}
		st := engine.JobStatus(raw)
		status = &st
	}

	jobs, err := s.store.List(r.Context(), tenantID, status, limit)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	snapshots := make([]*engine.Snapshot, 0, len(jobs))
	for _, job := range jobs {
		snapshots = append(snapshots, s.reporter.Snapshot(job))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  snapshots,
		"count": len(snapshots),
	})
}
