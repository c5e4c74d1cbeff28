package httpadapter

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/oa-knowledge-pipeline/internal/core/domain"
	"github.com/kirillkom/oa-knowledge-pipeline/internal/core/ports"
)

// Router is the thin REST surface. Reads hit the repository directly; every
// mutation submits a task envelope and answers with the task id, so the
// worker is the only place pipeline code runs.
type Router struct {
	repo   ports.FileRepository
	logs   ports.ProcessingLogStore
	queue  ports.TaskQueue
	logger *slog.Logger
}

func NewRouter(
	repo ports.FileRepository,
	logs ports.ProcessingLogStore,
	queue ports.TaskQueue,
	logger *slog.Logger,
) *Router {
	return &Router{
		repo:   repo,
		logs:   logs,
		queue:  queue,
		logger: logger,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("GET /api/v1/files", rt.listFiles)
	mux.HandleFunc("GET /api/v1/files/{id}", rt.getFile)
	mux.HandleFunc("POST /api/v1/files/{id}/process", rt.reprocessFile)
	mux.HandleFunc("POST /api/v1/files/{id}/approve", rt.approveFile)
	mux.HandleFunc("POST /api/v1/files/batch-process", rt.batchProcess)
	mux.HandleFunc("POST /api/v1/maintenance/version-dedup", rt.versionDedup)
	mux.HandleFunc("POST /api/v1/maintenance/expiration-check", rt.expirationCheck)
	mux.HandleFunc("GET /api/v1/statistics", rt.statistics)
	return requestIDMiddleware(accessLogMiddleware(rt.logger, mux))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) listFiles(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ports.FileFilter{
		Status:   domain.ProcessingStatus(q.Get("status")),
		Category: domain.BusinessCategory(q.Get("category")),
		Page:     atoiDefault(q.Get("page"), 1),
		Size:     atoiDefault(q.Get("size"), 20),
	}
	if raw := q.Get("main_text"); raw != "" {
		v := raw == "true" || raw == "1"
		filter.MainTextOnly = &v
	}
	if filter.Category != "" && !filter.Category.Valid() {
		writeError(w, http.StatusBadRequest, "unknown business category: "+string(filter.Category))
		return
	}

	records, total, err := rt.repo.List(r.Context(), filter)
	if err != nil {
		writeError(w, mapErrorToHTTPStatus(err), err.Error())
		return
	}
	if records == nil {
		records = []domain.FileRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": records,
		"total": total,
		"page":  filter.Page,
		"size":  filter.Size,
	})
}

func (rt *Router) getFile(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rec, err := rt.repo.GetByFileID(r.Context(), id)
	if err != nil {
		writeError(w, mapErrorToHTTPStatus(err), err.Error())
		return
	}

	entries, err := rt.logs.ListByFileID(r.Context(), id)
	if err != nil {
		writeError(w, mapErrorToHTTPStatus(err), err.Error())
		return
	}
	if entries == nil {
		entries = []domain.ProcessingLogEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"file": rec,
		"logs": entries,
	})
}

// reprocessFile resets a settled record to pending and enqueues it. Records a
// worker currently owns are rejected to avoid two claimers.
func (rt *Router) reprocessFile(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rec, err := rt.repo.GetByFileID(r.Context(), id)
	if err != nil {
		writeError(w, mapErrorToHTTPStatus(err), err.Error())
		return
	}
	if rec.Status.InFlight() {
		writeError(w, http.StatusConflict, "file is currently being processed")
		return
	}

	if err := rt.repo.ResetToPending(r.Context(), id, "manual reprocess requested"); err != nil {
		writeError(w, mapErrorToHTTPStatus(err), err.Error())
		return
	}
	task := domain.Task{
		ID:          uuid.NewString(),
		Kind:        domain.TaskProcessDocument,
		FileID:      id,
		SubmittedAt: time.Now().UTC(),
	}
	if err := rt.queue.Submit(r.Context(), task); err != nil {
		writeError(w, mapErrorToHTTPStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"file_id": id,
		"task_id": task.ID,
	})
}

// approveFile validates the review decision up front, then hands it to the
// worker as a task. The eligibility check here is advisory; the use case
// re-checks the status when the task runs.
func (rt *Router) approveFile(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req struct {
		Approved *bool  `json:"approved"`
		Comment  string `json:"comment"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Approved == nil {
		writeError(w, http.StatusBadRequest, "field 'approved' is required")
		return
	}

	rec, err := rt.repo.GetByFileID(r.Context(), id)
	if err != nil {
		writeError(w, mapErrorToHTTPStatus(err), err.Error())
		return
	}
	if rec.Status != domain.StatusAwaitingApproval {
		writeError(w, http.StatusConflict, "file is not awaiting review")
		return
	}

	task := domain.Task{
		ID:          uuid.NewString(),
		Kind:        domain.TaskApproveDocument,
		FileID:      id,
		Approved:    *req.Approved,
		Comment:     strings.TrimSpace(req.Comment),
		SubmittedAt: time.Now().UTC(),
	}
	if err := rt.queue.Submit(r.Context(), task); err != nil {
		writeError(w, mapErrorToHTTPStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"file_id":  id,
		"task_id":  task.ID,
		"approved": *req.Approved,
	})
}

func (rt *Router) batchProcess(w http.ResponseWriter, r *http.Request) {
	req := struct {
		Limit int `json:"limit"`
	}{}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json")
			return
		}
	}

	rt.submitMaintenance(w, r, domain.TaskBatchProcess, req.Limit)
}

func (rt *Router) versionDedup(w http.ResponseWriter, r *http.Request) {
	rt.submitMaintenance(w, r, domain.TaskVersionDedup, requestLimit(r))
}

func (rt *Router) expirationCheck(w http.ResponseWriter, r *http.Request) {
	rt.submitMaintenance(w, r, domain.TaskExpirationCheck, requestLimit(r))
}

// submitMaintenance enqueues a fire-and-forget maintenance task. A limit of
// zero defers to the worker's configured default.
func (rt *Router) submitMaintenance(w http.ResponseWriter, r *http.Request, kind domain.TaskKind, limit int) {
	if limit < 0 {
		limit = 0
	}
	task := domain.Task{
		ID:          uuid.NewString(),
		Kind:        kind,
		Limit:       limit,
		SubmittedAt: time.Now().UTC(),
	}
	if err := rt.queue.Submit(r.Context(), task); err != nil {
		writeError(w, mapErrorToHTTPStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"task_id": task.ID})
}

func (rt *Router) statistics(w http.ResponseWriter, r *http.Request) {
	counts, err := rt.repo.StatusCounts(r.Context())
	if err != nil {
		writeError(w, mapErrorToHTTPStatus(err), err.Error())
		return
	}

	total := 0
	byStatus := make(map[string]int, len(counts))
	for status, n := range counts {
		byStatus[string(status)] = n
		total += n
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total":     total,
		"by_status": byStatus,
	})
}

func requestLimit(r *http.Request) int {
	req := struct {
		Limit int `json:"limit"`
	}{}
	if r.Body != nil && r.ContentLength != 0 {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	return req.Limit
}

func atoiDefault(raw string, def int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
