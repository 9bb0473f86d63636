package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ats-autopilot/internal/autofill"
	"ats-autopilot/internal/breaker"
	"ats-autopilot/internal/config"
	"ats-autopilot/internal/dispatch"
	"ats-autopilot/internal/match"
	"ats-autopilot/internal/models"
	"ats-autopilot/internal/schedule"
	"ats-autopilot/internal/store"
	"ats-autopilot/internal/telemetry"
)

// Server wires the HTTP control plane: scheduling, queue operations, and
// autofill previews.
type Server struct {
	cfg        config.Config
	sched      *schedule.Scheduler
	dispatcher *dispatch.Dispatcher
	breakers   *breaker.Registry
	previewer  *autofill.Orchestrator
}

// New constructs the API server.
func New(cfg config.Config, sched *schedule.Scheduler, d *dispatch.Dispatcher, breakers *breaker.Registry) *Server {
	return &Server{
		cfg:        cfg,
		sched:      sched,
		dispatcher: d,
		breakers:   breakers,
		previewer:  autofill.New(nil, nil, nil, match.NewEngine()),
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Mount("/metrics", telemetry.Handler())

	r.Post("/applications", s.handleSchedule)
	r.Post("/applications/bulk", s.handleScheduleBulk)
	r.Get("/applications/{id}", s.handleGetApplication)
	r.Post("/applications/{id}/cancel", s.handleCancel)
	r.Post("/applications/{id}/retry", s.handleRetry)
	r.Delete("/applications/{id}", s.handleRemove)
	r.Get("/users/{id}/applications", s.handleUserApplications)
	r.Get("/stats", s.handleStats)
	r.Get("/queue/stats", s.handleQueueStats)
	r.Post("/queue/pause", s.handlePause)
	r.Post("/queue/resume", s.handleResume)
	r.Get("/dlq", s.handleDLQ)
	r.Get("/breakers", s.handleBreakers)
	r.Post("/autofill/preview", s.handlePreview)
	return r
}

type scheduleRequest struct {
	UserID   string                 `json:"user_id"`
	JobID    string                 `json:"job_id"`
	JobURL   string                 `json:"job_url"`
	Platform string                 `json:"platform"`
	Priority string                 `json:"priority"`
	Window   *schedule.WindowConfig `json:"window,omitempty"`
	Metadata map[string]any         `json:"metadata,omitempty"`
}

func (s *Server) window(req *schedule.WindowConfig) schedule.WindowConfig {
	if req != nil {
		return *req
	}
	return schedule.DefaultWindow(s.cfg)
}

func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.UserID == "" || req.JobID == "" {
		http.Error(w, "user_id and job_id are required", http.StatusBadRequest)
		return
	}
	priority := models.Priority(req.Priority)
	if req.Priority == "" {
		priority = models.PriorityNormal
	}
	if !priority.Valid() {
		http.Error(w, "invalid priority", http.StatusBadRequest)
		return
	}
	platform := req.Platform
	if platform == "" {
		platform = dispatch.DetectPlatform(req.JobURL)
	}

	job, err := s.sched.ScheduleApplication(r.Context(), schedule.Request{
		UserID:   req.UserID,
		JobID:    req.JobID,
		JobURL:   req.JobURL,
		Platform: platform,
		Priority: priority,
		Window:   s.window(req.Window),
		Metadata: req.Metadata,
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

type bulkRequest struct {
	UserID   string                 `json:"user_id"`
	Priority string                 `json:"priority"`
	Window   *schedule.WindowConfig `json:"window,omitempty"`
	Items    []dispatch.BulkItem    `json:"items"`
}

func (s *Server) handleScheduleBulk(w http.ResponseWriter, r *http.Request) {
	var req bulkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.UserID == "" || len(req.Items) == 0 {
		http.Error(w, "user_id and items are required", http.StatusBadRequest)
		return
	}
	priority := models.Priority(req.Priority)
	if req.Priority == "" {
		priority = models.PriorityNormal
	}
	if !priority.Valid() {
		http.Error(w, "invalid priority", http.StatusBadRequest)
		return
	}
	outcomes := s.dispatcher.AddBulkApplications(r.Context(), req.UserID, priority, s.window(req.Window), req.Items)
	writeJSON(w, http.StatusAccepted, map[string]any{"outcomes": outcomes})
}

func (s *Server) handleGetApplication(w http.ResponseWriter, r *http.Request) {
	job, err := s.sched.GetJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "application not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	err := s.sched.CancelJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, schedule.ErrNotCancellable) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	if err := s.sched.RetryJob(r.Context(), chi.URLParam(r, "id")); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "requeued"})
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	if err := s.sched.RemoveJob(r.Context(), chi.URLParam(r, "id")); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

func (s *Server) handleUserApplications(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.sched.GetUserJobs(r.Context(), chi.URLParam(r, "id"), 200)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if jobs == nil {
		jobs = []models.ScheduledJob{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"applications": jobs})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.sched.GetStats(r.Context(), r.URL.Query().Get("user_id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleQueueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.sched.GetStats(r.Context(), "")
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stats.Queue)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	if err := s.sched.Pause(r.Context()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "paused"})
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	if err := s.sched.Resume(r.Context()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "resumed"})
}

func (s *Server) handleDLQ(w http.ResponseWriter, r *http.Request) {
	items, err := s.sched.DeadLetters(r.Context(), 100)
	if err != nil {
		http.Error(w, "failed to read dlq", http.StatusInternalServerError)
		return
	}
	if items == nil {
		items = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) handleBreakers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.breakers.Snapshot())
}

type previewRequest struct {
	Fields       []models.DetectedField `json:"fields"`
	Profile      models.Profile         `json:"profile"`
	Resume       models.Resume          `json:"resume"`
	SavedAnswers []models.SavedAnswer   `json:"saved_answers,omitempty"`
}

// handlePreview scores a detected form without touching the page, so a
// client can show what would be filled and at what confidence.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if len(req.Fields) == 0 {
		http.Error(w, "fields are required", http.StatusBadRequest)
		return
	}
	result := s.previewer.PreviewAutofill(req.Fields, match.Sources{
		Profile:      req.Profile,
		Resume:       req.Resume,
		SavedAnswers: req.SavedAnswers,
	})
	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
