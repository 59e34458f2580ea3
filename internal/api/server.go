// Package api exposes the monitoring engine over HTTP
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/socialguard/mentions-monitor/internal/language"
	"github.com/socialguard/mentions-monitor/internal/models"
	"github.com/socialguard/mentions-monitor/internal/monitoring"
	"github.com/socialguard/mentions-monitor/internal/resilience"
	"github.com/socialguard/mentions-monitor/internal/search"
	"github.com/socialguard/mentions-monitor/internal/storage"
)

// Monitor is the part of the engine the HTTP surface drives
type Monitor interface {
	GetStats() monitoring.Stats
	GetActiveJobs() []models.MonitoringJob
	GetCircuitBreakerStatus() map[string]resilience.BreakerStatus
	HasJob(caseID string) bool
	Scan(caseID string) (int, error)
	StartMonitoringJob(job models.MonitoringJob) error
	StopMonitoringJob(caseID string)
	SyncActiveCases(ctx context.Context) (monitoring.SyncResult, error)
}

// CaseStore is the persisted side of case control. Start and stop write the
// case status back so the periodic case sync agrees with them.
type CaseStore interface {
	GetCase(ctx context.Context, id string) (models.CaseRecord, error)
	UpsertCase(ctx context.Context, c models.CaseRecord) error
	ListMentions(ctx context.Context, caseID string, limit int) ([]models.Mention, error)
	CountAlerts(ctx context.Context, caseID string) (int, error)
	Ping(ctx context.Context) error
}

// Server holds the handlers' dependencies
type Server struct {
	monitor         Monitor
	cases           CaseStore
	detector        *language.Detector
	defaultInterval time.Duration
}

// NewServer creates the HTTP surface
func NewServer(monitor Monitor, cases CaseStore, defaultInterval time.Duration) *Server {
	return &Server{
		monitor:         monitor,
		cases:           cases,
		detector:        language.NewDetector(),
		defaultInterval: defaultInterval,
	}
}

// Router builds the route table
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/health", s.healthHandler).Methods(http.MethodGet)
	router.HandleFunc("/stats", s.statsHandler).Methods(http.MethodGet)
	router.HandleFunc("/jobs", s.jobsHandler).Methods(http.MethodGet)
	router.HandleFunc("/breakers", s.breakersHandler).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	router.HandleFunc("/cases/sync", s.syncHandler).Methods(http.MethodPost)
	router.HandleFunc("/cases/{id}/scan", s.scanHandler).Methods(http.MethodPost)
	router.HandleFunc("/cases/{id}/start", s.startHandler).Methods(http.MethodPost)
	router.HandleFunc("/cases/{id}/stop", s.stopHandler).Methods(http.MethodPost)
	router.HandleFunc("/cases/{id}/mentions", s.mentionsHandler).Methods(http.MethodGet)

	router.HandleFunc("/keywords/parse", s.parseKeywordsHandler).Methods(http.MethodGet)
	router.HandleFunc("/keywords/build", s.buildKeywordsHandler).Methods(http.MethodPost)
	router.HandleFunc("/language/detect", s.detectLanguageHandler).Methods(http.MethodGet)

	return router
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	body := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	}

	if s.cases != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.cases.Ping(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body["status"] = "unhealthy"
			body["error"] = err.Error()
		}
	}

	writeJSON(w, status, body)
}

func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.monitor.GetStats())
}

func (s *Server) jobsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.monitor.GetActiveJobs())
}

func (s *Server) breakersHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.monitor.GetCircuitBreakerStatus())
}

func (s *Server) scanHandler(w http.ResponseWriter, r *http.Request) {
	caseID := mux.Vars(r)["id"]

	inserted, err := s.monitor.Scan(caseID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, models.ScanResult{Success: true, MentionsFound: inserted})
	case errors.Is(err, monitoring.ErrJobNotFound):
		writeJSON(w, http.StatusNotFound, models.ScanResult{Error: err.Error()})
	case errors.Is(err, monitoring.ErrScanInProgress):
		writeJSON(w, http.StatusConflict, models.ScanResult{Error: err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, models.ScanResult{Error: err.Error()})
	}
}

func (s *Server) startHandler(w http.ResponseWriter, r *http.Request) {
	caseID := mux.Vars(r)["id"]

	record, err := s.cases.GetCase(r.Context(), caseID)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "case not found")
		return
	}
	if err != nil {
		logrus.WithField("case_id", caseID).Errorf("Failed to load case: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to load case")
		return
	}

	job, err := record.ToJob(s.defaultInterval)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	if err := s.setStatus(r.Context(), record, models.CaseStatusActive); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to activate case")
		return
	}

	if err := s.monitor.StartMonitoringJob(job); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, monitoring.ErrEngineClosed) {
			status = http.StatusServiceUnavailable
		}
		writeError(w, status, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) stopHandler(w http.ResponseWriter, r *http.Request) {
	caseID := mux.Vars(r)["id"]

	record, err := s.cases.GetCase(r.Context(), caseID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		// jobs added without a stored case can still be stopped
		if !s.monitor.HasJob(caseID) {
			writeError(w, http.StatusNotFound, "case not found")
			return
		}
	case err != nil:
		logrus.WithField("case_id", caseID).Errorf("Failed to load case: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to load case")
		return
	case record.Status == models.CaseStatusActive:
		if err := s.setStatus(r.Context(), record, models.CaseStatusPaused); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to pause case")
			return
		}
	}

	s.monitor.StopMonitoringJob(caseID)
	writeJSON(w, http.StatusOK, map[string]string{"caseId": caseID, "status": "stopped"})
}

// setStatus persists a case status change. Records already in that status
// are not rewritten.
func (s *Server) setStatus(ctx context.Context, record models.CaseRecord, status string) error {
	if record.Status == status {
		return nil
	}
	record.Status = status
	record.UpdatedAt = time.Now().UTC()
	if err := s.cases.UpsertCase(ctx, record); err != nil {
		logrus.WithField("case_id", record.ID).Errorf("Failed to set case status to %s: %v", status, err)
		return err
	}
	return nil
}

type mentionsResponse struct {
	CaseID     string           `json:"caseId"`
	AlertCount int              `json:"alertCount"`
	Mentions   []models.Mention `json:"mentions"`
}

func (s *Server) mentionsHandler(w http.ResponseWriter, r *http.Request) {
	caseID := mux.Vars(r)["id"]

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	mentions, err := s.cases.ListMentions(r.Context(), caseID, limit)
	if err != nil {
		logrus.WithField("case_id", caseID).Errorf("Failed to list mentions: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list mentions")
		return
	}
	alerts, err := s.cases.CountAlerts(r.Context(), caseID)
	if err != nil {
		logrus.WithField("case_id", caseID).Errorf("Failed to count alerts: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to count alerts")
		return
	}

	if mentions == nil {
		mentions = []models.Mention{}
	}
	writeJSON(w, http.StatusOK, mentionsResponse{CaseID: caseID, AlertCount: alerts, Mentions: mentions})
}

func (s *Server) syncHandler(w http.ResponseWriter, r *http.Request) {
	result, err := s.monitor.SyncActiveCases(r.Context())
	if err != nil {
		logrus.Errorf("Case sync failed: %v", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type keywordsResponse struct {
	Query  string         `json:"query"`
	Groups []search.Group `json:"groups"`
}

func (s *Server) parseKeywordsHandler(w http.ResponseWriter, r *http.Request) {
	groups := search.ParseQuery(r.URL.Query().Get("q"))
	writeJSON(w, http.StatusOK, keywordsResponse{
		Query:  search.BuildQuery(groups),
		Groups: groups.List(),
	})
}

func (s *Server) buildKeywordsHandler(w http.ResponseWriter, r *http.Request) {
	var list []search.Group
	if err := json.NewDecoder(r.Body).Decode(&list); err != nil {
		writeError(w, http.StatusBadRequest, "body must be a list of keyword groups")
		return
	}

	groups := search.FromList(list)
	if err := groups.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, keywordsResponse{
		Query:  search.BuildQuery(groups),
		Groups: groups.List(),
	})
}

func (s *Server) detectLanguageHandler(w http.ResponseWriter, r *http.Request) {
	text := r.URL.Query().Get("text")
	if strings.TrimSpace(text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	writeJSON(w, http.StatusOK, s.detector.Detect(text))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.Errorf("Failed to write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
