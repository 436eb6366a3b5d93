package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/shone114/alternate-history/internal/model"
)

// NewHTTPHandler returns an http.Handler with all routes registered.
// When adminToken is non-empty, requests under /v1/admin/ must present it as
// a Bearer token or in the X-Admin-Key header. The read API is public.
func (s *Server) NewHTTPHandler(adminToken string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/health", s.handleHealth)
	mux.HandleFunc("GET /v1/universe", s.handleGetUniverse)
	mux.HandleFunc("GET /v1/timeline", s.handleListTimeline)
	mux.HandleFunc("GET /v1/timeline/latest", s.handleLatestTimeline)
	mux.HandleFunc("GET /v1/timeline/{day}", s.handleGetTimelineDay)
	mux.HandleFunc("GET /v1/subtopics", s.handleListSubtopics)
	mux.HandleFunc("GET /v1/subtopics/{day}", s.handleGetSubtopicDay)
	mux.HandleFunc("GET /v1/proposals", s.handleListProposals)
	mux.HandleFunc("GET /v1/proposals/{day}", s.handleGetProposalsDay)
	mux.HandleFunc("GET /v1/judgments", s.handleListJudgments)
	mux.HandleFunc("GET /v1/judgments/{day}", s.handleGetJudgmentDay)
	mux.HandleFunc("GET /v1/events/stream", s.handleEventStream)
	mux.Handle("GET /metrics", s.metrics.Handler())
	mux.HandleFunc("POST /v1/admin/days", s.handleRunDay)
	mux.HandleFunc("POST /v1/admin/reset", s.handleReset)
	mux.HandleFunc("POST /v1/admin/export", s.handleExport)

	corsHandler := cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "Last-Event-ID", AdminKeyHeader},
		MaxAge:         300,
	})
	return corsHandler(AuthMiddleware(adminToken, mux))
}

// handleHealth handles GET /v1/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.log.Warn("health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "universe_id": s.universeID})
}

// parsePage reads skip, limit and order query parameters. Negative or
// non-numeric values are rejected; limits above the maximum are clamped.
func parsePage(r *http.Request) (model.Page, model.SortOrder, error) {
	q := r.URL.Query()
	var page model.Page
	if v := q.Get("skip"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return page, "", inputError("skip must be a non-negative integer")
		}
		page.Skip = n
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return page, "", inputError("limit must be a positive integer")
		}
		page.Limit = n
	}
	order := model.SortDesc
	switch v := q.Get("order"); v {
	case "":
	case string(model.SortAsc), string(model.SortDesc):
		order = model.SortOrder(v)
	default:
		return page, "", inputError("order must be asc or desc")
	}
	return page.Clamp(), order, nil
}

// parseDay reads the {day} path value.
func parseDay(r *http.Request) (int, error) {
	n, err := strconv.Atoi(r.PathValue("day"))
	if err != nil || n < 1 {
		return 0, inputError("day must be a positive integer")
	}
	return n, nil
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
