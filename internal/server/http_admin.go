package server

import (
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/shone114/alternate-history/internal/model"
	"github.com/shone114/alternate-history/internal/pipeline"
	althistsync "github.com/shone114/alternate-history/internal/sync"
)

// runDayResponse is the body of a successful POST /v1/admin/days.
type runDayResponse struct {
	Message string `json:"message"`
	*model.CycleResult
}

// cycleFailure is the body of a failed POST /v1/admin/days.
type cycleFailure struct {
	Error    string `json:"error"`
	RunID    string `json:"run_id,omitempty"`
	DayIndex int    `json:"day_index"`
	State    string `json:"state"`
	Step     string `json:"step"`
}

// handleRunDay handles POST /v1/admin/days. The cycle runs on the request
// context, so a client that disconnects cancels its cycle.
func (s *Server) handleRunDay(w http.ResponseWriter, r *http.Request) {
	result, err := s.pipeline.RunDay(r.Context())
	if err != nil {
		s.writeCycleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, runDayResponse{
		Message:     fmt.Sprintf("Day %d simulation completed successfully", result.DayIndex),
		CycleResult: result,
	})
}

func (s *Server) writeCycleError(w http.ResponseWriter, err error) {
	if errors.Is(err, pipeline.ErrCycleInProgress) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	ce, ok := pipeline.AsCycleError(err)
	if !ok {
		s.log.Error("day-cycle failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	status := http.StatusBadGateway
	if errors.Is(err, pipeline.ErrDayConflict) {
		status = http.StatusConflict
	}
	s.log.Warn("day-cycle failed",
		zap.Int("day_index", ce.DayIndex),
		zap.String("step", string(ce.Step)),
		zap.Error(ce.Err))
	writeJSON(w, status, cycleFailure{
		Error:    ce.Error(),
		RunID:    ce.RunID,
		DayIndex: ce.DayIndex,
		State:    string(ce.State),
		Step:     string(ce.Step),
	})
}

// handleReset handles POST /v1/admin/reset.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	res, err := s.pipeline.Reset(r.Context())
	if errors.Is(err, pipeline.ErrCycleInProgress) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		s.log.Error("reset failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Reset failed: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":     "Simulation reset successfully",
		"universe_id": res.UniverseID,
		"deleted":     res.Deleted,
	})
}

// handleExport handles POST /v1/admin/export.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if s.exporter == nil || !s.exporter.Enabled() {
		writeError(w, http.StatusNotImplemented, althistsync.ErrNoDestinations.Error())
		return
	}
	report, err := s.exporter.ExportOnce(r.Context())
	if err != nil {
		s.log.Error("export failed", zap.Error(err))
		status := http.StatusInternalServerError
		if report != nil && len(report.Failed) < len(report.Destinations) {
			status = http.StatusMultiStatus
		}
		writeJSON(w, status, map[string]any{"error": err.Error(), "report": report})
		return
	}
	writeJSON(w, http.StatusOK, report)
}
