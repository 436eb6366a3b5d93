package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/shone114/alternate-history/internal/model"
	"github.com/shone114/alternate-history/internal/store"
)

// handleGetUniverse handles GET /v1/universe.
func (s *Server) handleGetUniverse(w http.ResponseWriter, r *http.Request) {
	u, err := s.store.GetUniverse(r.Context(), s.universeID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "universe not found")
		return
	}
	if err != nil {
		s.log.Error("failed to get universe", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to get universe")
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// handleListTimeline handles GET /v1/timeline.
func (s *Server) handleListTimeline(w http.ResponseWriter, r *http.Request) {
	listRecords[*model.TimelineEvent](s, w, r, model.CollectionTimeline)
}

// handleLatestTimeline handles GET /v1/timeline/latest.
func (s *Server) handleLatestTimeline(w http.ResponseWriter, r *http.Request) {
	event, err := store.FindOneAs[*model.TimelineEvent](r.Context(), s.store, model.CollectionTimeline,
		model.Filter{UniverseID: s.universeID}, model.SortDesc)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "No events found")
		return
	}
	if err != nil {
		s.log.Error("failed to get latest event", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to get latest event")
		return
	}
	writeJSON(w, http.StatusOK, event)
}

// handleGetTimelineDay handles GET /v1/timeline/{day}.
func (s *Server) handleGetTimelineDay(w http.ResponseWriter, r *http.Request) {
	getDayRecord[*model.TimelineEvent](s, w, r, model.CollectionTimeline, "Event")
}

// handleListSubtopics handles GET /v1/subtopics.
func (s *Server) handleListSubtopics(w http.ResponseWriter, r *http.Request) {
	listRecords[*model.Subtopic](s, w, r, model.CollectionSubtopics)
}

// handleGetSubtopicDay handles GET /v1/subtopics/{day}.
func (s *Server) handleGetSubtopicDay(w http.ResponseWriter, r *http.Request) {
	getDayRecord[*model.Subtopic](s, w, r, model.CollectionSubtopics, "Subtopic")
}

// handleListProposals handles GET /v1/proposals.
func (s *Server) handleListProposals(w http.ResponseWriter, r *http.Request) {
	listRecords[*model.Proposal](s, w, r, model.CollectionProposals)
}

// handleGetProposalsDay handles GET /v1/proposals/{day}. A day holds at most
// one proposal per role; an empty list means none were stored.
func (s *Server) handleGetProposalsDay(w http.ResponseWriter, r *http.Request) {
	day, err := parseDay(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	proposals, err := store.FindAs[*model.Proposal](r.Context(), s.store, model.CollectionProposals,
		model.Filter{UniverseID: s.universeID, DayIndex: day}, model.SortAsc, 0, 0)
	if err != nil {
		s.log.Error("failed to list proposals", zap.Int("day_index", day), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list proposals")
		return
	}
	writeJSON(w, http.StatusOK, proposals)
}

// handleListJudgments handles GET /v1/judgments.
func (s *Server) handleListJudgments(w http.ResponseWriter, r *http.Request) {
	listRecords[*model.Judgment](s, w, r, model.CollectionJudgments)
}

// handleGetJudgmentDay handles GET /v1/judgments/{day}.
func (s *Server) handleGetJudgmentDay(w http.ResponseWriter, r *http.Request) {
	getDayRecord[*model.Judgment](s, w, r, model.CollectionJudgments, "Judgment")
}

// listRecords writes one page of a collection as a JSON array.
func listRecords[T model.Record](s *Server, w http.ResponseWriter, r *http.Request, coll model.Collection) {
	page, order, err := parsePage(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	recs, err := store.FindAs[T](r.Context(), s.store, coll, model.Filter{UniverseID: s.universeID}, order, page.Skip, page.Limit)
	if err != nil {
		s.log.Error("failed to list records", zap.String("collection", string(coll)), zap.Error(err))
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to list %s", coll))
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

// getDayRecord writes the single record of a collection for the {day} path
// value.
func getDayRecord[T model.Record](s *Server, w http.ResponseWriter, r *http.Request, coll model.Collection, noun string) {
	day, err := parseDay(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rec, err := findDay[T](r.Context(), s.store, coll, s.universeID, day)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("%s for day %d not found", noun, day))
		return
	}
	if err != nil {
		s.log.Error("failed to get record", zap.String("collection", string(coll)), zap.Int("day_index", day), zap.Error(err))
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to get %s", coll))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func findDay[T model.Record](ctx context.Context, st store.Store, coll model.Collection, universeID string, day int) (T, error) {
	return store.FindOneAs[T](ctx, st, coll, model.Filter{UniverseID: universeID, DayIndex: day}, model.SortAsc)
}
