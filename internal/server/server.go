// Package server exposes a universe over HTTP (read API, admin triggers,
// SSE) and gRPC (health and reflection).
package server

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/shone114/alternate-history/internal/events"
	"github.com/shone114/alternate-history/internal/metrics"
	"github.com/shone114/alternate-history/internal/model"
	"github.com/shone114/alternate-history/internal/pipeline"
	"github.com/shone114/alternate-history/internal/store"
	althistsync "github.com/shone114/alternate-history/internal/sync"
)

// Pipeline is the trigger surface of the orchestrator.
type Pipeline interface {
	RunDay(ctx context.Context) (*model.CycleResult, error)
	Reset(ctx context.Context) (*model.ResetResult, error)
}

// Exporter runs an export on demand.
type Exporter interface {
	Enabled() bool
	ExportOnce(ctx context.Context) (*althistsync.Report, error)
}

// Server serves one universe.
type Server struct {
	store      store.Store
	universeID string
	pipeline   Pipeline
	exporter   Exporter
	metrics    *metrics.Collector
	stream     *streamHub
	log        *zap.Logger
}

// Options carries the optional collaborators of a Server.
type Options struct {
	Exporter Exporter
	Metrics  *metrics.Collector
	Logger   *zap.Logger
}

// New returns a Server for universeID. Register the returned Server as a
// pipeline.Observer to feed the event stream.
func New(s store.Store, universeID string, p Pipeline, opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		store:      s,
		universeID: universeID,
		pipeline:   p,
		exporter:   opts.Exporter,
		metrics:    opts.Metrics,
		stream:     newStreamHub(),
		log:        log.Named("server"),
	}
}

// CycleTransition implements pipeline.Observer by fanning transitions out to
// event stream clients.
func (s *Server) CycleTransition(t pipeline.Transition) {
	switch t.To {
	case pipeline.StateCommitted:
		s.broadcastEvent(events.TopicDayCommitted, events.DayCommitted{UniverseID: t.UniverseID, Result: t.Result})
	case pipeline.StateFailed:
		s.broadcastEvent(events.TopicDayFailed, events.DayFailed{
			RunID:      t.RunID,
			UniverseID: t.UniverseID,
			DayIndex:   t.DayIndex,
			State:      string(t.To),
			Step:       string(t.Step),
			Error:      t.Error,
		})
	default:
		s.broadcastEvent(events.TopicDayState, events.DayState{
			RunID:      t.RunID,
			UniverseID: t.UniverseID,
			DayIndex:   t.DayIndex,
			From:       string(t.From),
			To:         string(t.To),
		})
	}
}

// broadcastEvent fans an event out to event stream clients.
func (s *Server) broadcastEvent(topic string, event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		s.log.Warn("failed to marshal stream event", zap.String("topic", topic), zap.Error(err))
		return
	}
	s.stream.publish(topic, payload)
}

// inputError indicates invalid user input.
// Transport layers map this to 400 / InvalidArgument.
type inputError string

func (e inputError) Error() string { return string(e) }
