// Package client talks to a running althist server: the public read API and
// the admin triggers over HTTP/JSON, and the health service over gRPC.
package client

import (
	"context"

	"github.com/shone114/alternate-history/internal/model"
	althistsync "github.com/shone114/alternate-history/internal/sync"
)

// Client is the interface the althist CLI commands use to reach a server.
type Client interface {
	// Read API
	Universe(ctx context.Context) (*model.Universe, error)
	Timeline(ctx context.Context, req *ListRequest) ([]*model.TimelineEvent, error)
	LatestEvent(ctx context.Context) (*model.TimelineEvent, error)
	Event(ctx context.Context, day int) (*model.TimelineEvent, error)
	Subtopics(ctx context.Context, req *ListRequest) ([]*model.Subtopic, error)
	Subtopic(ctx context.Context, day int) (*model.Subtopic, error)
	Proposals(ctx context.Context, req *ListRequest) ([]*model.Proposal, error)
	DayProposals(ctx context.Context, day int) ([]*model.Proposal, error)
	Judgments(ctx context.Context, req *ListRequest) ([]*model.Judgment, error)
	Judgment(ctx context.Context, day int) (*model.Judgment, error)

	// Admin
	RunDay(ctx context.Context) (*RunDayResponse, error)
	Reset(ctx context.Context) (*ResetResponse, error)
	Export(ctx context.Context) (*althistsync.Report, error)

	// Health
	Health(ctx context.Context) (string, error)

	// Lifecycle
	Close() error
}

// ListRequest holds paging parameters for list endpoints. Zero values use
// the server defaults.
type ListRequest struct {
	Skip  int             `json:"skip,omitempty"`
	Limit int             `json:"limit,omitempty"`
	Order model.SortOrder `json:"order,omitempty"`
}

// RunDayResponse is the response from RunDay.
type RunDayResponse struct {
	Message string `json:"message"`
	model.CycleResult
}

// ResetResponse is the response from Reset.
type ResetResponse struct {
	Message    string                     `json:"message"`
	UniverseID string                     `json:"universe_id"`
	Deleted    map[model.Collection]int64 `json:"deleted"`
}
