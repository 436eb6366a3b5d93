package events

import (
	"context"
	"encoding/json"

	"github.com/shone114/alternate-history/internal/model"
)

// Event topic constants
const (
	TopicDayStarted    = "althist.day.started"
	TopicDayState      = "althist.day.state"
	TopicDayCommitted  = "althist.day.committed"
	TopicDayFailed     = "althist.day.failed"
	TopicUniverseReset = "althist.universe.reset"
	TopicExported      = "althist.export.completed"

	// TopicAll matches every topic above.
	TopicAll = "althist.>"
)

// Event types

type DayStarted struct {
	RunID      string `json:"run_id"`
	UniverseID string `json:"universe_id"`
	DayIndex   int    `json:"day_index"`
}

// DayState is emitted on every state-machine transition of a cycle.
type DayState struct {
	RunID      string `json:"run_id"`
	UniverseID string `json:"universe_id"`
	DayIndex   int    `json:"day_index"`
	From       string `json:"from"`
	To         string `json:"to"`
}

type DayCommitted struct {
	UniverseID string             `json:"universe_id"`
	Result     *model.CycleResult `json:"result"`
}

type DayFailed struct {
	RunID      string `json:"run_id"`
	UniverseID string `json:"universe_id"`
	DayIndex   int    `json:"day_index"`
	State      string `json:"state"`
	Step       string `json:"step"`
	Error      string `json:"error"`
}

type UniverseReset struct {
	Result *model.ResetResult `json:"result"`
}

type Exported struct {
	UniverseID  string `json:"universe_id"`
	Destination string `json:"destination"`
	Records     int    `json:"records"`
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}

// Message is one event as delivered to a subscriber.
type Message struct {
	Topic string
	Data  json.RawMessage
}

// Decode unmarshals the event payload into v.
func (m Message) Decode(v any) error {
	return json.Unmarshal(m.Data, v)
}

// Subscriber receives events from the event bus.
type Subscriber interface {
	// Subscribe delivers events matching topic (wildcards allowed) until the
	// returned cancel function is called, which also closes the channel.
	Subscribe(topic string) (<-chan Message, func(), error)
	Close() error
}

// NoopPublisher discards every event. It is used when NATS is not configured.
type NoopPublisher struct{}

func (*NoopPublisher) Publish(context.Context, string, any) error { return nil }
func (*NoopPublisher) Close() error                               { return nil }
