package server

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// replaySize bounds the events kept for Last-Event-ID resumption.
	replaySize = 1000

	// streamBuffer is the per-subscriber channel depth.
	streamBuffer = 64

	streamKeepalive   = 15 * time.Second
	streamRetryMillis = 5000
)

// streamEvent is one SSE frame.
type streamEvent struct {
	ID    uint64
	Topic string
	Data  []byte
}

// topicFilter holds NATS-style patterns ("althist.day.*", "althist.>").
// An empty filter matches every topic.
type topicFilter []string

func parseTopicFilter(q string) topicFilter {
	var f topicFilter
	for _, p := range strings.Split(q, ",") {
		if p = strings.TrimSpace(p); p != "" {
			f = append(f, p)
		}
	}
	return f
}

func (f topicFilter) Match(topic string) bool {
	if len(f) == 0 {
		return true
	}
	for _, p := range f {
		if topicMatches(p, topic) {
			return true
		}
	}
	return false
}

// topicMatches reports whether topic matches pattern. "*" matches exactly
// one segment and a trailing ">" matches one or more.
func topicMatches(pattern, topic string) bool {
	for {
		pp, pRest, pMore := strings.Cut(pattern, ".")
		if pp == ">" {
			return topic != ""
		}
		tp, tRest, tMore := strings.Cut(topic, ".")
		if topic == "" || (pp != "*" && pp != tp) {
			return false
		}
		if !pMore || !tMore {
			return pMore == tMore
		}
		pattern, topic = pRest, tRest
	}
}

type streamSub struct {
	filter  topicFilter
	ch      chan streamEvent
	dropped int
}

// streamHub assigns event IDs, keeps a replay window and fans events out.
// A single lock orders ID assignment, replay and delivery, so a subscriber
// that resumes never sees a gap or a duplicate between backlog and live events.
type streamHub struct {
	mu     sync.Mutex
	nextID uint64
	replay []streamEvent // ring of at most replaySize events
	head   int           // index of the oldest event once the ring is full
	subs   map[*streamSub]struct{}
}

func newStreamHub() *streamHub {
	return &streamHub{subs: make(map[*streamSub]struct{})}
}

func (h *streamHub) publish(topic string, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	evt := streamEvent{ID: h.nextID, Topic: topic, Data: data}
	if len(h.replay) < replaySize {
		h.replay = append(h.replay, evt)
	} else {
		h.replay[h.head] = evt
		h.head = (h.head + 1) % replaySize
	}

	for sub := range h.subs {
		if !sub.filter.Match(topic) {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			sub.dropped++
		}
	}
}

// subscribe registers a subscriber and returns the retained events after
// lastID that match filter. A zero lastID skips the backlog.
func (h *streamHub) subscribe(filter topicFilter, lastID uint64) (*streamSub, []streamEvent) {
	sub := &streamSub{filter: filter, ch: make(chan streamEvent, streamBuffer)}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs[sub] = struct{}{}
	if lastID == 0 {
		return sub, nil
	}
	var backlog []streamEvent
	for i := range h.replay {
		evt := h.replay[(h.head+i)%len(h.replay)]
		if evt.ID > lastID && filter.Match(evt.Topic) {
			backlog = append(backlog, evt)
		}
	}
	return sub, backlog
}

// unsubscribe removes sub and returns how many events it missed.
func (h *streamHub) unsubscribe(sub *streamSub) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, sub)
	return sub.dropped
}

func (h *streamHub) subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// lastEventID reads the resume point from the Last-Event-ID header, or from
// the last_event_id query parameter for clients that cannot set headers.
func lastEventID(r *http.Request) (uint64, string, error) {
	raw := r.Header.Get("Last-Event-ID")
	if raw == "" {
		raw = r.URL.Query().Get("last_event_id")
	}
	if raw == "" {
		return 0, "", nil
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	return id, raw, err
}

// handleEventStream serves GET /v1/events/stream.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	lastID, raw, err := lastEventID(r)
	if err != nil {
		s.log.Debug("ignoring malformed Last-Event-ID", zap.String("value", raw))
		lastID = 0
	}
	sub, backlog := s.stream.subscribe(parseTopicFilter(r.URL.Query().Get("topics")), lastID)
	defer func() {
		if missed := s.stream.unsubscribe(sub); missed > 0 {
			s.log.Warn("slow event stream client dropped events", zap.Int("dropped", missed))
		}
	}()

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "retry:%d\n\n", streamRetryMillis)
	for _, evt := range backlog {
		writeStreamEvent(w, evt)
	}
	flusher.Flush()

	keepalive := time.NewTicker(streamKeepalive)
	defer keepalive.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case evt := <-sub.ch:
			writeStreamEvent(w, evt)
			flusher.Flush()
		case <-keepalive.C:
			fmt.Fprint(w, ":keepalive\n\n")
			flusher.Flush()
		}
	}
}

func writeStreamEvent(w http.ResponseWriter, evt streamEvent) {
	fmt.Fprintf(w, "id:%d\nevent:%s\ndata:%s\n\n", evt.ID, evt.Topic, evt.Data)
}
