package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shone114/alternate-history/internal/events"
	"github.com/shone114/alternate-history/internal/model"
	"github.com/shone114/alternate-history/internal/pipeline"
)

func recv(t *testing.T, sub *streamSub) streamEvent {
	t.Helper()
	select {
	case evt := <-sub.ch:
		return evt
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return streamEvent{}
}

func TestTopicMatches(t *testing.T) {
	tests := []struct {
		pattern, topic string
		want           bool
	}{
		{"althist.day.committed", "althist.day.committed", true},
		{"althist.day.committed", "althist.day.failed", false},
		{"althist.day.*", "althist.day.state", true},
		{"althist.*", "althist.day.state", false},
		{"althist.*.reset", "althist.universe.reset", true},
		{"althist.>", "althist.day.committed", true},
		{"althist.>", "althist.export.completed", true},
		{"althist.>", "althist", false},
		{">", "althist.day.state", true},
		{"althist.day", "althist.day.state", false},
		{"althist.day.state.extra", "althist.day.state", false},
		{"*", "", false},
	}
	for _, tc := range tests {
		t.Run(tc.pattern+"|"+tc.topic, func(t *testing.T) {
			if got := topicMatches(tc.pattern, tc.topic); got != tc.want {
				t.Fatalf("topicMatches(%q, %q) = %v, want %v", tc.pattern, tc.topic, got, tc.want)
			}
		})
	}
}

func TestParseTopicFilter(t *testing.T) {
	f := parseTopicFilter(" althist.day.committed, ,althist.universe.* ")
	if len(f) != 2 || f[0] != "althist.day.committed" || f[1] != "althist.universe.*" {
		t.Fatalf("unexpected filter %q", f)
	}
	if parseTopicFilter("") != nil {
		t.Fatal("empty query should give an empty filter")
	}
	if !topicFilter(nil).Match("anything.at.all") {
		t.Fatal("empty filter should match everything")
	}
}

func TestStreamHub_PublishFiltersAndOrders(t *testing.T) {
	hub := newStreamHub()
	all, _ := hub.subscribe(nil, 0)
	defer hub.unsubscribe(all)
	commits, _ := hub.subscribe(topicFilter{events.TopicDayCommitted, "althist.universe.*"}, 0)
	defer hub.unsubscribe(commits)

	hub.publish(events.TopicDayState, []byte(`{"n":1}`))
	hub.publish(events.TopicDayCommitted, []byte(`{"n":2}`))
	hub.publish(events.TopicUniverseReset, []byte(`{"n":3}`))

	for want := uint64(1); want <= 3; want++ {
		if evt := recv(t, all); evt.ID != want {
			t.Fatalf("expected ID %d, got %d", want, evt.ID)
		}
	}
	if evt := recv(t, commits); evt.Topic != events.TopicDayCommitted || evt.ID != 2 {
		t.Fatalf("unexpected event %+v", evt)
	}
	if evt := recv(t, commits); evt.Topic != events.TopicUniverseReset {
		t.Fatalf("unexpected event %+v", evt)
	}
	select {
	case evt := <-commits.ch:
		t.Fatalf("filtered subscriber got extra event %+v", evt)
	default:
	}
}

func TestStreamHub_UnsubscribeStopsDelivery(t *testing.T) {
	hub := newStreamHub()
	sub, _ := hub.subscribe(nil, 0)
	hub.unsubscribe(sub)
	hub.publish(events.TopicDayState, []byte(`{}`))

	select {
	case <-sub.ch:
		t.Fatal("should not receive events after unsubscribe")
	default:
	}
	if hub.subscribers() != 0 {
		t.Fatalf("expected no subscribers, got %d", hub.subscribers())
	}
}

func TestStreamHub_SlowSubscriberDrops(t *testing.T) {
	hub := newStreamHub()
	sub, _ := hub.subscribe(nil, 0)
	for range streamBuffer + 5 {
		hub.publish(events.TopicDayState, []byte(`{}`))
	}
	if missed := hub.unsubscribe(sub); missed != 5 {
		t.Fatalf("expected 5 dropped events, got %d", missed)
	}
}

func TestStreamHub_Backlog(t *testing.T) {
	hub := newStreamHub()
	if _, backlog := hub.subscribe(nil, 5); len(backlog) != 0 {
		t.Fatalf("empty hub should have no backlog, got %d", len(backlog))
	}

	for i := 1; i <= 5; i++ {
		topic := events.TopicDayState
		if i%2 == 0 {
			topic = events.TopicDayCommitted
		}
		hub.publish(topic, []byte(fmt.Sprintf(`{"n":%d}`, i)))
	}

	_, backlog := hub.subscribe(nil, 2)
	if len(backlog) != 3 || backlog[0].ID != 3 || backlog[2].ID != 5 {
		t.Fatalf("unexpected backlog %+v", backlog)
	}
	_, backlog = hub.subscribe(topicFilter{events.TopicDayCommitted}, 1)
	if len(backlog) != 2 || backlog[0].ID != 2 || backlog[1].ID != 4 {
		t.Fatalf("unexpected filtered backlog %+v", backlog)
	}
	if _, backlog = hub.subscribe(nil, 0); backlog != nil {
		t.Fatal("zero lastID should skip the backlog")
	}
}

func TestStreamHub_ReplayWindowWraps(t *testing.T) {
	hub := newStreamHub()
	total := replaySize + 100
	for range total {
		hub.publish(events.TopicDayState, []byte(`{}`))
	}

	_, backlog := hub.subscribe(nil, 1)
	if len(backlog) != replaySize {
		t.Fatalf("expected %d events, got %d", replaySize, len(backlog))
	}
	if backlog[0].ID != 101 || backlog[len(backlog)-1].ID != uint64(total) {
		t.Fatalf("window = [%d, %d], want [101, %d]", backlog[0].ID, backlog[len(backlog)-1].ID, total)
	}
	for i := 1; i < len(backlog); i++ {
		if backlog[i].ID != backlog[i-1].ID+1 {
			t.Fatalf("backlog out of order at %d", i)
		}
	}
}

func TestCycleTransition_Topics(t *testing.T) {
	srv, _ := newTestServer(t, &fakePipeline{})
	sub, _ := srv.stream.subscribe(nil, 0)
	defer srv.stream.unsubscribe(sub)

	srv.CycleTransition(pipeline.Transition{RunID: "r1", UniverseID: "u", DayIndex: 2,
		From: pipeline.StateAllocating, To: pipeline.StateSubtopicPending, Step: pipeline.StepSubtopic})
	srv.CycleTransition(pipeline.Transition{RunID: "r1", UniverseID: "u", DayIndex: 2,
		From: pipeline.StateJudging, To: pipeline.StateFailed, Step: pipeline.StepArbiter, Error: "arbiter failed"})
	srv.CycleTransition(pipeline.Transition{RunID: "r2", UniverseID: "u", DayIndex: 3,
		From: pipeline.StateJudging, To: pipeline.StateCommitted, Result: &model.CycleResult{DayIndex: 3}})

	state, failed, committed := recv(t, sub), recv(t, sub), recv(t, sub)
	if state.Topic != events.TopicDayState || failed.Topic != events.TopicDayFailed || committed.Topic != events.TopicDayCommitted {
		t.Fatalf("unexpected topics %q %q %q", state.Topic, failed.Topic, committed.Topic)
	}

	var ds events.DayState
	if err := json.Unmarshal(state.Data, &ds); err != nil {
		t.Fatal(err)
	}
	if ds.From != "ALLOCATING" || ds.To != "SUBTOPIC_PENDING" || ds.DayIndex != 2 {
		t.Fatalf("unexpected state payload: %+v", ds)
	}

	var df events.DayFailed
	if err := json.Unmarshal(failed.Data, &df); err != nil {
		t.Fatal(err)
	}
	if df.Step != "arbiter" || df.State != "FAILED" || df.Error != "arbiter failed" {
		t.Fatalf("unexpected failure payload: %+v", df)
	}

	var dc events.DayCommitted
	if err := json.Unmarshal(committed.Data, &dc); err != nil {
		t.Fatal(err)
	}
	if dc.Result == nil || dc.Result.DayIndex != 3 {
		t.Fatalf("unexpected commit payload: %+v", dc)
	}
}

// readStream collects "id:", "event:" and "data:" lines until n events are
// seen. The scanner goroutine exits when the test ends or the body closes.
func readStream(t *testing.T, resp *http.Response, n int) []string {
	t.Helper()
	done := t.Context().Done()
	lines := make(chan string, 16)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-done:
				return
			}
		}
	}()

	var out []string
	seen := 0
	timeout := time.After(2 * time.Second)
	for seen < n {
		select {
		case line, ok := <-lines:
			if !ok {
				t.Fatalf("stream closed after %d events", seen)
			}
			for _, prefix := range []string{"id:", "event:", "data:"} {
				if strings.HasPrefix(line, prefix) {
					out = append(out, line)
				}
			}
			if strings.HasPrefix(line, "data:") {
				seen++
			}
		case <-timeout:
			t.Fatalf("timed out after %d events: %v", seen, out)
		}
	}
	return out
}

// startStreamServer serves srv over HTTP. The server is closed in a cleanup
// registered before any stream is opened, so open streams are torn down first.
func startStreamServer(t *testing.T, srv *Server) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(srv.NewHTTPHandler(""))
	t.Cleanup(ts.Close)
	return ts
}

// openStream connects to an event stream. The request is cancelled and the
// body closed when the calling test ends.
func openStream(t *testing.T, url string, header http.Header) *http.Response {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		cancel()
		t.Fatal(err)
	}
	t.Cleanup(func() {
		cancel()
		resp.Body.Close()
	})
	return resp
}

func TestHandleEventStream(t *testing.T) {
	srv, _ := newTestServer(t, &fakePipeline{})
	ts := startStreamServer(t, srv)

	resp := openStream(t, ts.URL+"/v1/events/stream?topics=althist.day.committed", nil)
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("expected Content-Type=text/event-stream, got %q", ct)
	}

	deadline := time.Now().Add(time.Second)
	for srv.stream.subscribers() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("client never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	srv.stream.publish(events.TopicDayState, []byte(`{"to":"JUDGING"}`))
	srv.stream.publish(events.TopicDayCommitted, []byte(`{"day_index":7}`))

	got := readStream(t, resp, 1)
	want := []string{"id:2", "event:" + events.TopicDayCommitted, `data:{"day_index":7}`}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("stream = %v, want %v", got, want)
	}
}

func TestHandleEventStream_Resume(t *testing.T) {
	srv, _ := newTestServer(t, &fakePipeline{})
	srv.stream.publish(events.TopicDayState, []byte(`{"n":1}`))
	srv.stream.publish(events.TopicDayState, []byte(`{"n":2}`))
	srv.stream.publish(events.TopicDayCommitted, []byte(`{"n":3}`))

	ts := startStreamServer(t, srv)

	tests := []struct {
		name   string
		url    string
		header http.Header
	}{
		{"header", ts.URL + "/v1/events/stream", http.Header{"Last-Event-Id": {"1"}}},
		{"query", ts.URL + "/v1/events/stream?last_event_id=1", nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			joined := strings.Join(readStream(t, openStream(t, tc.url, tc.header), 2), "\n")
			if strings.Contains(joined, `{"n":1}`) {
				t.Fatalf("expected event 1 to be skipped, got:\n%s", joined)
			}
			if !strings.Contains(joined, `data:{"n":2}`) || !strings.Contains(joined, `data:{"n":3}`) {
				t.Fatalf("expected events 2 and 3, got:\n%s", joined)
			}
		})
	}
}

func TestLastEventID(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/v1/events/stream?last_event_id=9", nil)
	if id, _, err := lastEventID(r); err != nil || id != 9 {
		t.Fatalf("query: %d %v", id, err)
	}
	r.Header.Set("Last-Event-ID", "12")
	if id, _, err := lastEventID(r); err != nil || id != 12 {
		t.Fatalf("header should win: %d %v", id, err)
	}
	r.Header.Set("Last-Event-ID", "abc")
	if _, raw, err := lastEventID(r); err == nil || raw != "abc" {
		t.Fatalf("expected parse error for %q", raw)
	}
}
