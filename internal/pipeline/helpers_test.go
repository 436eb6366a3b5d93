package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/shone114/alternate-history/internal/gateway"
	"github.com/shone114/alternate-history/internal/model"
	"github.com/shone114/alternate-history/internal/prompt"
	"github.com/shone114/alternate-history/internal/store"
	"github.com/shone114/alternate-history/internal/store/memory"
)

const testUniverse = "cold_war_no_moon_landing"

type reply struct {
	text string
	err  error
}

func ok(text string) reply { return reply{text: text} }

func fail(msg string) reply { return reply{err: errors.New(msg)} }

// scriptedGateway answers each role from a queue; the last reply repeats.
type scriptedGateway struct {
	mu      sync.Mutex
	replies map[gateway.Role][]reply
	prompts map[gateway.Role][]string
	before  func(ctx context.Context, role gateway.Role)
}

func newScriptedGateway() *scriptedGateway {
	return &scriptedGateway{
		replies: make(map[gateway.Role][]reply),
		prompts: make(map[gateway.Role][]string),
	}
}

func (g *scriptedGateway) on(role gateway.Role, replies ...reply) *scriptedGateway {
	g.replies[role] = replies
	return g
}

func (g *scriptedGateway) Call(ctx context.Context, role gateway.Role, text string) (string, error) {
	if g.before != nil {
		g.before(ctx, role)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts[role] = append(g.prompts[role], text)
	queue := g.replies[role]
	if len(queue) == 0 {
		return "", errors.New("no scripted reply for " + string(role))
	}
	r := queue[0]
	if len(queue) > 1 {
		g.replies[role] = queue[1:]
	}
	return r.text, r.err
}

func (g *scriptedGateway) calls(role gateway.Role) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.prompts[role])
}

func (g *scriptedGateway) lastPrompt(role gateway.Role) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	p := g.prompts[role]
	if len(p) == 0 {
		return ""
	}
	return p[len(p)-1]
}

var testTemplates = fstest.MapFS{
	prompt.SubtopicFile:  {Data: []byte("SEED={{UNIVERSE_SEED_JSON}}\nRECENT={{RECENT_TIMELINE_JSON}}\nALL={{ALL_PREVIOUS_SUBTOPICS_JSON}}")},
	prompt.ProposalAFile: {Data: []byte("A SUBTOPIC={{SUBTOPIC}}\nRECENT={{RECENT_TIMELINE_JSON}}")},
	prompt.ProposalBFile: {Data: []byte("B SUBTOPIC={{SUBTOPIC}}\nRECENT={{RECENT_TIMELINE_JSON}}")},
	prompt.ArbiterFile:   {Data: []byte("SUBTOPIC={{SUBTOPIC}}\nA={{MODEL_A_JSON}}\nB={{MODEL_B_JSON}}")},
}

func testConfig() Config {
	cfg := DefaultConfig(testUniverse)
	cfg.Subtopic.Delay = 0
	cfg.ProposalA.Delay = 0
	return cfg
}

// fixedClock returns a clock that advances one second per call.
func fixedClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2026, 1, 1, 13, 15, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

func newTestOrchestrator(t *testing.T, st store.Store, gw gateway.Gateway, opts ...Option) *Orchestrator {
	t.Helper()
	base := []Option{WithLogger(zaptest.NewLogger(t)), WithClock(fixedClock())}
	return New(testConfig(), st, gw, prompt.NewRenderer(testTemplates, nil), append(base, opts...)...)
}

func seededStore(t *testing.T) *memory.Store {
	t.Helper()
	st := memory.New()
	_, err := st.EnsureUniverse(context.Background(), &model.Universe{
		ID:    testUniverse,
		Title: "Cold War Without The Apollo 11 Moon Landing",
		Seed:  json.RawMessage(`{"divergence":"Apollo 11 aborts descent, July 1969"}`),
	})
	require.NoError(t, err)
	return st
}

func subtopicReply(name string) reply {
	return ok("```json\n" + `{"selected_subtopic":"` + name + `","reason":"follows day before","expected_focus_tags":["space","politics"]}` + "\n```")
}

const (
	proposalAReply = `Sure! {"headline":"Politburo shelves N1","summary":"Funding moves to Salyut"}`
	proposalBReply = `{"headline":"Korolev bureau reorganised","summary":"Mishin removed"}`
	arbiterReply   = `{"decision":"A","reason":"more plausible","accepted_log":{"headline":"Politburo shelves N1","summary":"Funding moves to Salyut"}}`
)

// happyGateway succeeds on every role.
func happyGateway(subtopic string) *scriptedGateway {
	return newScriptedGateway().
		on(gateway.RoleSubtopic, subtopicReply(subtopic)).
		on(gateway.RoleProposalA, ok(proposalAReply)).
		on(gateway.RoleProposalB, ok(proposalBReply)).
		on(gateway.RoleArbiter, ok(arbiterReply))
}

func countRecords(t *testing.T, st store.Store, coll model.Collection, day int) int {
	t.Helper()
	recs, err := st.Find(context.Background(), coll, model.Filter{UniverseID: testUniverse, DayIndex: day}, model.SortAsc, 0, 0)
	require.NoError(t, err)
	return len(recs)
}

type recordingObserver struct {
	mu    sync.Mutex
	trans []Transition
}

func (r *recordingObserver) CycleTransition(t Transition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trans = append(r.trans, t)
}

func (r *recordingObserver) states() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]State, len(r.trans))
	for i, t := range r.trans {
		out[i] = t.To
	}
	return out
}

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

// failingStore fails inserts into one collection and optionally all reads.
type failingStore struct {
	store.Store
	failInsert model.Collection
	failReads  bool
}

var errStoreDown = errors.New("store down")

func (f *failingStore) Insert(ctx context.Context, rec model.Record) error {
	if rec.RecordCollection() == f.failInsert {
		return errStoreDown
	}
	return f.Store.Insert(ctx, rec)
}

func (f *failingStore) Find(ctx context.Context, coll model.Collection, filter model.Filter, sort model.SortOrder, skip, limit int) ([]model.Record, error) {
	if f.failReads {
		return nil, errStoreDown
	}
	return f.Store.Find(ctx, coll, filter, sort, skip, limit)
}

func (f *failingStore) FindOne(ctx context.Context, coll model.Collection, filter model.Filter, sort model.SortOrder) (model.Record, error) {
	if f.failReads {
		return nil, errStoreDown
	}
	return f.Store.FindOne(ctx, coll, filter, sort)
}
