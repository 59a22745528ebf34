package usecase

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/freelancehub/hub"
)

// --- mocks ---

type mockChannel struct {
	mu       sync.Mutex
	connects int
	joins    map[string]int
	leaves   map[string]int
	handlers map[string]func(json.RawMessage)
	sent     []hub.WireMessage
	sendErr  error
	joinErr  error
}

func newMockChannel() *mockChannel {
	return &mockChannel{
		joins:    make(map[string]int),
		leaves:   make(map[string]int),
		handlers: make(map[string]func(json.RawMessage)),
	}
}

func (m *mockChannel) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connects++
	return nil
}

func (m *mockChannel) Join(identityID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.joinErr != nil {
		return m.joinErr
	}
	m.joins[identityID]++
	return nil
}

func (m *mockChannel) Leave(identityID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leaves[identityID]++
}

func (m *mockChannel) Send(event string, payload any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	if w, ok := payload.(hub.WireMessage); ok {
		m.sent = append(m.sent, w)
	}
	return nil
}

func (m *mockChannel) On(event string, handler func(json.RawMessage)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[event] = handler
}

func (m *mockChannel) Off(event string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.handlers, event)
}

// push simulates an inbound event from the server.
func (m *mockChannel) push(t *testing.T, event string, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal push payload: %v", err)
	}
	m.mu.Lock()
	handler := m.handlers[event]
	m.mu.Unlock()
	if handler == nil {
		t.Fatalf("no handler registered for %s", event)
	}
	handler(raw)
}

type mockHistory struct {
	mu      sync.Mutex
	history map[string][]hub.WireMessage
	err     map[string]error
	gates   map[string]chan struct{}
}

func newMockHistory() *mockHistory {
	return &mockHistory{
		history: make(map[string][]hub.WireMessage),
		err:     make(map[string]error),
		gates:   make(map[string]chan struct{}),
	}
}

func (m *mockHistory) FetchHistory(ctx context.Context, identityID string) ([]hub.WireMessage, error) {
	m.mu.Lock()
	gate := m.gates[identityID]
	m.mu.Unlock()
	if gate != nil {
		<-gate
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.err[identityID]; err != nil {
		return nil, err
	}
	return m.history[identityID], nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met in time")
}

func openReady(t *testing.T, s *MessageStream, identity hub.Identity) {
	t.Helper()
	if err := s.Open(context.Background(), identity); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	waitFor(t, func() bool { return s.State() == StateReady })
}

// --- tests ---

func TestOpenIsIdempotentPerIdentity(t *testing.T) {
	ch := newMockChannel()
	gw := newMockHistory()
	s := NewMessageStream(ch, gw, 0)

	alice := hub.Identity{ID: "alice", Role: hub.RoleClient}
	openReady(t, s, alice)
	for i := 0; i < 5; i++ {
		if err := s.Open(context.Background(), alice); err != nil {
			t.Fatalf("repeat open failed: %v", err)
		}
	}

	if got := ch.joins["alice"]; got != 1 {
		t.Fatalf("expected exactly one join, got %d", got)
	}
}

func TestBufferedEventSurvivesSnapshotRace(t *testing.T) {
	ch := newMockChannel()
	gw := newMockHistory()
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Minute)
	gw.history["alice"] = []hub.WireMessage{{Sender: "u1", Content: "hi", CreatedAt: t0}}
	gate := make(chan struct{})
	gw.gates["alice"] = gate

	s := NewMessageStream(ch, gw, 0)
	if err := s.Open(context.Background(), hub.Identity{ID: "alice"}); err != nil {
		t.Fatalf("open failed: %v", err)
	}

	// The push event arrives while the snapshot is still in flight.
	ch.push(t, hub.EventReceiveMessage, hub.WireMessage{Sender: "u2", Content: "yo", CreatedAt: t1})
	if got := len(s.Messages()); got != 0 {
		t.Fatalf("buffered event leaked before snapshot resolved: %d messages", got)
	}

	close(gate)
	waitFor(t, func() bool { return s.State() == StateReady })

	msgs := s.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Content != "hi" || msgs[1].Content != "yo" {
		t.Fatalf("wrong order: %q then %q", msgs[0].Content, msgs[1].Content)
	}
	if msgs[0].State != hub.DeliveryConfirmed || msgs[1].State != hub.DeliveryConfirmed {
		t.Fatalf("expected confirmed states, got %s and %s", msgs[0].State, msgs[1].State)
	}
}

func TestStaleSnapshotIsDroppedOnIdentityChange(t *testing.T) {
	ch := newMockChannel()
	gw := newMockHistory()
	gw.history["alice"] = []hub.WireMessage{{Sender: "alice", Content: "old world", CreatedAt: time.Now()}}
	gw.history["bob"] = []hub.WireMessage{{Sender: "bob", Content: "new world", CreatedAt: time.Now()}}
	gw.gates["alice"] = make(chan struct{}) // alice's fetch never returns on its own

	s := NewMessageStream(ch, gw, 0)
	if err := s.Open(context.Background(), hub.Identity{ID: "alice"}); err != nil {
		t.Fatalf("open alice failed: %v", err)
	}
	aliceEpoch := func() uint64 {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.rec.epoch
	}()

	openReady(t, s, hub.Identity{ID: "bob"})

	// Resolve alice's fetch late, bypassing the gate.
	delete(gw.gates, "alice")
	s.load(context.Background(), "alice", aliceEpoch)

	for _, m := range s.Messages() {
		if m.Content == "old world" {
			t.Fatalf("stale snapshot for previous identity leaked into view")
		}
	}
	if msgs := s.Messages(); len(msgs) != 1 || msgs[0].Content != "new world" {
		t.Fatalf("unexpected view after identity change: %+v", msgs)
	}
}

func TestOptimisticPostReconcilesWithoutDuplicate(t *testing.T) {
	ch := newMockChannel()
	gw := newMockHistory()
	s := NewMessageStream(ch, gw, 0)
	t2 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return t2 }

	openReady(t, s, hub.Identity{ID: "self"})

	if _, err := s.Post("hey"); err != nil {
		t.Fatalf("post failed: %v", err)
	}

	msgs := s.Messages()
	if len(msgs) != 1 || msgs[0].State != hub.DeliveryPending {
		t.Fatalf("expected one pending entry, got %+v", msgs)
	}
	if len(ch.sent) != 1 || ch.sent[0].ClientMessageID == "" {
		t.Fatalf("outgoing event missing correlation id: %+v", ch.sent)
	}

	// Server echoes the confirmation with the correlation id.
	ch.push(t, hub.EventReceiveMessage, hub.WireMessage{
		ID:              "m1",
		ClientMessageID: ch.sent[0].ClientMessageID,
		Sender:          "self",
		Content:         "hey",
		CreatedAt:       t2,
	})

	msgs = s.Messages()
	if len(msgs) != 1 {
		t.Fatalf("expected exactly one entry after confirmation, got %d", len(msgs))
	}
	if msgs[0].State != hub.DeliveryConfirmed || msgs[0].ID != "m1" {
		t.Fatalf("entry not confirmed: %+v", msgs[0])
	}
}

func TestConfirmationMatchesByContentWhenIDNotEchoed(t *testing.T) {
	ch := newMockChannel()
	gw := newMockHistory()
	s := NewMessageStream(ch, gw, 0)
	t2 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return t2 }

	openReady(t, s, hub.Identity{ID: "self"})
	if _, err := s.Post("hey"); err != nil {
		t.Fatalf("post failed: %v", err)
	}

	ch.push(t, hub.EventReceiveMessage, hub.WireMessage{
		Sender: "self", Content: "hey", CreatedAt: t2,
	})

	msgs := s.Messages()
	if len(msgs) != 1 || msgs[0].State != hub.DeliveryConfirmed {
		t.Fatalf("content-equality fallback did not confirm: %+v", msgs)
	}
}

func TestPendingEntryFailsAfterBoundedWait(t *testing.T) {
	ch := newMockChannel()
	gw := newMockHistory()
	s := NewMessageStream(ch, gw, 0)

	var fire func()
	s.schedule = func(d time.Duration, f func()) func() {
		fire = f
		return func() {}
	}

	openReady(t, s, hub.Identity{ID: "self"})
	if _, err := s.Post("anyone there?"); err != nil {
		t.Fatalf("post failed: %v", err)
	}
	if fire == nil {
		t.Fatalf("no confirmation deadline scheduled")
	}

	fire()

	msgs := s.Messages()
	if len(msgs) != 1 || msgs[0].State != hub.DeliveryFailed {
		t.Fatalf("expected failed entry after deadline, got %+v", msgs)
	}
}

func TestFailedSnapshotStaysLoadingAndRetains(t *testing.T) {
	ch := newMockChannel()
	gw := newMockHistory()
	gw.err["alice"] = context.DeadlineExceeded
	s := NewMessageStream(ch, gw, 0)

	if err := s.Open(context.Background(), hub.Identity{ID: "alice"}); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	waitFor(t, func() bool { return s.Err() != nil })

	if s.State() != StateLoading {
		t.Fatalf("failed snapshot must stay Loading, got %s", s.State())
	}

	// An event during the failed window must still apply after a retry.
	ch.push(t, hub.EventReceiveMessage, hub.WireMessage{Sender: "u2", Content: "yo", CreatedAt: time.Now()})

	gw.mu.Lock()
	delete(gw.err, "alice")
	gw.mu.Unlock()
	s.Retry(context.Background())
	waitFor(t, func() bool { return s.State() == StateReady })

	msgs := s.Messages()
	if len(msgs) != 1 || msgs[0].Content != "yo" {
		t.Fatalf("buffered event lost across retry: %+v", msgs)
	}
}

func TestRetryRejoinsChannelAfterFailedOpen(t *testing.T) {
	ch := newMockChannel()
	gw := newMockHistory()
	gw.history["alice"] = []hub.WireMessage{{ID: "m1", Sender: "u2", Content: "hey", CreatedAt: time.Now()}}
	ch.joinErr = context.DeadlineExceeded
	s := NewMessageStream(ch, gw, 0)

	alice := hub.Identity{ID: "alice", Role: hub.RoleClient}
	if err := s.Open(context.Background(), alice); err == nil {
		t.Fatalf("expected open to fail while join is broken")
	}
	// A repeat open while membership was never established must not be a
	// silent no-op.
	if err := s.Open(context.Background(), alice); err == nil {
		t.Fatalf("expected repeat open to fail while join is broken")
	}
	if s.State() != StateLoading || s.Err() == nil {
		t.Fatalf("failed open must leave the stream error-flagged Loading")
	}

	ch.mu.Lock()
	ch.joinErr = nil
	ch.mu.Unlock()
	s.Retry(context.Background())
	waitFor(t, func() bool { return s.State() == StateReady })

	ch.mu.Lock()
	joins := ch.joins["alice"]
	ch.mu.Unlock()
	if joins != 1 {
		t.Fatalf("expected retry to join the channel once, got %d", joins)
	}

	// Push delivery must work: the handler was registered by the retry.
	ch.push(t, hub.EventReceiveMessage, hub.WireMessage{ID: "m2", Sender: "u2", Content: "yo", CreatedAt: time.Now()})
	waitFor(t, func() bool { return len(s.Messages()) == 2 })
}

func TestFailedEntriesSurviveReload(t *testing.T) {
	ch := newMockChannel()
	gw := newMockHistory()
	gw.err["alice"] = context.DeadlineExceeded
	ch.sendErr = context.DeadlineExceeded
	s := NewMessageStream(ch, gw, 0)

	if err := s.Open(context.Background(), hub.Identity{ID: "alice"}); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	waitFor(t, func() bool { return s.Err() != nil })

	if _, err := s.Post("hello"); err == nil {
		t.Fatalf("expected post to fail while the channel send is broken")
	}
	waitFor(t, func() bool {
		msgs := s.Messages()
		return len(msgs) == 1 && msgs[0].State == hub.DeliveryFailed
	})

	// The reload must not make a message the user just saw fail disappear.
	gw.mu.Lock()
	delete(gw.err, "alice")
	gw.mu.Unlock()
	s.Retry(context.Background())
	waitFor(t, func() bool { return s.State() == StateReady })

	msgs := s.Messages()
	if len(msgs) != 1 || msgs[0].Content != "hello" || msgs[0].State != hub.DeliveryFailed {
		t.Fatalf("failed entry lost across reload: %+v", msgs)
	}
}

func TestEqualTimestampsKeepArrivalOrder(t *testing.T) {
	ch := newMockChannel()
	gw := newMockHistory()
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	gw.history["alice"] = []hub.WireMessage{
		{Sender: "u1", Content: "first", CreatedAt: t0},
		{Sender: "u2", Content: "second", CreatedAt: t0},
	}
	s := NewMessageStream(ch, gw, 0)
	openReady(t, s, hub.Identity{ID: "alice"})

	ch.push(t, hub.EventReceiveMessage, hub.WireMessage{Sender: "u3", Content: "third", CreatedAt: t0})

	msgs := s.Messages()
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	for i, want := range []string{"first", "second", "third"} {
		if msgs[i].Content != want {
			t.Fatalf("position %d: want %q got %q", i, want, msgs[i].Content)
		}
	}
}

func TestWatchReemitsOnEveryMerge(t *testing.T) {
	ch := newMockChannel()
	gw := newMockHistory()
	s := NewMessageStream(ch, gw, 0)
	openReady(t, s, hub.Identity{ID: "alice"})

	var mu sync.Mutex
	var emissions [][]hub.Message
	s.Watch(func(view []hub.Message) {
		mu.Lock()
		emissions = append(emissions, view)
		mu.Unlock()
	})

	ch.push(t, hub.EventReceiveMessage, hub.WireMessage{Sender: "u1", Content: "hi", CreatedAt: time.Now()})

	mu.Lock()
	defer mu.Unlock()
	if len(emissions) != 2 {
		t.Fatalf("expected initial emission plus one merge, got %d", len(emissions))
	}
	if len(emissions[1]) != 1 || emissions[1][0].Content != "hi" {
		t.Fatalf("merge emission carries wrong view: %+v", emissions[1])
	}
}
