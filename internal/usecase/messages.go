package usecase

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/freelancehub/hub"
	"github.com/freelancehub/hub/internal/domain"
)

const defaultPendingTTL = 10 * time.Second

// MessageStream reconciles the chat history snapshot with pushed messages and
// local optimistic echoes into one ordered, deduplicated log per identity.
// The stream exclusively owns the log; consumers only ever see copies.
type MessageStream struct {
	mu       sync.Mutex
	rec      reconciler[hub.Message]
	log      []hub.Message
	identity hub.Identity
	// attached reports that channel membership for the current scope is
	// established: connected, push handler registered, join sent.
	attached bool

	channel Channel
	history HistoryGateway

	pendingTTL time.Duration
	now        func() time.Time
	schedule   func(d time.Duration, f func()) func()

	timers   map[string]func()
	watchers []func([]hub.Message)
}

// NewMessageStream wires the chat reconciliation instance. A pendingTTL of
// zero selects the default bounded wait before an unconfirmed optimistic
// entry is marked failed.
func NewMessageStream(channel Channel, history HistoryGateway, pendingTTL time.Duration) *MessageStream {
	if pendingTTL <= 0 {
		pendingTTL = defaultPendingTTL
	}
	return &MessageStream{
		channel:    channel,
		history:    history,
		pendingTTL: pendingTTL,
		now:        time.Now,
		schedule: func(d time.Duration, f func()) func() {
			t := time.AfterFunc(d, f)
			return func() { t.Stop() }
		},
		timers: make(map[string]func()),
	}
}

// Open begins the reconciliation cycle for the given identity: joins the
// channel, registers the push handler and issues the history snapshot fetch.
// Calling it again with the same identity is a no-op; calling it with a new
// identity tears the previous scope down first, so a slow response for the
// old identity can never corrupt the new view.
func (s *MessageStream) Open(ctx context.Context, identity hub.Identity) error {
	s.mu.Lock()
	if s.rec.scope == identity.ID && s.rec.state != StateUninitialized && s.attached {
		s.mu.Unlock()
		return nil
	}
	previous := s.rec.scope
	if previous != identity.ID {
		s.dropTimersLocked()
		s.log = nil
	}
	s.identity = identity
	s.attached = false
	epoch := s.rec.begin(identity.ID)
	s.mu.Unlock()

	if previous != "" && previous != identity.ID {
		s.channel.Off(hub.EventReceiveMessage)
		s.channel.Leave(previous)
	}

	if err := s.attach(ctx, identity.ID, epoch); err != nil {
		return err
	}

	go s.load(ctx, identity.ID, epoch)
	return nil
}

// attach establishes channel membership for the scope: connect, register the
// push handler, send the join. On failure the stream stays error-flagged
// Loading and a later Retry redoes the whole sequence, so a stream can never
// reach Ready without channel membership.
func (s *MessageStream) attach(ctx context.Context, identityID string, epoch uint64) error {
	if err := s.channel.Connect(ctx); err != nil {
		s.failLoad(epoch, errors.Wrap(err, "connect channel"))
		return err
	}
	s.channel.On(hub.EventReceiveMessage, s.handleReceive)
	if err := s.channel.Join(identityID); err != nil {
		// Roll back the reference so the retried join is a fresh first one.
		s.channel.Leave(identityID)
		s.failLoad(epoch, errors.Wrap(err, "join channel"))
		return err
	}

	s.mu.Lock()
	if s.rec.current(epoch) {
		s.attached = true
	}
	s.mu.Unlock()
	return nil
}

// Retry re-issues the snapshot fetch after a failure, re-establishing channel
// membership first if the failed attempt never got that far. Events buffered
// during the failed attempt still apply once the retry succeeds.
func (s *MessageStream) Retry(ctx context.Context) {
	s.mu.Lock()
	if s.rec.state != StateLoading || s.rec.err == nil {
		s.mu.Unlock()
		return
	}
	scope := s.rec.scope
	attached := s.attached
	epoch := s.rec.retry()
	s.mu.Unlock()

	if !attached {
		if err := s.attach(ctx, scope, epoch); err != nil {
			return
		}
	}
	go s.load(ctx, scope, epoch)
}

func (s *MessageStream) load(ctx context.Context, identityID string, epoch uint64) {
	wire, err := s.history.FetchHistory(ctx, identityID)

	s.mu.Lock()
	if !s.rec.current(epoch) {
		s.mu.Unlock()
		slog.Debug("dropping stale history snapshot",
			slog.String("identity", identityID),
			slog.String("reason", domain.ErrStaleResponse.Error()),
			slog.String("module", "messages"),
		)
		return
	}
	if err != nil {
		s.rec.fail(domain.SnapshotError{Stream: "messages", Err: err})
		s.mu.Unlock()
		return
	}

	// Local entries survive the baseline swap: pending ones are still awaiting
	// confirmation, failed ones stay visible so a message the user just saw
	// fail does not silently vanish. An entry the fetched baseline already
	// contains is dropped in favor of its confirmed copy.
	var locals []hub.Message
	for _, m := range s.log {
		if m.State == hub.DeliveryPending || m.State == hub.DeliveryFailed {
			locals = append(locals, m)
		}
	}
	inBaseline := make(map[string]struct{}, len(wire))
	for _, w := range wire {
		if w.ClientMessageID != "" {
			inBaseline[w.ClientMessageID] = struct{}{}
		}
	}

	buffered := s.rec.resolve()
	s.log = make([]hub.Message, 0, len(wire)+len(locals)+len(buffered))
	for _, w := range wire {
		s.insertLocked(w.Confirmed())
	}
	for _, l := range locals {
		if _, ok := inBaseline[l.ClientMessageID]; ok {
			continue
		}
		s.insertLocked(l)
	}
	for _, e := range buffered {
		s.mergeLocked(e)
	}
	view, watchers := s.snapshotLocked()
	s.mu.Unlock()

	emit(view, watchers)
}

func (s *MessageStream) failLoad(epoch uint64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rec.current(epoch) {
		s.rec.fail(err)
	}
}

func (s *MessageStream) handleReceive(raw json.RawMessage) {
	var w hub.WireMessage
	if err := json.Unmarshal(raw, &w); err != nil {
		slog.Error("malformed receive-message payload",
			slog.String("error", err.Error()),
			slog.String("module", "messages"),
		)
		return
	}
	m := w.Confirmed()

	s.mu.Lock()
	switch s.rec.state {
	case StateLoading:
		s.rec.hold(m)
		s.mu.Unlock()
	case StateReady:
		s.mergeLocked(m)
		view, watchers := s.snapshotLocked()
		s.mu.Unlock()
		emit(view, watchers)
	default:
		s.mu.Unlock()
	}
}

// Post appends an optimistic pending-local entry and transmits the outgoing
// event. The entry flips to confirmed when the server echo arrives, or to
// failed after the bounded wait.
func (s *MessageStream) Post(body string) (hub.Message, error) {
	s.mu.Lock()
	if s.rec.scope == "" {
		s.mu.Unlock()
		return hub.Message{}, domain.ErrNotJoined
	}
	m := hub.Message{
		ClientMessageID: hub.NewID(),
		Sender:          s.identity.ID,
		Content:         body,
		CreatedAt:       s.now(),
		State:           hub.DeliveryPending,
	}
	s.insertLocked(m)
	cmid := m.ClientMessageID
	s.timers[cmid] = s.schedule(s.pendingTTL, func() { s.failPending(cmid) })
	view, watchers := s.snapshotLocked()
	s.mu.Unlock()

	emit(view, watchers)

	err := s.channel.Send(hub.EventSendMessage, hub.WireMessage{
		ClientMessageID: m.ClientMessageID,
		Sender:          m.Sender,
		Content:         m.Content,
		CreatedAt:       m.CreatedAt,
	})
	if err != nil {
		s.failPending(cmid)
		return m, errors.Wrap(err, "send message")
	}
	return m, nil
}

// Messages returns the current ordered view of the log. The slice is a copy;
// mutating it has no effect on the stream.
func (s *MessageStream) Messages() []hub.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	view := make([]hub.Message, len(s.log))
	copy(view, s.log)
	return view
}

// Watch registers a live read projection: fn runs with the current view
// immediately and again after every merge.
func (s *MessageStream) Watch(fn func([]hub.Message)) {
	s.mu.Lock()
	s.watchers = append(s.watchers, fn)
	view := make([]hub.Message, len(s.log))
	copy(view, s.log)
	s.mu.Unlock()

	fn(view)
}

// State reports the reconciliation state of the current scope.
func (s *MessageStream) State() StreamState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rec.state
}

// Err exposes the retryable snapshot failure, if any.
func (s *MessageStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rec.err
}

// Close detaches the push handler, releases the channel subscription and
// resets the stream. Any in-flight snapshot fetch becomes stale.
func (s *MessageStream) Close() {
	s.mu.Lock()
	scope := s.rec.scope
	s.dropTimersLocked()
	s.log = nil
	s.attached = false
	s.rec.reset()
	s.mu.Unlock()

	if scope != "" {
		s.channel.Off(hub.EventReceiveMessage)
		s.channel.Leave(scope)
	}
}

// mergeLocked applies one confirmed event to the log. An event matching a
// pending entry by correlation ID, or by sender+content+send time for servers
// that do not echo the ID, confirms that entry instead of duplicating it.
func (s *MessageStream) mergeLocked(m hub.Message) {
	if m.ClientMessageID != "" {
		for i := range s.log {
			if s.log[i].State == hub.DeliveryPending && s.log[i].ClientMessageID == m.ClientMessageID {
				s.confirmAtLocked(i, m)
				return
			}
		}
	}
	for i := range s.log {
		if s.log[i].State == hub.DeliveryPending &&
			s.log[i].Sender == m.Sender &&
			s.log[i].Content == m.Content &&
			s.log[i].CreatedAt.Equal(m.CreatedAt) {
			m.ClientMessageID = s.log[i].ClientMessageID
			s.confirmAtLocked(i, m)
			return
		}
	}
	s.insertLocked(m)
}

func (s *MessageStream) confirmAtLocked(i int, m hub.Message) {
	if cancel, ok := s.timers[s.log[i].ClientMessageID]; ok {
		cancel()
		delete(s.timers, s.log[i].ClientMessageID)
	}
	s.log = append(s.log[:i], s.log[i+1:]...)
	s.insertLocked(m)
}

// insertLocked keeps ascending order by logical send time. Entries with equal
// timestamps stay in arrival order: snapshot order first, then event arrival.
func (s *MessageStream) insertLocked(m hub.Message) {
	i := len(s.log)
	for ; i > 0; i-- {
		if !s.log[i-1].CreatedAt.After(m.CreatedAt) {
			break
		}
	}
	s.log = append(s.log, hub.Message{})
	copy(s.log[i+1:], s.log[i:])
	s.log[i] = m
}

func (s *MessageStream) failPending(cmid string) {
	s.mu.Lock()
	changed := false
	for i := range s.log {
		if s.log[i].ClientMessageID == cmid && s.log[i].State == hub.DeliveryPending {
			s.log[i].State = hub.DeliveryFailed
			changed = true
			break
		}
	}
	if cancel, ok := s.timers[cmid]; ok {
		cancel()
		delete(s.timers, cmid)
	}
	if !changed {
		s.mu.Unlock()
		return
	}
	view, watchers := s.snapshotLocked()
	s.mu.Unlock()

	emit(view, watchers)
}

func (s *MessageStream) dropTimersLocked() {
	for _, cancel := range s.timers {
		cancel()
	}
	s.timers = make(map[string]func())
}

func (s *MessageStream) snapshotLocked() ([]hub.Message, []func([]hub.Message)) {
	view := make([]hub.Message, len(s.log))
	copy(view, s.log)
	watchers := make([]func([]hub.Message), len(s.watchers))
	copy(watchers, s.watchers)
	return view, watchers
}

func emit(view []hub.Message, watchers []func([]hub.Message)) {
	for _, fn := range watchers {
		fn(view)
	}
}
