package usecase

// StreamState is the reconciliation lifecycle of one logical stream.
type StreamState int

const (
	// StateUninitialized: no subscriber yet, events are not retained.
	StateUninitialized StreamState = iota
	// StateLoading: a snapshot fetch is in flight; arriving events are held in
	// the reconciliation buffer, not exposed to consumers.
	StateLoading
	// StateReady: the snapshot has been merged; events merge directly.
	StateReady
)

func (s StreamState) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	default:
		return "uninitialized"
	}
}

// reconciler tracks the snapshot/event race for one logical stream key. It is
// not safe for concurrent use on its own; the owning stream instance guards it
// with its mutex so every merge is atomic relative to other merges.
type reconciler[E any] struct {
	state  StreamState
	scope  string
	epoch  uint64
	buffer []E
	err    error
}

// begin starts a new load cycle for the given scope and returns the epoch the
// eventual snapshot resolution must present. Bumping the epoch is what makes
// a slow response for a previous scope harmlessly stale.
func (r *reconciler[E]) begin(scope string) uint64 {
	if scope != r.scope {
		r.buffer = nil
	}
	r.scope = scope
	r.state = StateLoading
	r.err = nil
	r.epoch++
	return r.epoch
}

// retry re-arms a failed load without changing scope. The buffer survives so
// events received during the failed attempt still apply once a retry
// succeeds.
func (r *reconciler[E]) retry() uint64 {
	r.state = StateLoading
	r.err = nil
	r.epoch++
	return r.epoch
}

// current reports whether a resolution for the given epoch still matches the
// live load cycle.
func (r *reconciler[E]) current(epoch uint64) bool {
	return epoch == r.epoch
}

// resolve transitions to Ready and hands back the buffered events in arrival
// order. The buffer is discarded; the caller merges the events after applying
// the baseline.
func (r *reconciler[E]) resolve() []E {
	buffered := r.buffer
	r.buffer = nil
	r.state = StateReady
	r.err = nil
	return buffered
}

// fail keeps the stream in Loading with the error exposed. It must never
// silently become Ready with an empty baseline: the buffer is retained.
func (r *reconciler[E]) fail(err error) {
	r.state = StateLoading
	r.err = err
}

// failSoft records a failed re-fetch without leaving Ready. The baseline
// merged earlier stays exposed; a later refresh clears the error.
func (r *reconciler[E]) failSoft(err error) {
	r.err = err
}

// hold appends an event that raced ahead of the snapshot.
func (r *reconciler[E]) hold(event E) {
	r.buffer = append(r.buffer, event)
}

// reset returns the stream to Uninitialized, dropping buffer and error. A
// subsequent begin starts a fresh cycle, so any in-flight fetch is orphaned.
func (r *reconciler[E]) reset() {
	r.state = StateUninitialized
	r.scope = ""
	r.buffer = nil
	r.err = nil
	r.epoch++
}
