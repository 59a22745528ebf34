package usecase

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/freelancehub/hub"
	"github.com/freelancehub/hub/internal/domain"
)

// OwnershipCache reconciles the purchase snapshot with membership-change
// events into one monotonic set of ownership facts per identity. It must be
// shared by every consumer of the same identity: purchase badges and review
// eligibility read the same set, so two views can never race two divergent
// fetches.
type OwnershipCache struct {
	mu    sync.Mutex
	rec   reconciler[hub.OrderEvent]
	owned map[string]struct{}

	channel   Channel
	ownership OwnershipGateway
}

// NewOwnershipCache wires the ownership reconciliation instance.
func NewOwnershipCache(channel Channel, ownership OwnershipGateway) *OwnershipCache {
	return &OwnershipCache{
		owned:     make(map[string]struct{}),
		channel:   channel,
		ownership: ownership,
	}
}

// Refresh issues the ownership snapshot fetch for the identity. A change of
// identity resets the fact set and stales any in-flight fetch; a repeat call
// for the current identity re-fetches and unions, so facts observed once stay
// owned for the rest of the session.
func (c *OwnershipCache) Refresh(ctx context.Context, identityID string) {
	if identityID == "" {
		return
	}

	c.mu.Lock()
	var epoch uint64
	switch {
	case identityID != c.rec.scope:
		c.owned = make(map[string]struct{})
		epoch = c.rec.begin(identityID)
		c.channel.On(hub.EventOrderCompleted, c.handleOrderEvent)
	case c.rec.state == StateLoading && c.rec.err == nil:
		// A fetch for this identity is already in flight. Collapsing the
		// duplicate keeps independent consumers from racing divergent
		// requests.
		c.mu.Unlock()
		return
	case c.rec.state == StateLoading:
		epoch = c.rec.retry()
	default:
		// Ready: re-fetch in the background and union on arrival. The state
		// stays Ready so facts already observed keep reading true.
		epoch = c.rec.epoch
	}
	c.mu.Unlock()

	go c.load(ctx, identityID, epoch)
}

func (c *OwnershipCache) load(ctx context.Context, identityID string, epoch uint64) {
	ids, err := c.ownership.FetchOwnedGigIDs(ctx, identityID)

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.rec.current(epoch) {
		slog.Debug("dropping stale ownership snapshot",
			slog.String("identity", identityID),
			slog.String("reason", domain.ErrStaleResponse.Error()),
			slog.String("module", "ownership"),
		)
		return
	}
	if err != nil {
		snapErr := domain.SnapshotError{Stream: "ownership", Err: err}
		if c.rec.state == StateReady {
			// A failed background union re-fetch must not demote the stream.
			// Facts already observed keep reading owned for the session.
			c.rec.failSoft(snapErr)
			slog.Warn("ownership refetch failed",
				slog.String("identity", identityID),
				slog.String("error", err.Error()),
				slog.String("module", "ownership"),
			)
			return
		}
		c.rec.fail(snapErr)
		return
	}

	// Union, never replace: ownership facts are monotonic within a session.
	for _, id := range ids {
		c.owned[id] = struct{}{}
	}
	for _, e := range c.rec.resolve() {
		c.owned[e.GigID] = struct{}{}
	}
}

func (c *OwnershipCache) handleOrderEvent(raw json.RawMessage) {
	var e hub.OrderEvent
	if err := json.Unmarshal(raw, &e); err != nil {
		slog.Error("malformed order-completed payload",
			slog.String("error", err.Error()),
			slog.String("module", "ownership"),
		)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if e.BuyerID != "" && e.BuyerID != c.rec.scope {
		return
	}
	switch c.rec.state {
	case StateLoading:
		c.rec.hold(e)
	case StateReady:
		c.owned[e.GigID] = struct{}{}
	}
}

// IsOwned reports whether the current identity has purchased the gig. It is
// deliberately fail-closed: false while the snapshot is still loading, never
// an intermediate "unknown", so purchase-gated actions are never offered
// before ownership is confirmed.
func (c *OwnershipCache) IsOwned(gigID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rec.state != StateReady {
		return false
	}
	_, ok := c.owned[gigID]
	return ok
}

// RecordPurchase unions a fact observed locally, e.g. right after a completed
// checkout, without waiting for the next snapshot.
func (c *OwnershipCache) RecordPurchase(gigID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rec.state == StateLoading {
		c.rec.hold(hub.OrderEvent{BuyerID: c.rec.scope, GigID: gigID})
		return
	}
	c.owned[gigID] = struct{}{}
}

// State reports the reconciliation state of the current scope.
func (c *OwnershipCache) State() StreamState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rec.state
}

// Err exposes the retryable snapshot failure, if any.
func (c *OwnershipCache) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rec.err
}

// Close resets the cache when the identity is cleared.
func (c *OwnershipCache) Close() {
	c.mu.Lock()
	scope := c.rec.scope
	c.owned = make(map[string]struct{})
	c.rec.reset()
	c.mu.Unlock()

	if scope != "" {
		c.channel.Off(hub.EventOrderCompleted)
	}
}
