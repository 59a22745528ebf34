package client

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/freelancehub/hub"
	"github.com/freelancehub/hub/internal/usecase"
)

type stubChannel struct {
	mu       sync.Mutex
	handlers map[string]func(json.RawMessage)
	joins    map[string]int
}

func newStubChannel() *stubChannel {
	return &stubChannel{
		handlers: make(map[string]func(json.RawMessage)),
		joins:    make(map[string]int),
	}
}

func (c *stubChannel) Connect(ctx context.Context) error { return nil }

func (c *stubChannel) Join(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.joins[id]++
	return nil
}

func (c *stubChannel) Leave(id string) {}

func (c *stubChannel) Send(event string, payload any) error { return nil }

func (c *stubChannel) On(event string, handler func(json.RawMessage)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[event] = handler
}

func (c *stubChannel) Off(event string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.handlers, event)
}

type stubCatalog struct {
	mu      sync.Mutex
	gigs    []hub.Gig
	orders  []hub.Order
	reviews []hub.Review
}

func (s *stubCatalog) ListGigs(ctx context.Context, category, search string) ([]hub.Gig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if category == "" {
		return append([]hub.Gig(nil), s.gigs...), nil
	}
	var out []hub.Gig
	for _, gig := range s.gigs {
		if gig.Category == category {
			out = append(out, gig)
		}
	}
	return out, nil
}

func (s *stubCatalog) GetGig(ctx context.Context, gigID string) (hub.Gig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, gig := range s.gigs {
		if gig.ID == gigID {
			return gig, nil
		}
	}
	return hub.Gig{}, errors.New("gig not found")
}

func (s *stubCatalog) ListReviews(ctx context.Context, gigID string) ([]hub.Review, error) {
	return append([]hub.Review(nil), s.reviews...), nil
}

func (s *stubCatalog) SubmitReview(ctx context.Context, review hub.Review) (hub.Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	review.ID = "r1"
	s.reviews = append(s.reviews, review)
	return review, nil
}

func (s *stubCatalog) CreateOrder(ctx context.Context, order hub.Order) (hub.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order.ID = "o1"
	s.orders = append(s.orders, order)
	return order, nil
}

type stubHistory struct{}

func (stubHistory) FetchHistory(ctx context.Context, identityID string) ([]hub.WireMessage, error) {
	return nil, nil
}

type stubOwnership struct {
	mu    sync.Mutex
	owned map[string][]string
}

func (s *stubOwnership) FetchOwnedGigIDs(ctx context.Context, identityID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.owned[identityID], nil
}

type stubPayments struct {
	declined bool
	charges  int
}

func (p *stubPayments) Charge(ctx context.Context, buyerID string, gig hub.Gig) error {
	p.charges++
	if p.declined {
		return errors.New("card declined")
	}
	return nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func newTestClient(catalog *stubCatalog, owned *stubOwnership, payments *stubPayments) *Client {
	return NewWithPorts(catalog, newStubChannel(), stubHistory{}, owned, payments)
}

func TestGigsFiltersByCategoryAndTitle(t *testing.T) {
	catalog := &stubCatalog{gigs: []hub.Gig{
		{ID: "g1", Title: "Logo Design", Category: "Design"},
		{ID: "g2", Title: "Banner design", Category: "Design"},
		{ID: "g3", Title: "Logo Animation", Category: "Video"},
	}}
	c := newTestClient(catalog, &stubOwnership{}, &stubPayments{})

	gigs, err := c.FilterGigs(context.Background(), "All", "logo")
	if err != nil {
		t.Fatal(err)
	}
	if len(gigs) != 2 {
		t.Fatalf("expected 2 gigs, got %v", gigs)
	}

	gigs, err = c.FilterGigs(context.Background(), "Design", "logo")
	if err != nil {
		t.Fatal(err)
	}
	if len(gigs) != 1 || gigs[0].ID != "g1" {
		t.Fatalf("expected just g1, got %v", gigs)
	}
}

func TestSubmitReviewRequiresOwnership(t *testing.T) {
	catalog := &stubCatalog{gigs: []hub.Gig{{ID: "g1", Title: "Logo Design"}}}
	owned := &stubOwnership{owned: map[string][]string{"alice": {"g2"}}}
	c := newTestClient(catalog, owned, &stubPayments{})

	if err := c.SetIdentity(context.Background(), hub.Identity{ID: "alice", Role: hub.RoleClient}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return c.IsOwned("g2") })

	if _, err := c.SubmitReview(context.Background(), "g1", 5, "great"); !errors.Is(err, usecase.ErrNotPurchased) {
		t.Fatalf("expected ErrNotPurchased, got %v", err)
	}
	if _, err := c.SubmitReview(context.Background(), "g2", 5, "great"); err != nil {
		t.Fatalf("expected review to pass the purchase gate, got %v", err)
	}
}

func TestFreelancersCannotReview(t *testing.T) {
	catalog := &stubCatalog{}
	c := newTestClient(catalog, &stubOwnership{}, &stubPayments{})

	if err := c.SetIdentity(context.Background(), hub.Identity{ID: "frank", Role: hub.RoleFreelancer}); err != nil {
		t.Fatal(err)
	}
	if _, err := c.SubmitReview(context.Background(), "g1", 5, "great"); err == nil {
		t.Fatal("expected a role error for a freelancer review")
	}
}

func TestCheckoutRecordsOwnershipImmediately(t *testing.T) {
	catalog := &stubCatalog{gigs: []hub.Gig{{ID: "g1", Title: "Logo Design", Price: 50}}}
	payments := &stubPayments{}
	c := newTestClient(catalog, &stubOwnership{}, payments)

	if err := c.SetIdentity(context.Background(), hub.Identity{ID: "alice", Role: hub.RoleClient}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool {
		state, _ := c.OwnershipState()
		return state == usecase.StateReady
	})

	order, err := c.Checkout(context.Background(), "g1")
	if err != nil {
		t.Fatal(err)
	}
	if order.BuyerID != "alice" || order.GigID != "g1" {
		t.Fatalf("unexpected order: %+v", order)
	}
	if payments.charges != 1 {
		t.Fatalf("expected one charge, got %d", payments.charges)
	}
	if !c.IsOwned("g1") {
		t.Fatal("ownership should be visible immediately after checkout")
	}
}

func TestDeclinedPaymentLeavesNoOrder(t *testing.T) {
	catalog := &stubCatalog{gigs: []hub.Gig{{ID: "g1", Title: "Logo Design"}}}
	c := newTestClient(catalog, &stubOwnership{}, &stubPayments{declined: true})

	if err := c.SetIdentity(context.Background(), hub.Identity{ID: "alice", Role: hub.RoleClient}); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Checkout(context.Background(), "g1"); err == nil {
		t.Fatal("expected checkout to fail")
	}
	if len(catalog.orders) != 0 {
		t.Fatalf("no order should be recorded, got %v", catalog.orders)
	}
	if c.IsOwned("g1") {
		t.Fatal("a declined payment must not grant ownership")
	}
}

func TestClearIdentityDropsState(t *testing.T) {
	catalog := &stubCatalog{}
	owned := &stubOwnership{owned: map[string][]string{"alice": {"g1"}}}
	c := newTestClient(catalog, owned, &stubPayments{})

	if err := c.SetIdentity(context.Background(), hub.Identity{ID: "alice", Role: hub.RoleClient}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return c.IsOwned("g1") })

	c.ClearIdentity()
	if c.IsOwned("g1") {
		t.Fatal("ownership must not survive logout")
	}
	if _, err := c.PostMessage("hello"); err == nil {
		t.Fatal("posting without an identity should fail")
	}
}
