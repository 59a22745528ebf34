// Package client is the embeddable marketplace client. It wires the REST
// gateway and the push channel into the reconciliation layer and exposes a
// small facade for UIs: identity switching, chat, catalog browsing, checkout
// and reviews.
package client

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/freelancehub/hub"
	"github.com/freelancehub/hub/internal/domain"
	"github.com/freelancehub/hub/internal/infra/channel"
	"github.com/freelancehub/hub/internal/infra/gateway"
	"github.com/freelancehub/hub/internal/usecase"
)

// PaymentGateway settles a checkout before the order is recorded. Real
// deployments plug a PSP adapter in; tests use a stub.
type PaymentGateway interface {
	Charge(ctx context.Context, buyerID string, gig hub.Gig) error
}

// Catalog is the read side of the marketplace API the facade depends on.
type Catalog interface {
	ListGigs(ctx context.Context, category, search string) ([]hub.Gig, error)
	GetGig(ctx context.Context, gigID string) (hub.Gig, error)
	ListReviews(ctx context.Context, gigID string) ([]hub.Review, error)
	SubmitReview(ctx context.Context, review hub.Review) (hub.Review, error)
	CreateOrder(ctx context.Context, order hub.Order) (hub.Order, error)
}

type Client struct {
	mu        sync.Mutex
	identity  hub.Identity
	catalog   Catalog
	channel   usecase.Channel
	messages  *usecase.MessageStream
	ownership *usecase.OwnershipCache
	payments  PaymentGateway
}

// New builds a client from configuration. The channel is shared by the
// message stream and the ownership cache so both see the same connection
// lifecycle.
func New(cfg domain.Config, payments PaymentGateway) *Client {
	api := gateway.NewAPIGateway(cfg.APIBaseURL, cfg.AccessToken)
	ch := channel.New(cfg.SocketURL, cfg.AccessToken)
	return &Client{
		catalog:   api,
		channel:   ch,
		messages:  usecase.NewMessageStream(ch, api, cfg.PendingTTL),
		ownership: usecase.NewOwnershipCache(ch, api),
		payments:  payments,
	}
}

// NewWithPorts builds a client over explicit ports. Used by tests and by
// embedders that bring their own transport.
func NewWithPorts(catalog Catalog, ch usecase.Channel, history usecase.HistoryGateway, ownership usecase.OwnershipGateway, payments PaymentGateway) *Client {
	return &Client{
		catalog:   catalog,
		channel:   ch,
		messages:  usecase.NewMessageStream(ch, history, 0),
		ownership: usecase.NewOwnershipCache(ch, ownership),
		payments:  payments,
	}
}

// SetIdentity switches the active user. Chat history and ownership facts from
// any previous identity are discarded and both streams reload for the new
// one; reads served while the reload is in flight reflect the loading state,
// never the old identity's data.
func (c *Client) SetIdentity(ctx context.Context, identity hub.Identity) error {
	c.mu.Lock()
	c.identity = identity
	c.mu.Unlock()

	if err := c.messages.Open(ctx, identity); err != nil {
		return fmt.Errorf("failed to open message stream: %v", err)
	}
	c.ownership.Refresh(ctx, identity.ID)
	return nil
}

// ClearIdentity logs the user out. Both streams drop back to uninitialized.
func (c *Client) ClearIdentity() {
	c.mu.Lock()
	c.identity = hub.Identity{}
	c.mu.Unlock()

	c.messages.Close()
	c.ownership.Close()
}

func (c *Client) currentIdentity() hub.Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

// Messages returns the current merged conversation view.
func (c *Client) Messages() []hub.Message {
	return c.messages.Messages()
}

// MessagesState reports whether the conversation view is still loading and
// surfaces any snapshot failure alongside it.
func (c *Client) MessagesState() (usecase.StreamState, error) {
	return c.messages.State(), c.messages.Err()
}

// OnMessages registers an observer that fires with a fresh copy of the view
// whenever it changes.
func (c *Client) OnMessages(fn func([]hub.Message)) {
	c.messages.Watch(fn)
}

// PostMessage sends a chat message as the active identity. The message is
// visible locally right away in a pending state and settles to confirmed or
// failed as the server responds.
func (c *Client) PostMessage(content string) (hub.Message, error) {
	return c.messages.Post(content)
}

// RetryMessages re-runs a failed history fetch for the active identity.
func (c *Client) RetryMessages(ctx context.Context) {
	c.messages.Retry(ctx)
}

// OwnershipState reports whether purchase facts for the active identity are
// loaded yet, and surfaces any refresh failure.
func (c *Client) OwnershipState() (usecase.StreamState, error) {
	return c.ownership.State(), c.ownership.Err()
}

// IsOwned reports whether the active identity has purchased the gig. While
// ownership is still loading the answer is false; purchase-gated UI stays
// locked until facts are known.
func (c *Client) IsOwned(gigID string) bool {
	return c.ownership.IsOwned(gigID)
}

// FilterGigs lists the catalog, optionally narrowed by category and by a
// case-insensitive title substring.
func (c *Client) FilterGigs(ctx context.Context, category, search string) ([]hub.Gig, error) {
	if category == "All" {
		category = ""
	}
	gigs, err := c.catalog.ListGigs(ctx, category, "")
	if err != nil {
		return nil, err
	}
	if search == "" {
		return gigs, nil
	}

	needle := strings.ToLower(search)
	filtered := make([]hub.Gig, 0, len(gigs))
	for _, gig := range gigs {
		if strings.Contains(strings.ToLower(gig.Title), needle) {
			filtered = append(filtered, gig)
		}
	}
	return filtered, nil
}

// Gig fetches one catalog entry.
func (c *Client) Gig(ctx context.Context, gigID string) (hub.Gig, error) {
	return c.catalog.GetGig(ctx, gigID)
}

// Reviews lists the reviews for a gig.
func (c *Client) Reviews(ctx context.Context, gigID string) ([]hub.Review, error) {
	return c.catalog.ListReviews(ctx, gigID)
}

// SubmitReview posts a review for a gig. Only clients who have purchased the
// gig may review it; the check runs against the local ownership cache, so it
// fails while facts are still loading rather than guessing.
func (c *Client) SubmitReview(ctx context.Context, gigID string, rating int, comment string) (hub.Review, error) {
	identity := c.currentIdentity()
	if identity.ID == "" {
		return hub.Review{}, domain.ErrNotJoined
	}
	if identity.Role != hub.RoleClient {
		return hub.Review{}, fmt.Errorf("only clients can review gigs")
	}
	if !c.ownership.IsOwned(gigID) {
		return hub.Review{}, usecase.ErrNotPurchased
	}
	return c.catalog.SubmitReview(ctx, hub.Review{
		GigID:   gigID,
		UserID:  identity.ID,
		Rating:  rating,
		Comment: comment,
	})
}

// Checkout charges the active identity for a gig and records the order. On
// success the ownership cache learns the purchase immediately, without
// waiting for a refetch or a push event.
func (c *Client) Checkout(ctx context.Context, gigID string) (hub.Order, error) {
	identity := c.currentIdentity()
	if identity.ID == "" {
		return hub.Order{}, domain.ErrNotJoined
	}

	gig, err := c.catalog.GetGig(ctx, gigID)
	if err != nil {
		return hub.Order{}, fmt.Errorf("failed to load gig for checkout: %v", err)
	}

	if err := c.payments.Charge(ctx, identity.ID, gig); err != nil {
		return hub.Order{}, fmt.Errorf("payment declined: %v", err)
	}

	order, err := c.catalog.CreateOrder(ctx, hub.Order{
		GigID:   gigID,
		BuyerID: identity.ID,
	})
	if err != nil {
		return hub.Order{}, fmt.Errorf("failed to record order: %v", err)
	}

	c.ownership.RecordPurchase(gigID)
	return order, nil
}

// Close tears the client down.
func (c *Client) Close() {
	c.messages.Close()
	c.ownership.Close()
}
