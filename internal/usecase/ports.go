package usecase

import (
	"context"
	"encoding/json"

	"github.com/freelancehub/hub"
)

// Channel is the process-wide persistent push connection. Implementations
// must make Connect idempotent, reference-count Join/Leave per identity, and
// retry transport loss transparently.
type Channel interface {
	Connect(ctx context.Context) error
	Join(identityID string) error
	Leave(identityID string)
	Send(event string, payload any) error
	On(event string, handler func(payload json.RawMessage))
	Off(event string)
}

// HistoryGateway fetches the point-in-time message history snapshot. An empty
// slice is a valid, non-error response.
type HistoryGateway interface {
	FetchHistory(ctx context.Context, identityID string) ([]hub.WireMessage, error)
}

// OwnershipGateway fetches the identifiers of gigs the identity has
// purchased.
type OwnershipGateway interface {
	FetchOwnedGigIDs(ctx context.Context, identityID string) ([]string, error)
}

// MessageRepository defines server-side storage for chat messages. Messages
// live in per-identity rooms; the room comes from the connection's join, not
// from the message itself.
type MessageRepository interface {
	Save(ctx context.Context, room string, msg hub.WireMessage) (hub.WireMessage, error)
	History(ctx context.Context, room string, limit int) ([]hub.WireMessage, error)
}

// GigRepository defines server-side storage for catalog items.
type GigRepository interface {
	Create(ctx context.Context, gig hub.Gig) (hub.Gig, error)
	Get(ctx context.Context, id string) (hub.Gig, error)
	List(ctx context.Context, category string) ([]hub.Gig, error)
	AddStars(ctx context.Context, id string, stars int) error
}

// OrderRepository defines server-side storage for completed purchases.
type OrderRepository interface {
	Create(ctx context.Context, order hub.Order) (hub.Order, error)
	ListByBuyer(ctx context.Context, buyerID string) ([]hub.Order, error)
}

// ReviewRepository defines server-side storage for gig reviews.
type ReviewRepository interface {
	Create(ctx context.Context, review hub.Review) (hub.Review, error)
	ListByGig(ctx context.Context, gigID string) ([]hub.Review, error)
}
