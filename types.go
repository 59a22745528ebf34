package hub

import (
	"encoding/json"
	"fmt"
	"time"
)

// Role is the acting side of an identity on the marketplace.
type Role string

const (
	RoleClient     Role = "client"
	RoleFreelancer Role = "freelancer"
)

// Identity is the acting user. Every reconciliation stream is scoped to one
// identity; streams are torn down and rebuilt when it changes.
type Identity struct {
	ID    string `json:"id"`
	Role  Role   `json:"role"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// DeliveryState tracks a chat entry from optimistic local append to server
// confirmation.
type DeliveryState string

const (
	// DeliveryPending marks a locally appended entry that has not been
	// confirmed by the server yet.
	DeliveryPending DeliveryState = "pending-local"
	// DeliveryConfirmed marks an entry the server has acknowledged. Confirmed
	// entries are never removed or reordered.
	DeliveryConfirmed DeliveryState = "confirmed"
	// DeliveryFailed marks a pending entry whose confirmation never arrived
	// within the bounded wait.
	DeliveryFailed DeliveryState = "failed"
)

// Message is one chat entry as seen by consumers.
type Message struct {
	ID              string        `json:"id,omitempty"`
	ClientMessageID string        `json:"clientMessageId,omitempty"`
	Sender          string        `json:"sender"`
	Content         string        `json:"content"`
	CreatedAt       time.Time     `json:"createdAt"`
	State           DeliveryState `json:"state"`
}

// WireMessage is the message shape on the snapshot and push contracts.
type WireMessage struct {
	ID              string    `json:"id,omitempty"`
	ClientMessageID string    `json:"clientMessageId,omitempty"`
	Sender          string    `json:"sender"`
	Content         string    `json:"content"`
	CreatedAt       time.Time `json:"createdAt"`
}

// Confirmed lifts a wire message into a server-confirmed Message.
func (w WireMessage) Confirmed() Message {
	return Message{
		ID:              w.ID,
		ClientMessageID: w.ClientMessageID,
		Sender:          w.Sender,
		Content:         w.Content,
		CreatedAt:       w.CreatedAt,
		State:           DeliveryConfirmed,
	}
}

// Channel event names shared by the SDK and the reference server.
const (
	EventJoin           = "join"
	EventSendMessage    = "send-message"
	EventReceiveMessage = "receive-message"
	EventOrderCompleted = "order-completed"
)

// Frame is the envelope for every event on the push channel.
type Frame struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewFrame wraps a payload into a Frame, panicking only on unmarshalable
// values, which would be a programming error.
func NewFrame(event string, payload any) Frame {
	raw, err := json.Marshal(payload)
	if err != nil {
		panic(fmt.Sprintf("unmarshalable frame payload for %s: %v", event, err))
	}
	return Frame{Event: event, Payload: raw}
}

// Decode unmarshals the frame payload into v.
func (f Frame) Decode(v any) error {
	return json.Unmarshal(f.Payload, v)
}

// JoinPayload registers interest in events addressed to an identity. Sent once
// per connection establishment per identity.
type JoinPayload struct {
	IdentityID string `json:"identityId"`
}

// OrderEvent is the membership-change push for the ownership stream.
type OrderEvent struct {
	BuyerID string `json:"buyerId"`
	GigID   string `json:"gigId"`
}

// Gig is a catalog item.
type Gig struct {
	ID          string    `json:"id"`
	SellerID    string    `json:"sellerId"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Category    string    `json:"category"`
	Price       int64     `json:"price"`
	Cover       string    `json:"cover,omitempty"`
	TotalStars  int64     `json:"totalStars"`
	StarNumber  int64     `json:"starNumber"`
	CreatedAt   time.Time `json:"createdAt,omitempty"`
}

// AverageRating is the star display value: totalStars over the review count.
func (g Gig) AverageRating() float64 {
	if g.StarNumber == 0 {
		return 0
	}
	return float64(g.TotalStars) / float64(g.StarNumber)
}

// Order records a completed purchase of a gig by a buyer.
type Order struct {
	ID        string    `json:"id"`
	GigID     string    `json:"gigId"`
	BuyerID   string    `json:"buyerId"`
	Amount    int64     `json:"amount"`
	PaymentID string    `json:"paymentId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Review is a purchase-gated gig review.
type Review struct {
	ID        string    `json:"id"`
	GigID     string    `json:"gigId"`
	UserID    string    `json:"userId"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"createdAt"`
}
