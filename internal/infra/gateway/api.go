// Package gateway talks to the marketplace REST API. It is the snapshot side
// of the client: the push channel carries deltas, this package fetches
// baselines.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel"

	"github.com/freelancehub/hub"
	"github.com/freelancehub/hub/internal/usecase"
)

var tracer = otel.Tracer("gateway")

const defaultTimeout = 3 * time.Second

type APIGateway struct {
	client  *http.Client
	cache   *cache.Cache
	baseURL string
	token   string
}

func NewAPIGateway(baseURL, accessToken string) *APIGateway {
	return &APIGateway{
		client:  &http.Client{Timeout: defaultTimeout},
		cache:   cache.New(10*time.Minute, 15*time.Minute),
		baseURL: baseURL,
		token:   accessToken,
	}
}

// FetchHistory loads the full message history for a conversation. The result
// is a point-in-time baseline; events that raced the request arrive on the
// push channel and are merged by the caller.
func (g *APIGateway) FetchHistory(ctx context.Context, identityID string) ([]hub.WireMessage, error) {
	ctx, span := tracer.Start(ctx, "Gateway.FetchHistory")
	defer span.End()

	var messages []hub.WireMessage
	err := g.get(ctx, "/api/messages?identity="+url.QueryEscape(identityID), &messages)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to fetch message history: %v", err)
	}
	return messages, nil
}

// ownedResponse tolerates the shapes the orders endpoint has shipped with.
// Older deployments return {"orders": [...]}, newer ones {"ownedGigs": [...]}.
type ownedResponse struct {
	Orders    []hub.Order `json:"orders"`
	OwnedGigs []string    `json:"ownedGigs"`
}

func (g *APIGateway) FetchOwnedGigIDs(ctx context.Context, identityID string) ([]string, error) {
	ctx, span := tracer.Start(ctx, "Gateway.FetchOwnedGigIDs")
	defer span.End()

	body, err := g.getRaw(ctx, "/api/orders/my?buyer="+url.QueryEscape(identityID))
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to fetch owned gigs: %v", err)
	}

	var wrapped ownedResponse
	if err := json.Unmarshal(body, &wrapped); err == nil {
		if wrapped.OwnedGigs != nil {
			return wrapped.OwnedGigs, nil
		}
		if wrapped.Orders != nil {
			ids := make([]string, 0, len(wrapped.Orders))
			for _, order := range wrapped.Orders {
				ids = append(ids, order.GigID)
			}
			return ids, nil
		}
	}

	// Bare array fallback.
	var ids []string
	if err := json.Unmarshal(body, &ids); err != nil {
		return nil, fmt.Errorf("unrecognized owned gigs response: %v", err)
	}
	return ids, nil
}

func (g *APIGateway) ListGigs(ctx context.Context, category, search string) ([]hub.Gig, error) {
	query := url.Values{}
	if category != "" {
		query.Set("category", category)
	}
	if search != "" {
		query.Set("search", search)
	}

	cacheKey := "gigs:" + query.Encode()
	if cached, found := g.cache.Get(cacheKey); found {
		return cached.([]hub.Gig), nil
	}

	var gigs []hub.Gig
	path := "/api/gigs"
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}
	err := g.get(ctx, path, &gigs)
	if err != nil {
		return nil, fmt.Errorf("failed to list gigs: %v", err)
	}

	g.cache.Set(cacheKey, gigs, cache.DefaultExpiration)
	return gigs, nil
}

func (g *APIGateway) GetGig(ctx context.Context, gigID string) (hub.Gig, error) {
	cacheKey := "gig:" + gigID
	if cached, found := g.cache.Get(cacheKey); found {
		return cached.(hub.Gig), nil
	}

	var gig hub.Gig
	err := g.get(ctx, "/api/gigs/"+url.PathEscape(gigID), &gig)
	if err != nil {
		return hub.Gig{}, fmt.Errorf("failed to get gig %s: %v", gigID, err)
	}

	g.cache.Set(cacheKey, gig, cache.DefaultExpiration)
	return gig, nil
}

func (g *APIGateway) ListReviews(ctx context.Context, gigID string) ([]hub.Review, error) {
	var reviews []hub.Review
	err := g.get(ctx, "/api/reviews/"+url.PathEscape(gigID), &reviews)
	if err != nil {
		return nil, fmt.Errorf("failed to list reviews for gig %s: %v", gigID, err)
	}
	return reviews, nil
}

func (g *APIGateway) SubmitReview(ctx context.Context, review hub.Review) (hub.Review, error) {
	ctx, span := tracer.Start(ctx, "Gateway.SubmitReview")
	defer span.End()

	var created hub.Review
	err := g.post(ctx, "/api/reviews", review, &created)
	if err != nil {
		span.RecordError(err)
		return hub.Review{}, fmt.Errorf("failed to submit review: %v", err)
	}
	return created, nil
}

func (g *APIGateway) CreateOrder(ctx context.Context, order hub.Order) (hub.Order, error) {
	ctx, span := tracer.Start(ctx, "Gateway.CreateOrder")
	defer span.End()

	var created hub.Order
	err := g.post(ctx, "/api/orders", order, &created)
	if err != nil {
		span.RecordError(err)
		return hub.Order{}, fmt.Errorf("failed to create order: %v", err)
	}
	return created, nil
}

func (g *APIGateway) get(ctx context.Context, path string, response any) error {
	body, err := g.getRaw(ctx, path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, response); err != nil {
		return fmt.Errorf("failed to decode response: %v", err)
	}
	return nil
}

func (g *APIGateway) getRaw(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %v", err)
	}
	return g.do(req)
}

func (g *APIGateway) post(ctx context.Context, path string, payload, response any) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode request body: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := g.do(req)
	if err != nil {
		return err
	}
	if response == nil {
		return nil
	}
	if err := json.Unmarshal(body, response); err != nil {
		return fmt.Errorf("failed to decode response: %v", err)
	}
	return nil
}

func (g *APIGateway) do(req *http.Request) ([]byte, error) {
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to perform request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, fmt.Errorf("failed to read response body: %v", err)
	}
	return buf.Bytes(), nil
}

var (
	_ usecase.HistoryGateway   = (*APIGateway)(nil)
	_ usecase.OwnershipGateway = (*APIGateway)(nil)
)
