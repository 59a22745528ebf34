package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/freelancehub/hub"
)

var tracer = otel.Tracer("usecase")

// ErrNotPurchased rejects a review from an identity that never bought the gig.
var ErrNotPurchased = fmt.Errorf("review requires a completed purchase")

// ReviewUsecase enforces the purchase gate server-side; the client performs
// the same check against its ownership cache, but the server is the source of
// truth.
type ReviewUsecase struct {
	reviews ReviewRepository
	orders  OrderRepository
	gigs    GigRepository
}

func NewReviewUsecase(reviews ReviewRepository, orders OrderRepository, gigs GigRepository) *ReviewUsecase {
	return &ReviewUsecase{reviews: reviews, orders: orders, gigs: gigs}
}

func (uc *ReviewUsecase) Submit(ctx context.Context, review hub.Review) (hub.Review, error) {
	ctx, span := tracer.Start(ctx, "Review.Usecase.Submit")
	defer span.End()

	review.Comment = strings.TrimSpace(review.Comment)
	if review.Rating < 1 || review.Rating > 5 {
		return hub.Review{}, fmt.Errorf("rating must be between 1 and 5")
	}
	if review.Comment == "" {
		return hub.Review{}, fmt.Errorf("comment is required")
	}

	orders, err := uc.orders.ListByBuyer(ctx, review.UserID)
	if err != nil {
		span.RecordError(err)
		return hub.Review{}, err
	}
	purchased := false
	for _, o := range orders {
		if o.GigID == review.GigID {
			purchased = true
			break
		}
	}
	if !purchased {
		span.RecordError(ErrNotPurchased)
		return hub.Review{}, ErrNotPurchased
	}

	if review.ID == "" {
		review.ID = hub.NewID()
	}
	if review.CreatedAt.IsZero() {
		review.CreatedAt = time.Now().UTC()
	}

	created, err := uc.reviews.Create(ctx, review)
	if err != nil {
		span.RecordError(err)
		return hub.Review{}, err
	}
	if err := uc.gigs.AddStars(ctx, review.GigID, review.Rating); err != nil {
		span.RecordError(err)
		return hub.Review{}, err
	}
	return created, nil
}

func (uc *ReviewUsecase) ListByGig(ctx context.Context, gigID string) ([]hub.Review, error) {
	return uc.reviews.ListByGig(ctx, gigID)
}
