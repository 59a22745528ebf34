package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/freelancehub/hub"
)

// OrderUsecase records completed purchases and answers ownership queries.
type OrderUsecase struct {
	repo OrderRepository
}

func NewOrderUsecase(repo OrderRepository) *OrderUsecase {
	return &OrderUsecase{repo: repo}
}

func (uc *OrderUsecase) Create(ctx context.Context, order hub.Order) (hub.Order, error) {
	ctx, span := tracer.Start(ctx, "Order.Usecase.Create")
	defer span.End()

	if order.GigID == "" || order.BuyerID == "" {
		err := fmt.Errorf("gigId and buyerId are required")
		span.RecordError(err)
		return hub.Order{}, err
	}
	if order.ID == "" {
		order.ID = hub.NewID()
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}
	return uc.repo.Create(ctx, order)
}

func (uc *OrderUsecase) ListByBuyer(ctx context.Context, buyerID string) ([]hub.Order, error) {
	return uc.repo.ListByBuyer(ctx, buyerID)
}

// OwnedGigIDs derives the ownership snapshot from the buyer's orders.
func (uc *OrderUsecase) OwnedGigIDs(ctx context.Context, buyerID string) ([]string, error) {
	orders, err := uc.repo.ListByBuyer(ctx, buyerID)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(orders))
	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		if _, ok := seen[o.GigID]; ok {
			continue
		}
		seen[o.GigID] = struct{}{}
		ids = append(ids, o.GigID)
	}
	return ids, nil
}
