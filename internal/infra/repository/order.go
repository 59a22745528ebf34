package repository

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"gorm.io/gorm"

	"github.com/freelancehub/hub"
	"github.com/freelancehub/hub/internal/infra/database/models"
	"github.com/freelancehub/hub/internal/usecase"
)

const orderCacheTTL = 5 * time.Minute

// OrderRepository stores completed purchases. The per-buyer listing backs the
// ownership snapshot endpoint, which every client hits on login, so it is
// cached in memcached and invalidated on write.
type OrderRepository struct {
	db *gorm.DB
	mc *memcache.Client
}

func NewOrderRepository(db *gorm.DB, mc *memcache.Client) *OrderRepository {
	return &OrderRepository{db: db, mc: mc}
}

func (r *OrderRepository) Create(ctx context.Context, order hub.Order) (hub.Order, error) {
	record := models.Order{
		ID:        order.ID,
		GigID:     order.GigID,
		BuyerID:   order.BuyerID,
		Amount:    order.Amount,
		PaymentID: order.PaymentID,
	}

	if err := r.db.WithContext(ctx).Create(&record).Error; err != nil {
		return hub.Order{}, err
	}

	if r.mc != nil {
		if err := r.mc.Delete(orderCacheKey(order.BuyerID)); err != nil && err != memcache.ErrCacheMiss {
			slog.Warn("order cache invalidation failed",
				slog.String("buyer", order.BuyerID),
				slog.String("error", err.Error()),
				slog.String("module", "repository"),
			)
		}
	}

	return orderFromModel(record), nil
}

func (r *OrderRepository) ListByBuyer(ctx context.Context, buyerID string) ([]hub.Order, error) {
	if r.mc != nil {
		if item, err := r.mc.Get(orderCacheKey(buyerID)); err == nil {
			var cached []hub.Order
			if err := json.Unmarshal(item.Value, &cached); err == nil {
				return cached, nil
			}
		}
	}

	var records []models.Order
	err := r.db.WithContext(ctx).
		Where("buyer_id = ?", buyerID).
		Order("created_at asc").
		Find(&records).Error
	if err != nil {
		return nil, err
	}

	orders := make([]hub.Order, 0, len(records))
	for _, record := range records {
		orders = append(orders, orderFromModel(record))
	}

	if r.mc != nil {
		if encoded, err := json.Marshal(orders); err == nil {
			r.mc.Set(&memcache.Item{
				Key:        orderCacheKey(buyerID),
				Value:      encoded,
				Expiration: int32(orderCacheTTL.Seconds()),
			})
		}
	}

	return orders, nil
}

func orderCacheKey(buyerID string) string {
	return "orders:buyer:" + buyerID
}

func orderFromModel(record models.Order) hub.Order {
	return hub.Order{
		ID:        record.ID,
		GigID:     record.GigID,
		BuyerID:   record.BuyerID,
		Amount:    record.Amount,
		PaymentID: record.PaymentID,
		CreatedAt: record.CreatedAt,
	}
}

var _ usecase.OrderRepository = (*OrderRepository)(nil)
