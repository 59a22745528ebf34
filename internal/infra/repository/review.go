package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/freelancehub/hub"
	"github.com/freelancehub/hub/internal/infra/database/models"
	"github.com/freelancehub/hub/internal/usecase"
)

type ReviewRepository struct {
	db *gorm.DB
}

func NewReviewRepository(db *gorm.DB) *ReviewRepository {
	return &ReviewRepository{db: db}
}

func (r *ReviewRepository) Create(ctx context.Context, review hub.Review) (hub.Review, error) {
	record := models.Review{
		ID:      review.ID,
		GigID:   review.GigID,
		UserID:  review.UserID,
		Rating:  review.Rating,
		Comment: review.Comment,
	}

	if err := r.db.WithContext(ctx).Create(&record).Error; err != nil {
		return hub.Review{}, err
	}
	return reviewFromModel(record), nil
}

func (r *ReviewRepository) ListByGig(ctx context.Context, gigID string) ([]hub.Review, error) {
	var records []models.Review
	err := r.db.WithContext(ctx).
		Where("gig_id = ?", gigID).
		Order("created_at desc").
		Find(&records).Error
	if err != nil {
		return nil, err
	}

	reviews := make([]hub.Review, 0, len(records))
	for _, record := range records {
		reviews = append(reviews, reviewFromModel(record))
	}
	return reviews, nil
}

func reviewFromModel(record models.Review) hub.Review {
	return hub.Review{
		ID:        record.ID,
		GigID:     record.GigID,
		UserID:    record.UserID,
		Rating:    record.Rating,
		Comment:   record.Comment,
		CreatedAt: record.CreatedAt,
	}
}

var _ usecase.ReviewRepository = (*ReviewRepository)(nil)
