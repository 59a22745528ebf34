package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/freelancehub/hub"
	"github.com/freelancehub/hub/internal/domain"
	"github.com/freelancehub/hub/internal/infra/database/models"
	"github.com/freelancehub/hub/internal/usecase"
)

type GigRepository struct {
	db *gorm.DB
}

func NewGigRepository(db *gorm.DB) *GigRepository {
	return &GigRepository{db: db}
}

func (r *GigRepository) Create(ctx context.Context, gig hub.Gig) (hub.Gig, error) {
	record := models.Gig{
		ID:          gig.ID,
		SellerID:    gig.SellerID,
		Title:       gig.Title,
		Description: gig.Description,
		Category:    gig.Category,
		Price:       gig.Price,
		Cover:       gig.Cover,
	}

	if err := r.db.WithContext(ctx).Create(&record).Error; err != nil {
		return hub.Gig{}, err
	}
	return gigFromModel(record), nil
}

func (r *GigRepository) Get(ctx context.Context, id string) (hub.Gig, error) {
	var record models.Gig
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&record).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return hub.Gig{}, domain.NotFoundError{Resource: "gig"}
		}
		return hub.Gig{}, err
	}
	return gigFromModel(record), nil
}

func (r *GigRepository) List(ctx context.Context, category string) ([]hub.Gig, error) {
	query := r.db.WithContext(ctx).Order("created_at desc")
	if category != "" {
		query = query.Where("category = ?", category)
	}

	var records []models.Gig
	if err := query.Find(&records).Error; err != nil {
		return nil, err
	}

	gigs := make([]hub.Gig, 0, len(records))
	for _, record := range records {
		gigs = append(gigs, gigFromModel(record))
	}
	return gigs, nil
}

// AddStars folds one review into the gig's running rating.
func (r *GigRepository) AddStars(ctx context.Context, id string, stars int) error {
	result := r.db.WithContext(ctx).Model(&models.Gig{}).
		Where("id = ?", id).
		UpdateColumns(map[string]any{
			"total_stars": gorm.Expr("total_stars + ?", stars),
			"star_number": gorm.Expr("star_number + 1"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.NotFoundError{Resource: "gig"}
	}
	return nil
}

func gigFromModel(record models.Gig) hub.Gig {
	return hub.Gig{
		ID:          record.ID,
		SellerID:    record.SellerID,
		Title:       record.Title,
		Description: record.Description,
		Category:    record.Category,
		Price:       record.Price,
		Cover:       record.Cover,
		TotalStars:  record.TotalStars,
		StarNumber:  record.StarNumber,
		CreatedAt:   record.CreatedAt,
	}
}

var _ usecase.GigRepository = (*GigRepository)(nil)
