package usecase

import (
	"context"
	"strings"
	"time"

	"github.com/freelancehub/hub"
)

// CatalogUsecase serves gig listing and lookup for the platform surface.
type CatalogUsecase struct {
	repo GigRepository
}

func NewCatalogUsecase(repo GigRepository) *CatalogUsecase {
	return &CatalogUsecase{repo: repo}
}

func (uc *CatalogUsecase) Create(ctx context.Context, gig hub.Gig) (hub.Gig, error) {
	if gig.ID == "" {
		gig.ID = hub.NewID()
	}
	if gig.CreatedAt.IsZero() {
		gig.CreatedAt = time.Now().UTC()
	}
	gig.Title = strings.TrimSpace(gig.Title)
	return uc.repo.Create(ctx, gig)
}

func (uc *CatalogUsecase) Get(ctx context.Context, id string) (hub.Gig, error) {
	return uc.repo.Get(ctx, id)
}

func (uc *CatalogUsecase) List(ctx context.Context, category string) ([]hub.Gig, error) {
	if category == "All" {
		category = ""
	}
	return uc.repo.List(ctx, category)
}
