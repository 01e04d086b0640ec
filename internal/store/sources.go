package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/scholarai/citecheck/internal/models"
)

type gormSourceProvider struct {
	db *gorm.DB
}

// NewSourceProvider returns a SourceProvider backed by the context_sources
// table. The selection is written by the project service; this side only
// reads it when assembling an analysis request.
func NewSourceProvider(db *gorm.DB) SourceProvider {
	return &gormSourceProvider{db: db}
}

func (p *gormSourceProvider) CandidateSources(ctx context.Context, projectID uuid.UUID) ([]string, error) {
	var paperIDs []string
	err := p.db.WithContext(ctx).
		Model(&models.ContextSource{}).
		Where("project_id = ?", projectID).
		Order("created_at ASC").
		Pluck("paper_id", &paperIDs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load context sources: %w", err)
	}
	return paperIDs, nil
}
