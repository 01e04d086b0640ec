package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/scholarai/citecheck/internal/models"
)

// ErrNotFound is returned when a job or issue does not exist. Callers decide
// whether absence is fatal; it never panics through the API layer.
var ErrNotFound = errors.New("record not found")

// Store is the persistence boundary for check jobs, issues and evidence.
type Store interface {
	CreateJob(ctx context.Context, job *models.CheckJob) error
	GetJob(ctx context.Context, id uuid.UUID) (*models.CheckJob, error)
	LatestForDocument(ctx context.Context, documentID uuid.UUID) (*models.CheckJob, error)
	LatestCompletedForDocument(ctx context.Context, documentID uuid.UUID) (*models.CheckJob, error)
	ListForProject(ctx context.Context, projectID uuid.UUID) ([]models.CheckJob, error)
	DeleteCompletedForDocument(ctx context.Context, documentID uuid.UUID) error

	// AdvanceJob applies a status/step/progress transition only while the job
	// is still non-terminal. It reports whether the write was applied, so a
	// worker whose job was cancelled underneath it can stop.
	AdvanceJob(ctx context.Context, id uuid.UUID, status models.CheckStatus, step models.CheckStep, progress int) (bool, error)

	// FailJob transitions a non-terminal job to ERROR with the given message.
	FailJob(ctx context.Context, id uuid.UUID, message string) (bool, error)

	// FinalizeJob persists the issues and flips the job to DONE in a single
	// transaction, removing any other completed job for the same document so
	// only one completed result stays live. If the job went terminal in the
	// meantime the transaction is rolled back and applied=false is returned.
	FinalizeJob(ctx context.Context, id uuid.UUID, issues []models.Issue, summary models.CheckSummary) (bool, error)

	SetIssueResolved(ctx context.Context, issueID uuid.UUID, resolved bool) error
}

// SourceProvider yields the candidate source papers currently selected as
// citation-check context for a project.
type SourceProvider interface {
	CandidateSources(ctx context.Context, projectID uuid.UUID) ([]string, error)
}

type gormStore struct {
	db *gorm.DB
}

// New returns a gorm-backed Store.
func New(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) CreateJob(ctx context.Context, job *models.CheckJob) error {
	if err := s.db.WithContext(ctx).Create(job).Error; err != nil {
		return fmt.Errorf("failed to create check job: %w", err)
	}
	return nil
}

func (s *gormStore) GetJob(ctx context.Context, id uuid.UUID) (*models.CheckJob, error) {
	var job models.CheckJob
	err := s.db.WithContext(ctx).
		Preload("Issues").
		Preload("Issues.Evidence").
		First(&job, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch check job: %w", err)
	}
	return &job, nil
}

func (s *gormStore) LatestForDocument(ctx context.Context, documentID uuid.UUID) (*models.CheckJob, error) {
	var job models.CheckJob
	err := s.db.WithContext(ctx).
		Preload("Issues").
		Preload("Issues.Evidence").
		Where("document_id = ?", documentID).
		Order("created_at DESC").
		First(&job).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch latest check job: %w", err)
	}
	return &job, nil
}

func (s *gormStore) LatestCompletedForDocument(ctx context.Context, documentID uuid.UUID) (*models.CheckJob, error) {
	var job models.CheckJob
	err := s.db.WithContext(ctx).
		Where("document_id = ? AND status = ?", documentID, models.CheckStatusDone).
		Order("created_at DESC").
		First(&job).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch completed check job: %w", err)
	}
	return &job, nil
}

func (s *gormStore) ListForProject(ctx context.Context, projectID uuid.UUID) ([]models.CheckJob, error) {
	// Summaries only: issues are intentionally not preloaded for list views.
	var jobs []models.CheckJob
	err := s.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("created_at DESC").
		Find(&jobs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list check jobs: %w", err)
	}
	return jobs, nil
}

func (s *gormStore) DeleteCompletedForDocument(ctx context.Context, documentID uuid.UUID) error {
	err := s.db.WithContext(ctx).
		Where("document_id = ? AND status = ?", documentID, models.CheckStatusDone).
		Delete(&models.CheckJob{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete superseded check jobs: %w", err)
	}
	return nil
}

func (s *gormStore) AdvanceJob(ctx context.Context, id uuid.UUID, status models.CheckStatus, step models.CheckStep, progress int) (bool, error) {
	result := s.db.WithContext(ctx).
		Model(&models.CheckJob{}).
		Where("id = ? AND status IN ?", id, []models.CheckStatus{models.CheckStatusQueued, models.CheckStatusRunning}).
		Updates(map[string]any{
			"status":           status,
			"step":             step,
			"progress_percent": progress,
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to advance check job: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (s *gormStore) FailJob(ctx context.Context, id uuid.UUID, message string) (bool, error) {
	result := s.db.WithContext(ctx).
		Model(&models.CheckJob{}).
		Where("id = ? AND status IN ?", id, []models.CheckStatus{models.CheckStatusQueued, models.CheckStatusRunning}).
		Updates(map[string]any{
			"status":        models.CheckStatusError,
			"error_message": message,
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to fail check job: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (s *gormStore) FinalizeJob(ctx context.Context, id uuid.UUID, issues []models.Issue, summary models.CheckSummary) (bool, error) {
	applied := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.CheckJob{}).
			Where("id = ? AND status IN ?", id, []models.CheckStatus{models.CheckStatusQueued, models.CheckStatusRunning}).
			Updates(map[string]any{
				"status":           models.CheckStatusDone,
				"step":             models.StepDone,
				"progress_percent": 100,
				"summary":          summary,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			// Job was cancelled or failed while the engine was running;
			// discard the results.
			return nil
		}

		// Concurrent forced rechecks can leave an older job mid-run past the
		// delete-before-insert on submission; evict its result here so only
		// one completed job survives per document.
		var job models.CheckJob
		if err := tx.Select("document_id").First(&job, "id = ?", id).Error; err != nil {
			return err
		}
		err := tx.Where("document_id = ? AND status = ? AND id <> ?", job.DocumentID, models.CheckStatusDone, id).
			Delete(&models.CheckJob{}).Error
		if err != nil {
			return err
		}

		for i := range issues {
			issues[i].CheckJobID = id
		}
		if len(issues) > 0 {
			if err := tx.Create(&issues).Error; err != nil {
				return err
			}
		}

		applied = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to finalize check job: %w", err)
	}
	return applied, nil
}

func (s *gormStore) SetIssueResolved(ctx context.Context, issueID uuid.UUID, resolved bool) error {
	result := s.db.WithContext(ctx).
		Model(&models.Issue{}).
		Where("id = ?", issueID).
		Update("resolved", resolved)
	if result.Error != nil {
		return fmt.Errorf("failed to update issue: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
