package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CheckStatus string

const (
	CheckStatusQueued  CheckStatus = "QUEUED"
	CheckStatusRunning CheckStatus = "RUNNING"
	CheckStatusDone    CheckStatus = "DONE"
	CheckStatusError   CheckStatus = "ERROR"
)

// Terminal reports whether the status admits no further transitions.
func (s CheckStatus) Terminal() bool {
	return s == CheckStatusDone || s == CheckStatusError
}

type CheckStep string

const (
	StepParsing        CheckStep = "PARSING"
	StepLocalRetrieval CheckStep = "LOCAL_RETRIEVAL"
	StepWebRetrieval   CheckStep = "WEB_RETRIEVAL"
	StepSaving         CheckStep = "SAVING"
	StepDone           CheckStep = "DONE"
)

// CancelledMessage is the fixed error message recorded on user cancellation.
const CancelledMessage = "cancelled by user"

// CheckSummary is the aggregate result stored on a DONE job.
type CheckSummary struct {
	TotalIssues  int       `json:"totalIssues"`
	ErrorCount   int       `json:"errorCount"`   // HIGH severity
	WarningCount int       `json:"warningCount"` // MEDIUM severity
	InfoCount    int       `json:"infoCount"`    // LOW severity
	CompletedAt  time.Time `json:"completedAt"`
}

func (s CheckSummary) Value() (driver.Value, error) {
	return json.Marshal(s)
}

func (s *CheckSummary) Scan(value any) error {
	if value == nil {
		*s = CheckSummary{}
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type for CheckSummary: %T", value)
	}

	return json.Unmarshal(data, s)
}

// NewCheckSummary aggregates issue counts by severity.
func NewCheckSummary(issues []Issue, completedAt time.Time) CheckSummary {
	summary := CheckSummary{
		TotalIssues: len(issues),
		CompletedAt: completedAt,
	}
	for _, issue := range issues {
		switch issue.Severity {
		case SeverityHigh:
			summary.ErrorCount++
		case SeverityMedium:
			summary.WarningCount++
		case SeverityLow:
			summary.InfoCount++
		}
	}
	return summary
}

// CheckJob is one asynchronous citation-check run for a document.
// Processing fields (status, step, progress, summary) are mutated only by
// the orchestrator; API consumers read them.
type CheckJob struct {
	ID              uuid.UUID     `json:"id" gorm:"type:uuid;primaryKey"`
	ProjectID       uuid.UUID     `json:"projectId" gorm:"type:uuid;not null;index"`
	DocumentID      uuid.UUID     `json:"documentId" gorm:"type:uuid;not null;index"`
	Filename        string        `json:"filename" gorm:"default:'document.tex'"`
	Status          CheckStatus   `json:"status" gorm:"type:varchar(16);not null;default:'QUEUED'"`
	Step            CheckStep     `json:"step" gorm:"type:varchar(24);not null;default:'PARSING'"`
	ProgressPercent int           `json:"progressPercent" gorm:"default:0"`
	ErrorMessage    string        `json:"errorMessage,omitempty" gorm:"type:text"`
	Summary         *CheckSummary `json:"summary,omitempty" gorm:"type:jsonb"`
	CreatedAt       time.Time     `json:"createdAt"`
	UpdatedAt       time.Time     `json:"updatedAt"`

	// Owned: deleting the job deletes its issues (and their evidence).
	Issues []Issue `json:"issues,omitempty" gorm:"foreignKey:CheckJobID;constraint:OnDelete:CASCADE"`
}

func (j *CheckJob) BeforeCreate(tx *gorm.DB) error {
	if j.ID == uuid.Nil {
		j.ID = uuid.New()
	}
	return nil
}

func (CheckJob) TableName() string {
	return "check_jobs"
}
