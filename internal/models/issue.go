package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

type IssueType string

const (
	IssueMissingCitation   IssueType = "missing-citation"
	IssueWeakCitation      IssueType = "weak-citation"
	IssueIncorrectCitation IssueType = "incorrect-citation"
	IssueOrphanReference   IssueType = "orphan-reference"
	IssuePlagiarismRisk    IssueType = "plagiarism-risk"
)

type Severity string

const (
	SeverityHigh   Severity = "HIGH"
	SeverityMedium Severity = "MEDIUM"
	SeverityLow    Severity = "LOW"
)

// Issue is one flagged span of manuscript text.
type Issue struct {
	ID          uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey"`
	CheckJobID  uuid.UUID      `json:"checkJobId" gorm:"type:uuid;not null;index"`
	ProjectID   uuid.UUID      `json:"projectId" gorm:"type:uuid;not null"`
	DocumentID  uuid.UUID      `json:"documentId" gorm:"type:uuid;not null"`
	Type        IssueType      `json:"type" gorm:"type:varchar(32);not null"`
	Severity    Severity       `json:"severity" gorm:"type:varchar(8);not null"`
	FromPos     int            `json:"fromPos"`
	ToPos       int            `json:"toPos"`
	LineStart   int            `json:"lineStart"`
	LineEnd     int            `json:"lineEnd"`
	Snippet     string         `json:"snippet" gorm:"type:text"`
	CitedKeys   pq.StringArray `json:"citedKeys" gorm:"type:text[]"`
	Suggestions pq.StringArray `json:"suggestions" gorm:"type:text[]"`
	Resolved    bool           `json:"resolved" gorm:"default:false"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`

	Evidence []Evidence `json:"evidence,omitempty" gorm:"foreignKey:IssueID;constraint:OnDelete:CASCADE"`
}

func (i *Issue) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

func (Issue) TableName() string {
	return "citation_issues"
}

// Evidence is one piece of supporting or contradicting material for an issue.
type Evidence struct {
	ID               uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	IssueID          uuid.UUID `json:"issueId" gorm:"type:uuid;not null;index"`
	Source           JSONB     `json:"source" gorm:"type:jsonb"`
	MatchedText      string    `json:"matchedText" gorm:"type:text"`
	Similarity       float64   `json:"similarity"`
	SupportScore     float64   `json:"supportScore"`
	ExtractedContext string    `json:"extractedContext" gorm:"type:text"`
	CreatedAt        time.Time `json:"createdAt"`
}

func (e *Evidence) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

func (Evidence) TableName() string {
	return "citation_evidence"
}

// ContextSource marks a paper as part of the citation-check context for a
// project. The selection itself is made elsewhere; this service only reads it.
type ContextSource struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	ProjectID uuid.UUID `json:"projectId" gorm:"type:uuid;not null;index"`
	PaperID   string    `json:"paperId" gorm:"not null"`
	CreatedAt time.Time `json:"createdAt"`
}

func (c *ContextSource) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

func (ContextSource) TableName() string {
	return "context_sources"
}
