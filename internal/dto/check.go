package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/scholarai/citecheck/internal/models"
)

// CheckJobResponse is the wire shape consumed by the editor frontend.
type CheckJobResponse struct {
	ID              uuid.UUID            `json:"id"`
	ProjectID       uuid.UUID            `json:"projectId"`
	DocumentID      uuid.UUID            `json:"documentId"`
	Filename        string               `json:"filename"`
	Status          string               `json:"status"`
	CurrentStep     string               `json:"currentStep"`
	ProgressPercent int                  `json:"progressPercent"`
	Message         string               `json:"message,omitempty"`
	Summary         *models.CheckSummary `json:"summary,omitempty"`
	Issues          []IssueResponse      `json:"issues,omitempty"`
	CreatedAt       time.Time            `json:"createdAt"`
	UpdatedAt       time.Time            `json:"updatedAt"`
	CompletedAt     *time.Time           `json:"completedAt,omitempty"`
}

type IssueResponse struct {
	ID           uuid.UUID          `json:"id"`
	IssueType    string             `json:"issueType"`
	Severity     string             `json:"severity"`
	CitationText string             `json:"citationText"`
	Position     int                `json:"position"`
	Length       int                `json:"length"`
	LineStart    int                `json:"lineStart"`
	LineEnd      int                `json:"lineEnd"`
	CitedKeys    []string           `json:"citedKeys"`
	Suggestions  []string           `json:"suggestions"`
	Resolved     bool               `json:"resolved"`
	Evidence     []EvidenceResponse `json:"evidence,omitempty"`
}

type EvidenceResponse struct {
	ID               uuid.UUID      `json:"id"`
	Source           map[string]any `json:"source"`
	MatchedText      string         `json:"matchedText"`
	Similarity       float64        `json:"similarity"`
	SupportScore     float64        `json:"supportScore"`
	ExtractedContext string         `json:"extractedContext,omitempty"`
}

// FromCheckJob maps a job (with whatever issues are loaded) to its response.
func FromCheckJob(job *models.CheckJob) CheckJobResponse {
	resp := CheckJobResponse{
		ID:              job.ID,
		ProjectID:       job.ProjectID,
		DocumentID:      job.DocumentID,
		Filename:        job.Filename,
		Status:          string(job.Status),
		CurrentStep:     string(job.Step),
		ProgressPercent: job.ProgressPercent,
		Message:         job.ErrorMessage,
		Summary:         job.Summary,
		CreatedAt:       job.CreatedAt,
		UpdatedAt:       job.UpdatedAt,
	}

	if job.Status == models.CheckStatusDone {
		completedAt := job.UpdatedAt
		if job.Summary != nil && !job.Summary.CompletedAt.IsZero() {
			completedAt = job.Summary.CompletedAt
		}
		resp.CompletedAt = &completedAt
	}

	for i := range job.Issues {
		resp.Issues = append(resp.Issues, fromIssue(&job.Issues[i]))
	}

	return resp
}

// FromCheckJobs maps list results; issues are omitted for list views.
func FromCheckJobs(jobs []models.CheckJob) []CheckJobResponse {
	out := make([]CheckJobResponse, 0, len(jobs))
	for i := range jobs {
		out = append(out, FromCheckJob(&jobs[i]))
	}
	return out
}

func fromIssue(issue *models.Issue) IssueResponse {
	resp := IssueResponse{
		ID:           issue.ID,
		IssueType:    string(issue.Type),
		Severity:     string(issue.Severity),
		CitationText: issue.Snippet,
		Position:     issue.FromPos,
		Length:       issue.ToPos - issue.FromPos,
		LineStart:    issue.LineStart,
		LineEnd:      issue.LineEnd,
		CitedKeys:    issue.CitedKeys,
		Suggestions:  issue.Suggestions,
		Resolved:     issue.Resolved,
	}
	if resp.CitedKeys == nil {
		resp.CitedKeys = []string{}
	}
	if resp.Suggestions == nil {
		resp.Suggestions = []string{}
	}

	for i := range issue.Evidence {
		ev := &issue.Evidence[i]
		resp.Evidence = append(resp.Evidence, EvidenceResponse{
			ID:               ev.ID,
			Source:           ev.Source,
			MatchedText:      ev.MatchedText,
			Similarity:       ev.Similarity,
			SupportScore:     ev.SupportScore,
			ExtractedContext: ev.ExtractedContext,
		})
	}

	return resp
}
