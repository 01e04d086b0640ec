package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sony/gobreaker/v2"

	"github.com/scholarai/citecheck/internal/models"
)

// CheckOptions tunes a single analysis run. All fields are forwarded to the
// engine untouched; this service does not interpret them.
type CheckOptions struct {
	CheckLocal          bool    `json:"checkLocal"`
	CheckWeb            bool    `json:"checkWeb"`
	SimilarityThreshold float64 `json:"similarityThreshold"`
	MaxEvidencePerIssue int     `json:"maxEvidencePerIssue"`
	StrictMode          bool    `json:"strictMode"`
}

// AnalysisEngine performs the actual text-to-source matching. It is the only
// blocking collaborator in the pipeline and may run for minutes; callers
// bound it with the context deadline. Implementations must never fabricate
// issues on failure — they return an error and the job goes to ERROR.
type AnalysisEngine interface {
	Analyze(ctx context.Context, projectID, documentID uuid.UUID, content string, candidateSourceIDs []string, opts CheckOptions) ([]models.Issue, error)
}

type analyzeRequest struct {
	ProjectID          string       `json:"projectId"`
	DocumentID         string       `json:"documentId"`
	Content            string       `json:"content"`
	CandidateSourceIDs []string     `json:"candidateSourceIds"`
	EnableWebSearch    bool         `json:"enableWebSearch"`
	Options            CheckOptions `json:"options"`
}

type analyzeResponse struct {
	Issues []engineIssue `json:"issues"`
}

type engineIssue struct {
	Type        string           `json:"type"`
	Severity    string           `json:"severity"`
	FromPos     int              `json:"fromPos"`
	ToPos       int              `json:"toPos"`
	LineStart   int              `json:"lineStart"`
	LineEnd     int              `json:"lineEnd"`
	Snippet     string           `json:"snippet"`
	CitedKeys   []string         `json:"citedKeys"`
	Suggestions []string         `json:"suggestions"`
	Evidence    []engineEvidence `json:"evidence"`
}

type engineEvidence struct {
	Source           map[string]any `json:"source"`
	MatchedText      string         `json:"matchedText"`
	Similarity       float64        `json:"similarity"`
	SupportScore     float64        `json:"supportScore"`
	ExtractedContext string         `json:"extractedContext"`
}

// HTTPAnalysisEngine talks to the analysis backend over HTTP. A circuit
// breaker trips after repeated failures so that a dead engine fails jobs
// fast instead of tying up worker slots for the full timeout.
type HTTPAnalysisEngine struct {
	baseURL string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[*analyzeResponse]
}

func NewHTTPAnalysisEngine(baseURL string) *HTTPAnalysisEngine {
	if baseURL == "" {
		baseURL = "http://localhost:8000"
	}

	settings := gobreaker.Settings{
		Name:    "analysis-engine",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}

	return &HTTPAnalysisEngine{
		baseURL: baseURL,
		// Timeout is governed by the per-job context deadline, not the client.
		client:  &http.Client{},
		breaker: gobreaker.NewCircuitBreaker[*analyzeResponse](settings),
	}
}

func (e *HTTPAnalysisEngine) Analyze(ctx context.Context, projectID, documentID uuid.UUID, content string, candidateSourceIDs []string, opts CheckOptions) ([]models.Issue, error) {
	if candidateSourceIDs == nil {
		candidateSourceIDs = []string{}
	}

	reqBody := analyzeRequest{
		ProjectID:          projectID.String(),
		DocumentID:         documentID.String(),
		Content:            content,
		CandidateSourceIDs: candidateSourceIDs,
		EnableWebSearch:    opts.CheckWeb,
		Options:            opts,
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to encode analysis request: %w", err)
	}

	resp, err := e.breaker.Execute(func() (*analyzeResponse, error) {
		return e.post(ctx, payload)
	})
	if err != nil {
		return nil, err
	}

	issues := make([]models.Issue, 0, len(resp.Issues))
	for _, ei := range resp.Issues {
		issue := models.Issue{
			ProjectID:   projectID,
			DocumentID:  documentID,
			Type:        models.IssueType(ei.Type),
			Severity:    models.Severity(ei.Severity),
			FromPos:     ei.FromPos,
			ToPos:       ei.ToPos,
			LineStart:   ei.LineStart,
			LineEnd:     ei.LineEnd,
			Snippet:     ei.Snippet,
			CitedKeys:   pq.StringArray(ei.CitedKeys),
			Suggestions: pq.StringArray(ei.Suggestions),
		}
		for _, ev := range ei.Evidence {
			issue.Evidence = append(issue.Evidence, models.Evidence{
				Source:           models.JSONB(ev.Source),
				MatchedText:      ev.MatchedText,
				Similarity:       ev.Similarity,
				SupportScore:     ev.SupportScore,
				ExtractedContext: ev.ExtractedContext,
			})
		}
		issues = append(issues, issue)
	}
	return issues, nil
}

func (e *HTTPAnalysisEngine) post(ctx context.Context, payload []byte) (*analyzeResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/analyze", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build analysis request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("analysis engine request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read analysis response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("analysis engine returned status %d: %s", resp.StatusCode, string(body))
	}

	var parsed analyzeResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse analysis response: %w", err)
	}

	return &parsed, nil
}
