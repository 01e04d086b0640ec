package controllers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/scholarai/citecheck/internal/controllers"
	"github.com/scholarai/citecheck/internal/dto"
	"github.com/scholarai/citecheck/internal/models"
	"github.com/scholarai/citecheck/internal/routes"
	"github.com/scholarai/citecheck/internal/services"
	"github.com/scholarai/citecheck/internal/store"
)

type fakeStore struct {
	mu     sync.Mutex
	jobs   map[uuid.UUID]*models.CheckJob
	issues map[uuid.UUID]*models.Issue
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		jobs:   make(map[uuid.UUID]*models.CheckJob),
		issues: make(map[uuid.UUID]*models.Issue),
	}
}

func (f *fakeStore) CreateJob(ctx context.Context, job *models.CheckJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	job.CreatedAt = time.Now()
	job.UpdatedAt = job.CreatedAt
	copied := *job
	f.jobs[job.ID] = &copied
	return nil
}

func (f *fakeStore) GetJob(ctx context.Context, id uuid.UUID) (*models.CheckJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *job
	for _, issue := range f.issues {
		if issue.CheckJobID == id {
			copied.Issues = append(copied.Issues, *issue)
		}
	}
	return &copied, nil
}

func (f *fakeStore) LatestForDocument(ctx context.Context, documentID uuid.UUID) (*models.CheckJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *models.CheckJob
	for _, job := range f.jobs {
		if job.DocumentID != documentID {
			continue
		}
		if latest == nil || job.CreatedAt.After(latest.CreatedAt) {
			latest = job
		}
	}
	if latest == nil {
		return nil, store.ErrNotFound
	}
	copied := *latest
	return &copied, nil
}

func (f *fakeStore) LatestCompletedForDocument(ctx context.Context, documentID uuid.UUID) (*models.CheckJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *models.CheckJob
	for _, job := range f.jobs {
		if job.DocumentID != documentID || job.Status != models.CheckStatusDone {
			continue
		}
		if latest == nil || job.CreatedAt.After(latest.CreatedAt) {
			latest = job
		}
	}
	if latest == nil {
		return nil, store.ErrNotFound
	}
	copied := *latest
	return &copied, nil
}

func (f *fakeStore) ListForProject(ctx context.Context, projectID uuid.UUID) ([]models.CheckJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var jobs []models.CheckJob
	for _, job := range f.jobs {
		if job.ProjectID == projectID {
			jobs = append(jobs, *job)
		}
	}
	return jobs, nil
}

func (f *fakeStore) DeleteCompletedForDocument(ctx context.Context, documentID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, job := range f.jobs {
		if job.DocumentID == documentID && job.Status == models.CheckStatusDone {
			delete(f.jobs, id)
		}
	}
	return nil
}

func (f *fakeStore) AdvanceJob(ctx context.Context, id uuid.UUID, status models.CheckStatus, step models.CheckStep, progress int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok || job.Status.Terminal() {
		return false, nil
	}
	job.Status = status
	job.Step = step
	job.ProgressPercent = progress
	return true, nil
}

func (f *fakeStore) FailJob(ctx context.Context, id uuid.UUID, message string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok || job.Status.Terminal() {
		return false, nil
	}
	job.Status = models.CheckStatusError
	job.ErrorMessage = message
	return true, nil
}

func (f *fakeStore) FinalizeJob(ctx context.Context, id uuid.UUID, issues []models.Issue, summary models.CheckSummary) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok || job.Status.Terminal() {
		return false, nil
	}
	job.Status = models.CheckStatusDone
	job.Step = models.StepDone
	job.ProgressPercent = 100
	job.Summary = &summary
	for i := range issues {
		issue := issues[i]
		if issue.ID == uuid.Nil {
			issue.ID = uuid.New()
		}
		issue.CheckJobID = id
		f.issues[issue.ID] = &issue
	}
	return true, nil
}

func (f *fakeStore) SetIssueResolved(ctx context.Context, issueID uuid.UUID, resolved bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	issue, ok := f.issues[issueID]
	if !ok {
		return store.ErrNotFound
	}
	issue.Resolved = resolved
	return nil
}

func (f *fakeStore) seedJob(job *models.CheckJob) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
		job.UpdatedAt = job.CreatedAt
	}
	f.jobs[job.ID] = job
}

func (f *fakeStore) seedIssue(issue *models.Issue) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if issue.ID == uuid.Nil {
		issue.ID = uuid.New()
	}
	f.issues[issue.ID] = issue
}

type fakeSources struct{}

func (fakeSources) CandidateSources(ctx context.Context, projectID uuid.UUID) ([]string, error) {
	return nil, nil
}

type fakeEngine struct{}

func (fakeEngine) Analyze(ctx context.Context, projectID, documentID uuid.UUID, content string, candidateSourceIDs []string, opts services.CheckOptions) ([]models.Issue, error) {
	return nil, nil
}

func newTestRouter(t *testing.T) (*gin.Engine, *fakeStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st := newFakeStore()
	svc := services.NewCheckService(st, fakeSources{}, fakeEngine{}, nil, services.CheckServiceConfig{})
	t.Cleanup(svc.Stop)

	r := gin.New()
	routes.SetupRoutes(r, controllers.NewCheckController(svc), "")
	return r, st
}

func doJSON(r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestStartCheckEndpoint(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(r, http.MethodPost, "/api/v1/citations/jobs", map[string]any{
		"projectId":  uuid.New().String(),
		"documentId": uuid.New().String(),
		"content":    `\section{Intro} prior work shows...`,
	})

	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}

	var resp dto.CheckJobResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.ID == uuid.Nil {
		t.Error("expected a job ID")
	}
	if resp.Filename != "document.tex" {
		t.Errorf("filename = %q, want default", resp.Filename)
	}
}

func TestStartCheckEndpointValidation(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(r, http.MethodPost, "/api/v1/citations/jobs", map[string]any{
		"projectId": uuid.New().String(),
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing fields, got %d", w.Code)
	}
}

func TestGetJobEndpoint(t *testing.T) {
	r, st := newTestRouter(t)

	job := &models.CheckJob{
		ProjectID:  uuid.New(),
		DocumentID: uuid.New(),
		Status:     models.CheckStatusDone,
		Step:       models.StepDone,
		Summary:    &models.CheckSummary{TotalIssues: 0, CompletedAt: time.Now().UTC()},
	}
	st.seedJob(job)

	w := doJSON(r, http.MethodGet, "/api/v1/citations/jobs/"+job.ID.String(), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp dto.CheckJobResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.ID != job.ID || resp.Status != "DONE" {
		t.Errorf("unexpected response: %+v", resp)
	}
	if resp.CompletedAt == nil {
		t.Error("expected completedAt on DONE job")
	}
}

func TestGetJobEndpointNotFound(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(r, http.MethodGet, "/api/v1/citations/jobs/"+uuid.New().String(), nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}

	w = doJSON(r, http.MethodGet, "/api/v1/citations/jobs/not-a-uuid", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed ID, got %d", w.Code)
	}
}

func TestGetLatestForDocumentEndpoint(t *testing.T) {
	r, st := newTestRouter(t)

	documentID := uuid.New()
	st.seedJob(&models.CheckJob{ProjectID: uuid.New(), DocumentID: documentID, Status: models.CheckStatusRunning, Step: models.StepLocalRetrieval})

	w := doJSON(r, http.MethodGet, "/api/v1/citations/documents/"+documentID.String(), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	w = doJSON(r, http.MethodGet, "/api/v1/citations/documents/"+uuid.New().String(), nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown document, got %d", w.Code)
	}
}

func TestListForProjectEndpoint(t *testing.T) {
	r, st := newTestRouter(t)

	projectID := uuid.New()
	for i := 0; i < 3; i++ {
		st.seedJob(&models.CheckJob{ProjectID: projectID, DocumentID: uuid.New(), Status: models.CheckStatusDone})
	}

	w := doJSON(r, http.MethodGet, "/api/v1/citations/projects/"+projectID.String(), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp []dto.CheckJobResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp) != 3 {
		t.Errorf("expected 3 jobs, got %d", len(resp))
	}
}

func TestUpdateIssueEndpoint(t *testing.T) {
	r, st := newTestRouter(t)

	issue := &models.Issue{CheckJobID: uuid.New(), Type: models.IssueWeakCitation, Severity: models.SeverityMedium}
	st.seedIssue(issue)

	w := doJSON(r, http.MethodPut, "/api/v1/citations/issues/"+issue.ID.String(), map[string]any{"resolved": true})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !issue.Resolved {
		t.Error("issue was not marked resolved")
	}

	w = doJSON(r, http.MethodPut, "/api/v1/citations/issues/"+uuid.New().String(), map[string]any{"resolved": true})
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown issue, got %d", w.Code)
	}

	w = doJSON(r, http.MethodPut, "/api/v1/citations/issues/"+issue.ID.String(), map[string]any{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing resolved flag, got %d", w.Code)
	}
}

func TestCancelJobEndpoint(t *testing.T) {
	r, st := newTestRouter(t)

	done := &models.CheckJob{ProjectID: uuid.New(), DocumentID: uuid.New(), Status: models.CheckStatusDone}
	st.seedJob(done)

	w := doJSON(r, http.MethodPost, fmt.Sprintf("/api/v1/citations/jobs/%s/cancel", done.ID), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp map[string]bool
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["cancelled"] {
		t.Error("cancel of a DONE job must report cancelled=false")
	}

	w = doJSON(r, http.MethodPost, fmt.Sprintf("/api/v1/citations/jobs/%s/cancel", uuid.New()), nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown job, got %d", w.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(r, http.MethodGet, "/api/v1/citations/health", nil)
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}
