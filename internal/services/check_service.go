package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/scholarai/citecheck/internal/logger"
	"github.com/scholarai/citecheck/internal/metrics"
	"github.com/scholarai/citecheck/internal/models"
	"github.com/scholarai/citecheck/internal/store"
)

// ErrQueueFull is returned by StartCheck when the worker queue cannot accept
// another job; the caller should retry later.
var ErrQueueFull = errors.New("check queue is full")

// StartCheckRequest is a submission for one citation check.
type StartCheckRequest struct {
	ProjectID    uuid.UUID
	DocumentID   uuid.UUID
	Content      string
	Filename     string
	ForceRecheck bool
	Options      CheckOptions
}

type checkTask struct {
	jobID    uuid.UUID
	request  StartCheckRequest
	queuedAt time.Time
}

// CheckService orchestrates citation-check jobs: dedup on submission, a
// bounded worker pool, ordered phase progression, result persistence and the
// read-side queries.
type CheckService struct {
	store           store.Store
	sources         store.SourceProvider
	engine          AnalysisEngine
	metrics         *metrics.CheckMetrics
	freshnessWindow time.Duration
	analysisTimeout time.Duration

	taskQueue chan checkTask
	stopChan  chan struct{}
	wg        sync.WaitGroup

	// Serializes the check-delete-insert dedup sequence per document, so two
	// concurrent submissions cannot each delete the other's fresh job.
	docLocksMu sync.Mutex
	docLocks   map[uuid.UUID]*sync.Mutex
}

// CheckServiceConfig bundles the orchestrator's tunables.
type CheckServiceConfig struct {
	WorkerCount     int
	QueueSize       int
	FreshnessWindow time.Duration
	AnalysisTimeout time.Duration
}

// NewCheckService creates the orchestrator and starts its workers.
func NewCheckService(st store.Store, sources store.SourceProvider, engine AnalysisEngine, m *metrics.CheckMetrics, cfg CheckServiceConfig) *CheckService {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}
	if cfg.FreshnessWindow <= 0 {
		cfg.FreshnessWindow = time.Hour
	}
	if cfg.AnalysisTimeout <= 0 {
		cfg.AnalysisTimeout = 5 * time.Minute
	}

	cs := &CheckService{
		store:           st,
		sources:         sources,
		engine:          engine,
		metrics:         m,
		freshnessWindow: cfg.FreshnessWindow,
		analysisTimeout: cfg.AnalysisTimeout,
		taskQueue:       make(chan checkTask, cfg.QueueSize),
		stopChan:        make(chan struct{}),
		docLocks:        make(map[uuid.UUID]*sync.Mutex),
	}

	for i := 0; i < cfg.WorkerCount; i++ {
		cs.wg.Add(1)
		go cs.worker(i)
	}

	return cs
}

// Stop shuts down the worker pool. Queued tasks that have not started are
// abandoned; their jobs stay QUEUED and can be resubmitted.
func (cs *CheckService) Stop() {
	close(cs.stopChan)
	cs.wg.Wait()
}

func (cs *CheckService) worker(id int) {
	defer cs.wg.Done()

	for {
		select {
		case task := <-cs.taskQueue:
			logger.Info("Worker picked up check job", map[string]interface{}{
				"workerID": id,
				"jobID":    task.jobID.String(),
			})
			cs.process(task)

		case <-cs.stopChan:
			logger.Info("Worker stopping", map[string]interface{}{"workerID": id})
			return
		}
	}
}

func (cs *CheckService) docLock(documentID uuid.UUID) *sync.Mutex {
	cs.docLocksMu.Lock()
	defer cs.docLocksMu.Unlock()

	lock, ok := cs.docLocks[documentID]
	if !ok {
		lock = &sync.Mutex{}
		cs.docLocks[documentID] = lock
	}
	return lock
}

// StartCheck applies the dedup policy and either returns a fresh completed
// job unchanged or creates and enqueues a new one. It never blocks on
// analysis; the returned job is QUEUED unless dedup short-circuited.
func (cs *CheckService) StartCheck(ctx context.Context, req StartCheckRequest) (*models.CheckJob, error) {
	if req.Filename == "" {
		req.Filename = "document.tex"
	}

	lock := cs.docLock(req.DocumentID)
	lock.Lock()
	defer lock.Unlock()

	if !req.ForceRecheck {
		existing, err := cs.store.LatestCompletedForDocument(ctx, req.DocumentID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		if existing != nil && time.Since(existing.UpdatedAt) < cs.freshnessWindow {
			logger.Info("Returning recent citation check", map[string]interface{}{
				"jobID":      existing.ID.String(),
				"documentID": req.DocumentID.String(),
			})
			return existing, nil
		}
	}

	// At most one completed job may stay live per document: superseded
	// results are removed before the new job is inserted.
	if err := cs.store.DeleteCompletedForDocument(ctx, req.DocumentID); err != nil {
		return nil, err
	}

	job := &models.CheckJob{
		ProjectID:       req.ProjectID,
		DocumentID:      req.DocumentID,
		Filename:        req.Filename,
		Status:          models.CheckStatusQueued,
		Step:            models.StepParsing,
		ProgressPercent: 0,
	}
	if err := cs.store.CreateJob(ctx, job); err != nil {
		return nil, err
	}

	select {
	case cs.taskQueue <- checkTask{jobID: job.ID, request: req, queuedAt: time.Now()}:
	default:
		if _, failErr := cs.store.FailJob(ctx, job.ID, ErrQueueFull.Error()); failErr != nil {
			logger.Error("Failed to mark job after queue overflow", map[string]interface{}{
				"jobID": job.ID.String(),
				"error": failErr.Error(),
			})
		}
		return nil, ErrQueueFull
	}

	logger.Info("Queued citation check", map[string]interface{}{
		"jobID":      job.ID.String(),
		"projectID":  req.ProjectID.String(),
		"documentID": req.DocumentID.String(),
		"force":      req.ForceRecheck,
	})

	return job, nil
}

// process drives one job through its phases. Every phase transition is a
// guarded write: once the job is terminal (cancelled, failed) the write is
// skipped and processing stops without touching the record again.
func (cs *CheckService) process(task checkTask) {
	ctx := context.Background()
	jobID := task.jobID
	started := time.Now()

	if cs.metrics != nil {
		cs.metrics.StartJob(started.Sub(task.queuedAt))
	}

	status := string(models.CheckStatusError)
	defer func() {
		if cs.metrics != nil {
			cs.metrics.FinishJob(status, time.Since(started))
		}
	}()

	if ok := cs.advance(ctx, jobID, models.StepParsing, 10); !ok {
		status = "superseded"
		return
	}

	if ok := cs.advance(ctx, jobID, models.StepLocalRetrieval, 30); !ok {
		status = "superseded"
		return
	}

	candidateSources, err := cs.sources.CandidateSources(ctx, task.request.ProjectID)
	if err != nil {
		cs.fail(ctx, jobID, fmt.Sprintf("failed to load candidate sources: %v", err))
		return
	}

	logger.WithJob(jobID.String()).Infof("Analyzing document against %d candidate sources", len(candidateSources))

	engineCtx, cancel := context.WithTimeout(ctx, cs.analysisTimeout)
	issues, err := cs.engine.Analyze(
		engineCtx,
		task.request.ProjectID,
		task.request.DocumentID,
		task.request.Content,
		candidateSources,
		task.request.Options,
	)
	cancel()
	if err != nil {
		cs.fail(ctx, jobID, fmt.Sprintf("analysis failed: %v", err))
		return
	}

	// No separate web call is made; the web flag rides on the single engine
	// invocation and this step only reports progress.
	if ok := cs.advance(ctx, jobID, models.StepWebRetrieval, 60); !ok {
		status = "superseded"
		return
	}
	if task.request.Options.CheckWeb {
		logger.WithJob(jobID.String()).Info("Web verification enabled for this check")
	}

	if ok := cs.advance(ctx, jobID, models.StepSaving, 80); !ok {
		status = "superseded"
		return
	}

	for i := range issues {
		issues[i].ProjectID = task.request.ProjectID
		issues[i].DocumentID = task.request.DocumentID
	}

	summary := models.NewCheckSummary(issues, time.Now().UTC())
	applied, err := cs.store.FinalizeJob(ctx, jobID, issues, summary)
	if err != nil {
		cs.fail(ctx, jobID, fmt.Sprintf("failed to save results: %v", err))
		return
	}
	if !applied {
		status = "superseded"
		return
	}

	status = string(models.CheckStatusDone)
	logger.Info("Citation check completed", map[string]interface{}{
		"jobID":       jobID.String(),
		"totalIssues": summary.TotalIssues,
		"errorCount":  summary.ErrorCount,
	})
}

func (cs *CheckService) advance(ctx context.Context, jobID uuid.UUID, step models.CheckStep, progress int) bool {
	applied, err := cs.store.AdvanceJob(ctx, jobID, models.CheckStatusRunning, step, progress)
	if err != nil {
		logger.Error("Failed to advance check job", map[string]interface{}{
			"jobID": jobID.String(),
			"step":  string(step),
			"error": err.Error(),
		})
		return false
	}
	if !applied {
		logger.Warn("Check job went terminal mid-run, abandoning", map[string]interface{}{
			"jobID": jobID.String(),
			"step":  string(step),
		})
	}
	return applied
}

func (cs *CheckService) fail(ctx context.Context, jobID uuid.UUID, message string) {
	applied, err := cs.store.FailJob(ctx, jobID, message)
	if err != nil {
		logger.Error("Failed to record job failure", map[string]interface{}{
			"jobID": jobID.String(),
			"error": err.Error(),
		})
		return
	}
	if applied {
		logger.Error("Citation check failed", map[string]interface{}{
			"jobID": jobID.String(),
			"cause": message,
		})
	}
}

// GetJob returns a job with its issues and evidence eagerly loaded.
func (cs *CheckService) GetJob(ctx context.Context, id uuid.UUID) (*models.CheckJob, error) {
	return cs.store.GetJob(ctx, id)
}

// LatestForDocument returns the most recent job for a document.
func (cs *CheckService) LatestForDocument(ctx context.Context, documentID uuid.UUID) (*models.CheckJob, error) {
	return cs.store.LatestForDocument(ctx, documentID)
}

// ListForProject returns job summaries for a project, newest first.
func (cs *CheckService) ListForProject(ctx context.Context, projectID uuid.UUID) ([]models.CheckJob, error) {
	return cs.store.ListForProject(ctx, projectID)
}

// SetIssueResolved toggles the resolved flag on a single issue. The update
// is idempotent; a missing issue reports store.ErrNotFound.
func (cs *CheckService) SetIssueResolved(ctx context.Context, issueID uuid.UUID, resolved bool) error {
	return cs.store.SetIssueResolved(ctx, issueID, resolved)
}

// Cancel transitions a QUEUED or RUNNING job to ERROR with the fixed
// cancellation message. Terminal jobs are left untouched. Cancellation is
// cooperative: an in-flight engine call is not interrupted, but its task's
// later writes are rejected by the guarded updates.
func (cs *CheckService) Cancel(ctx context.Context, id uuid.UUID) (bool, error) {
	job, err := cs.store.GetJob(ctx, id)
	if err != nil {
		return false, err
	}
	if job.Status.Terminal() {
		return false, nil
	}

	applied, err := cs.store.FailJob(ctx, id, models.CancelledMessage)
	if err != nil {
		return false, err
	}
	if applied {
		logger.Info("Cancelled citation check", map[string]interface{}{"jobID": id.String()})
	}
	return applied, nil
}
