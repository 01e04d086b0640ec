package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/scholarai/citecheck/internal/dto"
	"github.com/scholarai/citecheck/internal/services"
	"github.com/scholarai/citecheck/internal/store"
)

type CheckController struct {
	checkService *services.CheckService
}

func NewCheckController(checkService *services.CheckService) *CheckController {
	return &CheckController{checkService: checkService}
}

type startCheckRequest struct {
	ProjectID    uuid.UUID             `json:"projectId" binding:"required"`
	DocumentID   uuid.UUID             `json:"documentId" binding:"required"`
	Content      string                `json:"content" binding:"required"`
	Filename     string                `json:"filename"`
	ForceRecheck bool                  `json:"forceRecheck"`
	Options      services.CheckOptions `json:"options"`
}

type resolveIssueRequest struct {
	Resolved *bool `json:"resolved" binding:"required"`
}

// StartCheck submits a citation check. The response carries a QUEUED job, or
// an already-DONE one when a recent result was reused.
func (cc *CheckController) StartCheck(c *gin.Context) {
	var req startCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	job, err := cc.checkService.StartCheck(c.Request.Context(), services.StartCheckRequest{
		ProjectID:    req.ProjectID,
		DocumentID:   req.DocumentID,
		Content:      req.Content,
		Filename:     req.Filename,
		ForceRecheck: req.ForceRecheck,
		Options:      req.Options,
	})
	if err != nil {
		if errors.Is(err, services.ErrQueueFull) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Check queue is full, retry later"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start citation check"})
		return
	}

	c.JSON(http.StatusAccepted, dto.FromCheckJob(job))
}

// GetJob returns a check job with issues and evidence.
func (cc *CheckController) GetJob(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("jobId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid job ID"})
		return
	}

	job, err := cc.checkService.GetJob(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Check job not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch check job"})
		}
		return
	}

	c.JSON(http.StatusOK, dto.FromCheckJob(job))
}

// GetLatestForDocument returns the most recent check job for a document.
func (cc *CheckController) GetLatestForDocument(c *gin.Context) {
	documentID, err := uuid.Parse(c.Param("documentId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid document ID"})
		return
	}

	job, err := cc.checkService.LatestForDocument(c.Request.Context(), documentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "No check job for document"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch check job"})
		}
		return
	}

	c.JSON(http.StatusOK, dto.FromCheckJob(job))
}

// ListForProject returns check-job summaries for a project, newest first.
func (cc *CheckController) ListForProject(c *gin.Context) {
	projectID, err := uuid.Parse(c.Param("projectId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid project ID"})
		return
	}

	jobs, err := cc.checkService.ListForProject(c.Request.Context(), projectID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list check jobs"})
		return
	}

	c.JSON(http.StatusOK, dto.FromCheckJobs(jobs))
}

// UpdateIssue sets the resolved flag on one issue.
func (cc *CheckController) UpdateIssue(c *gin.Context) {
	issueID, err := uuid.Parse(c.Param("issueId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid issue ID"})
		return
	}

	var req resolveIssueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	if err := cc.checkService.SetIssueResolved(c.Request.Context(), issueID, *req.Resolved); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Issue not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update issue"})
		}
		return
	}

	c.Status(http.StatusOK)
}

// CancelJob cancels a queued or running check; a no-op on terminal jobs.
func (cc *CheckController) CancelJob(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("jobId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid job ID"})
		return
	}

	applied, err := cc.checkService.Cancel(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Check job not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to cancel check job"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"cancelled": applied})
}

// Health reports service liveness.
func (cc *CheckController) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "citecheck"})
}
