package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"unicode"

	"github.com/cuongbtq/jigsaw-be/internal/api/dto"
	"github.com/cuongbtq/jigsaw-be/internal/domain"
	"github.com/cuongbtq/jigsaw-be/internal/worker"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// CreateJob handles POST /api/v1/jobs
func (h *JobHandler) CreateJob(c *gin.Context) {
	var req dto.CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	if strings.IndexFunc(req.DisplayName, unicode.IsControl) >= 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "display_name must not contain control characters",
		})
		return
	}

	job, err := h.jobs.Create(c.Request.Context(), dto.OwnerOrDefault(req.OwnerID), req.DisplayName, req.PieceCount)
	if err != nil {
		h.respondError(c, err, "Failed to create job")
		return
	}

	c.JSON(http.StatusCreated, dto.FromJob(job))
}

// GetJob handles GET /api/v1/jobs/:job_id
func (h *JobHandler) GetJob(c *gin.Context) {
	ownerID, jobID, ok := h.bindJobKey(c)
	if !ok {
		return
	}

	job, err := h.jobs.Get(c.Request.Context(), ownerID, jobID)
	if err != nil {
		h.respondError(c, err, "Failed to get job")
		return
	}
	if job == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "job not found",
		})
		return
	}

	c.JSON(http.StatusOK, dto.FromJob(job))
}

// ListJobs handles GET /api/v1/jobs
func (h *JobHandler) ListJobs(c *gin.Context) {
	var query dto.OwnerQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	jobs, err := h.jobs.List(c.Request.Context(), dto.OwnerOrDefault(query.OwnerID))
	if err != nil {
		h.respondError(c, err, "Failed to list jobs")
		return
	}

	c.JSON(http.StatusOK, dto.ListJobsResponse{Jobs: dto.FromJobs(jobs)})
}

// IssueUploadURL handles POST /api/v1/jobs/:job_id/upload
func (h *JobHandler) IssueUploadURL(c *gin.Context) {
	jobID, ok := h.bindJobID(c)
	if !ok {
		return
	}

	var req dto.UploadURLRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.logger.Warn("Invalid request body", slog.String("error", err.Error()))
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid request body",
			})
			return
		}
	}

	target, err := h.jobs.IssueUploadURL(c.Request.Context(), dto.OwnerOrDefault(req.OwnerID), jobID, req.FileName)
	if err != nil {
		h.respondError(c, err, "Failed to generate upload URL")
		return
	}

	c.JSON(http.StatusOK, dto.FromUploadTarget(target))
}

// ProcessJob handles POST /api/v1/jobs/:job_id/process
// Enqueues a decomposition for an uploaded job
func (h *JobHandler) ProcessJob(c *gin.Context) {
	jobID, ok := h.bindJobID(c)
	if !ok {
		return
	}

	var req dto.ProcessJobRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid request body",
			})
			return
		}
	}
	ownerID := dto.OwnerOrDefault(req.OwnerID)

	job, err := h.jobs.Get(c.Request.Context(), ownerID, jobID)
	if err != nil {
		h.respondError(c, err, "Failed to get job")
		return
	}
	if job == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "job not found",
		})
		return
	}

	if !domain.CanTransition(job.Status, domain.JobStatusProcessing) {
		c.JSON(http.StatusConflict, gin.H{
			"error":  "job is not ready for processing",
			"status": job.Status,
		})
		return
	}

	msg := worker.Message{OwnerID: ownerID, JobID: jobID}
	if err := h.publisher.PublishJSON(c.Request.Context(), msg); err != nil {
		h.respondError(c, err, "Failed to enqueue job")
		return
	}

	h.logger.Info("Job enqueued",
		slog.String("owner_id", ownerID),
		slog.String("job_id", jobID),
	)

	c.JSON(http.StatusAccepted, dto.ProcessJobResponse{
		JobID:  jobID,
		Status: string(job.Status),
	})
}

// ListPieces handles GET /api/v1/jobs/:job_id/pieces
func (h *JobHandler) ListPieces(c *gin.Context) {
	ownerID, jobID, ok := h.bindJobKey(c)
	if !ok {
		return
	}

	pieces, err := h.jobs.ListPieces(c.Request.Context(), ownerID, jobID)
	if err != nil {
		h.respondError(c, err, "Failed to list pieces")
		return
	}

	c.JSON(http.StatusOK, dto.ListPiecesResponse{
		JobID:  jobID,
		Pieces: dto.FromPieces(pieces),
	})
}

// DeleteJob handles DELETE /api/v1/jobs/:job_id
func (h *JobHandler) DeleteJob(c *gin.Context) {
	ownerID, jobID, ok := h.bindJobKey(c)
	if !ok {
		return
	}

	if err := h.jobs.Delete(c.Request.Context(), ownerID, jobID); err != nil {
		h.respondError(c, err, "Failed to delete job")
		return
	}

	c.Status(http.StatusNoContent)
}

// bindJobID reads and validates the job_id path parameter
func (h *JobHandler) bindJobID(c *gin.Context) (string, bool) {
	jobID := c.Param("job_id")
	if _, err := uuid.Parse(jobID); err != nil {
		h.logger.Warn("Invalid job_id format", slog.String("job_id", jobID))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id must be a valid UUID",
		})
		return "", false
	}
	return jobID, true
}

// bindJobKey reads the job_id path parameter and the owner_id query parameter
func (h *JobHandler) bindJobKey(c *gin.Context) (string, string, bool) {
	jobID, ok := h.bindJobID(c)
	if !ok {
		return "", "", false
	}

	var query dto.OwnerQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return "", "", false
	}

	return dto.OwnerOrDefault(query.OwnerID), jobID, true
}
