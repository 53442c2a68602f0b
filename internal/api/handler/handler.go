package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/cuongbtq/jigsaw-be/internal/domain"
	"github.com/cuongbtq/jigsaw-be/internal/jobs"
	"github.com/gin-gonic/gin"
)

// EnvironmentProduction hides internal error detail from responses
const EnvironmentProduction = "production"

// JobService is the job registration and lookup surface the handlers call
type JobService interface {
	Create(ctx context.Context, ownerID, displayName string, pieceCount int) (*domain.Job, error)
	Get(ctx context.Context, ownerID, jobID string) (*domain.Job, error)
	List(ctx context.Context, ownerID string) ([]domain.Job, error)
	IssueUploadURL(ctx context.Context, ownerID, jobID, fileName string) (*jobs.UploadTarget, error)
	ListPieces(ctx context.Context, ownerID, jobID string) ([]domain.Piece, error)
	Delete(ctx context.Context, ownerID, jobID string) error
}

// Publisher enqueues decomposition requests
type Publisher interface {
	PublishJSON(ctx context.Context, v any) error
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger      *slog.Logger
	Jobs        JobService
	Publisher   Publisher
	Environment string
	ServiceName string
	// HealthChecks are run by /health, keyed by dependency name
	HealthChecks map[string]func(ctx context.Context) error
}

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	logger      *slog.Logger
	jobs        JobService
	publisher   Publisher
	environment string
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger:      deps.Logger,
		jobs:        deps.Jobs,
		publisher:   deps.Publisher,
		environment: deps.Environment,
	}
}

// statusForError maps an error kind to an HTTP status
func statusForError(err error) int {
	switch domain.KindOf(err) {
	case domain.KindInvalidInput:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as a JSON error body. Server-side detail is
// replaced by fallback in production.
func (h *JobHandler) respondError(c *gin.Context, err error, fallback string) {
	status := statusForError(err)

	message := err.Error()
	var de *domain.Error
	if errors.As(err, &de) && status != http.StatusInternalServerError {
		message = de.Err.Error()
	}
	if status == http.StatusInternalServerError {
		h.logger.Error(fallback,
			slog.String("path", c.Request.URL.Path),
			slog.String("error", err.Error()),
		)
		if h.environment == EnvironmentProduction {
			message = fallback
		}
	}

	c.JSON(status, gin.H{
		"error": message,
	})
}
