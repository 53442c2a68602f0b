package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/cuongbtq/jigsaw-be/internal/domain"
	"github.com/cuongbtq/jigsaw-be/internal/storage"
)

// StatusMachine moves jobs through their lifecycle by partial updates of the
// job record. It does not check the current status; callers invoke
// transitions in order.
type StatusMachine struct {
	records storage.RecordStore
	logger  *slog.Logger
	now     func() time.Time
}

// NewStatusMachine creates a StatusMachine writing to records
func NewStatusMachine(records storage.RecordStore, logger *slog.Logger) *StatusMachine {
	return &StatusMachine{
		records: records,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// SetStatus writes status, updatedAt and any fields set in extra
func (m *StatusMachine) SetStatus(ctx context.Context, ownerID, jobID string, status domain.JobStatus, extra domain.JobUpdate) error {
	update := extra
	update.Status = &status
	update.UpdatedAt = m.now()

	if err := m.records.UpdateJob(ctx, ownerID, jobID, update); err != nil {
		m.logger.Error("Failed to update job status",
			slog.String("owner_id", ownerID),
			slog.String("job_id", jobID),
			slog.String("status", string(status)),
			slog.String("error", err.Error()),
		)
		return err
	}

	m.logger.Info("Job status updated",
		slog.String("owner_id", ownerID),
		slog.String("job_id", jobID),
		slog.String("status", string(status)),
	)

	return nil
}

// MarkUploaded records the upload target assigned to the job
func (m *StatusMachine) MarkUploaded(ctx context.Context, ownerID, jobID, fileName, sourceKey string) error {
	return m.SetStatus(ctx, ownerID, jobID, domain.JobStatusUploaded, domain.JobUpdate{
		FileName:        &fileName,
		SourceObjectKey: &sourceKey,
	})
}

// MarkProcessing records that decomposition has started
func (m *StatusMachine) MarkProcessing(ctx context.Context, ownerID, jobID string) error {
	return m.SetStatus(ctx, ownerID, jobID, domain.JobStatusProcessing, domain.JobUpdate{})
}

// MarkCompleted records the final grid and piece count
func (m *StatusMachine) MarkCompleted(ctx context.Context, ownerID, jobID string, rows, cols, totalPieces int) error {
	return m.SetStatus(ctx, ownerID, jobID, domain.JobStatusCompleted, domain.JobUpdate{
		Rows:        &rows,
		Cols:        &cols,
		TotalPieces: &totalPieces,
	})
}

// MarkFailed records the error text that ended processing
func (m *StatusMachine) MarkFailed(ctx context.Context, ownerID, jobID, errorMessage string) error {
	return m.SetStatus(ctx, ownerID, jobID, domain.JobStatusFailed, domain.JobUpdate{
		ErrorMessage: &errorMessage,
	})
}
