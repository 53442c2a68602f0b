package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/jigsaw-be/internal/domain"
)

// processJob loads the job and runs the decomposition under the job timeout.
// In-flight jobs are detached from ctx so a shutdown lets them finish.
func (w *Worker) processJob(ctx context.Context, msg Message) error {
	const op = "process job"

	job, err := w.jobs.Get(ctx, msg.OwnerID, msg.JobID)
	if err != nil {
		return domain.E(domain.KindStorageFailure, op, err)
	}
	if job == nil {
		return domain.E(domain.KindNotFound, op, domain.ErrJobNotFound)
	}
	if job.SourceObjectKey == "" {
		return domain.E(domain.KindInvalidInput, op, domain.ErrSourceNotAssigned)
	}

	jobCtx := context.WithoutCancel(ctx)
	if w.jobTimeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(jobCtx, w.jobTimeout)
		defer cancel()
	}

	w.logger.Info("Processing job",
		slog.String("owner_id", job.OwnerID),
		slog.String("job_id", job.JobID),
		slog.Int("piece_count", job.PieceCount),
	)

	result, err := w.engine.Decompose(jobCtx, job.OwnerID, job.JobID, job.SourceObjectKey, job.PieceCount)
	if err != nil {
		return fmt.Errorf("decompose: %w", err)
	}

	w.logger.Info("Job decomposed",
		slog.String("job_id", job.JobID),
		slog.Int("rows", result.Rows),
		slog.Int("cols", result.Cols),
		slog.Int("total_pieces", result.TotalPieces),
	)
	return nil
}
