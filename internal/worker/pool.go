package worker

import (
	"context"
	"fmt"
	"log/slog"
)

// spawnWorkerPool spawns N worker goroutines based on concurrency configuration
func (w *Worker) spawnWorkerPool(ctx context.Context) {
	w.logger.Info("Spawning worker pool",
		slog.Int("concurrency", w.concurrency),
		slog.String("worker_id", w.workerID),
	)

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx, i)
	}
}

// workerLoop runs jobs one at a time until the worker stops or ctx is canceled
func (w *Worker) workerLoop(ctx context.Context, workerNum int) {
	defer w.wg.Done()

	workerName := fmt.Sprintf("%s-%d", w.workerID, workerNum)
	logger := w.logger.With(slog.String("worker_name", workerName))
	logger.Debug("Worker goroutine started")

	for {
		select {
		case <-w.stopChan:
			logger.Debug("Worker goroutine stopping - stopChan closed")
			return

		case <-ctx.Done():
			logger.Debug("Worker goroutine stopping - context canceled")
			return

		case msg := <-w.jobsChan:
			w.handle(ctx, logger, msg)
		}
	}
}

// handle processes msg and settles its delivery: ACK on success, NACK
// without requeue on any failure
func (w *Worker) handle(ctx context.Context, logger *slog.Logger, msg *jobMessage) {
	logger = logger.With(
		slog.String("owner_id", msg.OwnerID),
		slog.String("job_id", msg.JobID),
	)

	if err := w.processJob(ctx, msg.Message); err != nil {
		logger.Error("Job processing failed", slog.String("error", err.Error()))
		if nackErr := msg.delivery.Nack(false, false); nackErr != nil {
			logger.Error("Failed to NACK message", slog.String("error", nackErr.Error()))
		}
		return
	}

	if ackErr := msg.delivery.Ack(false); ackErr != nil {
		logger.Error("Failed to ACK message", slog.String("error", ackErr.Error()))
		return
	}
	logger.Info("Job completed successfully")
}
