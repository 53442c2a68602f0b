package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

var errMissingOwner = errors.New("owner_id is required")

// setupConsumer sets QoS and starts consuming under the worker ID as consumer tag
func (w *Worker) setupConsumer() (<-chan amqp.Delivery, error) {
	if err := w.broker.Qos(w.prefetchCount); err != nil {
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	w.logger.Info("RabbitMQ QoS configured",
		slog.Int("prefetch_count", w.prefetchCount),
	)

	deliveries, err := w.broker.Consume(w.workerID)
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	w.logger.Info("RabbitMQ consumer started",
		slog.String("consumer_tag", w.workerID),
		slog.String("queue", w.queueName),
	)

	return deliveries, nil
}

// parseMessage decodes a delivery body and checks its identifiers
func parseMessage(body []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return msg, fmt.Errorf("invalid message JSON: %w", err)
	}
	if msg.OwnerID == "" {
		return msg, errMissingOwner
	}
	if _, err := uuid.Parse(msg.JobID); err != nil {
		return msg, fmt.Errorf("invalid job_id %q: %w", msg.JobID, err)
	}
	return msg, nil
}

// startMessageDispatcher hands deliveries to the pool until ctx is canceled
// or the worker is stopped
func (w *Worker) startMessageDispatcher(ctx context.Context, deliveries <-chan amqp.Delivery) {
	w.logger.Info("Message dispatcher started",
		slog.String("worker_id", w.workerID),
	)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Message dispatcher stopped - context canceled")
			return

		case <-w.stopChan:
			w.logger.Info("Message dispatcher stopped - worker stopping")
			return

		case delivery, ok := <-deliveries:
			if !ok {
				w.logger.Warn("RabbitMQ delivery channel closed")
				return
			}

			msg, err := parseMessage(delivery.Body)
			if err != nil {
				w.logger.Error("Rejecting malformed message",
					slog.String("error", err.Error()),
					slog.String("body", string(delivery.Body)),
				)
				if nackErr := delivery.Nack(false, false); nackErr != nil {
					w.logger.Error("Failed to NACK malformed message",
						slog.String("error", nackErr.Error()),
					)
				}
				continue
			}

			jobMsg := &jobMessage{Message: msg, delivery: delivery}

			select {
			case w.jobsChan <- jobMsg:
				w.logger.Debug("Job dispatched to worker pool",
					slog.String("job_id", msg.JobID),
					slog.Uint64("delivery_tag", delivery.DeliveryTag),
				)
			case <-ctx.Done():
				w.nackForShutdown(jobMsg)
				return
			case <-w.stopChan:
				w.nackForShutdown(jobMsg)
				return
			}
		}
	}
}

func (w *Worker) nackForShutdown(msg *jobMessage) {
	w.logger.Info("Message dispatcher stopped while dispatching job",
		slog.String("job_id", msg.JobID),
	)
	if err := msg.delivery.Nack(false, true); err != nil {
		w.logger.Error("Failed to NACK message on shutdown",
			slog.String("error", err.Error()),
		)
	}
}
