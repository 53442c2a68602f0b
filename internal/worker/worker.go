package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/jigsaw-be/internal/decompose"
	"github.com/cuongbtq/jigsaw-be/internal/domain"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// JobLookup loads the job a message refers to
type JobLookup interface {
	Get(ctx context.Context, ownerID, jobID string) (*domain.Job, error)
}

// Decomposer cuts a job's source image into pieces
type Decomposer interface {
	Decompose(ctx context.Context, ownerID, jobID, sourceKey string, pieceCount int) (*decompose.Result, error)
}

// Broker is the subset of the RabbitMQ client the worker consumes from
type Broker interface {
	Qos(prefetchCount int) error
	Consume(consumerTag string) (<-chan amqp.Delivery, error)
}

// Message is the body published to request a decomposition
type Message struct {
	OwnerID string `json:"owner_id"`
	JobID   string `json:"job_id"`
}

// jobMessage pairs a parsed Message with the delivery to ACK or NACK
type jobMessage struct {
	Message
	delivery amqp.Delivery
}

// Config holds worker configuration
type Config struct {
	Logger        *slog.Logger
	Broker        Broker
	Jobs          JobLookup
	Engine        Decomposer
	Concurrency   int
	MaxJobs       int
	JobTimeout    time.Duration
	PrefetchCount int
	QueueName     string
}

// Worker consumes decomposition requests and runs them on a bounded pool
type Worker struct {
	logger        *slog.Logger
	broker        Broker
	jobs          JobLookup
	engine        Decomposer
	concurrency   int
	jobTimeout    time.Duration
	prefetchCount int
	queueName     string
	workerID      string

	jobsChan chan *jobMessage
	wg       sync.WaitGroup
	stopOnce sync.Once
	stopChan chan struct{}
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	buffer := cfg.MaxJobs
	if buffer < 0 {
		buffer = 0
	}
	prefetch := cfg.PrefetchCount
	if prefetch <= 0 {
		prefetch = concurrency
	}

	return &Worker{
		logger:        cfg.Logger,
		broker:        cfg.Broker,
		jobs:          cfg.Jobs,
		engine:        cfg.Engine,
		concurrency:   concurrency,
		jobTimeout:    cfg.JobTimeout,
		prefetchCount: prefetch,
		queueName:     cfg.QueueName,
		workerID:      "worker-" + uuid.NewString()[:8],
		jobsChan:      make(chan *jobMessage, buffer),
		stopChan:      make(chan struct{}),
	}
}

// ID returns the consumer tag this worker registers with the broker
func (w *Worker) ID() string {
	return w.workerID
}

// Start consumes deliveries until ctx is canceled or the delivery channel closes
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
		slog.Duration("job_timeout", w.jobTimeout),
	)

	deliveries, err := w.setupConsumer()
	if err != nil {
		return fmt.Errorf("failed to setup consumer: %w", err)
	}

	w.spawnWorkerPool(ctx)

	w.wg.Add(1)
	defer w.wg.Done()
	w.startMessageDispatcher(ctx, deliveries)

	return nil
}

// Stop waits for in-flight jobs and requeues anything still buffered
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		w.logger.Info("Stopping worker...")
		close(w.stopChan)
		w.wg.Wait()
		w.requeueBuffered()
		w.logger.Info("Worker stopped")
	})
}

func (w *Worker) requeueBuffered() {
	for {
		select {
		case msg := <-w.jobsChan:
			if err := msg.delivery.Nack(false, true); err != nil {
				w.logger.Error("Failed to requeue buffered message",
					slog.String("job_id", msg.JobID),
					slog.String("error", err.Error()),
				)
			}
		default:
			return
		}
	}
}
