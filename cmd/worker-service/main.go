package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuongbtq/jigsaw-be/internal/backend"
	"github.com/cuongbtq/jigsaw-be/internal/config"
	"github.com/cuongbtq/jigsaw-be/internal/decompose"
	"github.com/cuongbtq/jigsaw-be/internal/jobs"
	"github.com/cuongbtq/jigsaw-be/internal/worker"
	"github.com/cuongbtq/jigsaw-be/shared/logger"
	"github.com/cuongbtq/jigsaw-be/shared/rabbitmq"
	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("WORKER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/worker-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stores, err := backend.Open(ctx, cfg, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer stores.Close()

	rabbitClient, err := initRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}
	defer rabbitClient.Close()

	appLogger.Info("RabbitMQ connection established")

	status := jobs.NewStatusMachine(stores.Records, appLogger.Logger)
	service := jobs.NewService(&jobs.Config{
		Records: stores.Records,
		Objects: stores.Objects,
		Signer:  stores.Signer,
		Status:  status,
		Logger:  appLogger.Logger,
	})
	engine := decompose.NewEngine(&decompose.Config{
		Objects:     stores.Objects,
		Pieces:      decompose.NewPieceWriter(stores.Objects, stores.Records, appLogger.Logger, cfg.Decompose.JPEGQuality),
		Status:      status,
		Logger:      appLogger.Logger,
		Concurrency: cfg.Decompose.Concurrency,
	})

	w := worker.NewWorker(&worker.Config{
		Logger:        appLogger.Logger,
		Broker:        rabbitClient,
		Jobs:          service,
		Engine:        engine,
		Concurrency:   cfg.Worker.Concurrency,
		MaxJobs:       cfg.Worker.MaxJobs,
		JobTimeout:    cfg.Worker.JobTimeout,
		PrefetchCount: cfg.RabbitMQ.Consumer.PrefetchCount,
		QueueName:     cfg.RabbitMQ.Queue.Name,
	})

	workerErr := make(chan error, 1)
	go func() {
		workerErr <- w.Start(ctx)
	}()

	appLogger.Info("Worker service is running",
		slog.String("worker_id", w.ID()),
		slog.Int("concurrency", cfg.Worker.Concurrency),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case err := <-workerErr:
		if err != nil {
			appLogger.Error("Worker stopped unexpectedly", slog.Any("error", err))
			return err
		}
		appLogger.Warn("Worker stopped consuming")
	}

	cancel()

	stopped := make(chan struct{})
	go func() {
		w.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		appLogger.Info("Worker service shutdown complete")
	case <-time.After(cfg.Worker.ShutdownTimeout):
		appLogger.Warn("Shutdown timeout exceeded, in-flight jobs abandoned",
			slog.Duration("shutdown_timeout", cfg.Worker.ShutdownTimeout),
		)
	}

	return nil
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	})
}

// initRabbitMQ initializes the RabbitMQ client
func initRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	return rabbitmq.NewClient(&rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		QueueName:          cfg.Queue.Name,
		QueueDurable:       cfg.Queue.Durable,
		QueueAutoDelete:    cfg.Queue.AutoDelete,
		QueueExclusive:     cfg.Queue.Exclusive,
		RoutingKey:         cfg.RoutingKey,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		ConnectionTimeout:  cfg.Connection.ConnectionTimeout,
	}, logger)
}
