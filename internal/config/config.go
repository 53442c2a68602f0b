package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Record store drivers
const (
	RecordsPostgres = "postgres"
	RecordsDynamoDB = "dynamodb"
	RecordsMemory   = "memory"
)

// Object store drivers
const (
	ObjectsS3         = "s3"
	ObjectsFilesystem = "filesystem"
	ObjectsMemory     = "memory"
)

const (
	defaultRecordsDriver  = RecordsPostgres
	defaultObjectsDriver  = ObjectsFilesystem
	defaultFilesystemPath = "data/objects"
)

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	RabbitMQ  RabbitMQConfig  `yaml:"rabbitmq"`
	Logging   LoggingConfig   `yaml:"logging"`
	App       AppConfig       `yaml:"app"`
	Worker    WorkerConfig    `yaml:"worker"`
	Storage   StorageConfig   `yaml:"storage"`
	AWS       AWSConfig       `yaml:"aws"`
	Decompose DecomposeConfig `yaml:"decompose"`
	Upload    UploadConfig    `yaml:"upload"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// RabbitMQConfig holds RabbitMQ connection and exchange/queue configuration
type RabbitMQConfig struct {
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Queue      QueueConfig      `yaml:"queue"`
	RoutingKey string           `yaml:"routing_key"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
	Consumer   ConsumerConfig   `yaml:"consumer"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// QueueConfig holds RabbitMQ queue configuration
type QueueConfig struct {
	Name       string `yaml:"name"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
	Exclusive  bool   `yaml:"exclusive"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	Heartbeat         time.Duration `yaml:"heartbeat"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// ConsumerConfig holds RabbitMQ consumer settings
type ConsumerConfig struct {
	PrefetchCount int  `yaml:"prefetch_count"`
	AutoAck       bool `yaml:"auto_ack"`
	Exclusive     bool `yaml:"exclusive"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level            string `yaml:"level"`
	Format           string `yaml:"format"`
	Output           string `yaml:"output"`
	EnableCaller     bool   `yaml:"enable_caller"`
	EnableStackTrace bool   `yaml:"enable_stack_trace"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// WorkerConfig holds worker service configuration
type WorkerConfig struct {
	Concurrency int `yaml:"concurrency"`
	// MaxJobs is how many parsed deliveries may wait for a free goroutine
	MaxJobs         int           `yaml:"max_jobs"`
	JobTimeout      time.Duration `yaml:"job_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// StorageConfig selects the record and object store drivers
type StorageConfig struct {
	Records        string `yaml:"records"`
	Objects        string `yaml:"objects"`
	FilesystemPath string `yaml:"filesystem_path"`
	// AutoMigrate creates tables on startup (postgres schema, dynamodb tables)
	AutoMigrate bool `yaml:"auto_migrate"`
}

// AWSConfig holds AWS connection, S3 bucket and DynamoDB table configuration
type AWSConfig struct {
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Bucket          string `yaml:"bucket"`
	JobsTable       string `yaml:"jobs_table"`
	PiecesTable     string `yaml:"pieces_table"`
}

// DecomposeConfig holds decomposition engine settings
type DecomposeConfig struct {
	JPEGQuality int `yaml:"jpeg_quality"`
	Concurrency int `yaml:"concurrency"`
}

// UploadConfig holds upload URL settings
type UploadConfig struct {
	URLExpiry time.Duration `yaml:"url_expiry"`
}

// Load reads the configuration file, expands ${VAR} references from the
// environment, and parses it
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.setDefaults()

	return &config, nil
}

func (c *Config) setDefaults() {
	if c.Storage.Records == "" {
		c.Storage.Records = defaultRecordsDriver
	}
	if c.Storage.Objects == "" {
		c.Storage.Objects = defaultObjectsDriver
	}
	if c.Storage.Objects == ObjectsFilesystem && c.Storage.FilesystemPath == "" {
		c.Storage.FilesystemPath = defaultFilesystemPath
	}
}

// ValidateAPIConfig checks the settings the API service depends on
func (c *Config) ValidateAPIConfig() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if err := c.validateStorage(); err != nil {
		return err
	}

	if err := c.validateRabbitMQ(); err != nil {
		return err
	}

	if c.RabbitMQ.Exchange.Name == "" {
		return fmt.Errorf("rabbitmq exchange name is required")
	}

	if c.Upload.URLExpiry < 0 {
		return fmt.Errorf("upload url_expiry must not be negative")
	}

	return nil
}

// ValidateWorkerConfig checks the settings the worker service depends on
func (c *Config) ValidateWorkerConfig() error {
	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker concurrency must be greater than 0")
	}

	if c.Worker.MaxJobs <= 0 {
		return fmt.Errorf("worker max_jobs must be greater than 0")
	}

	if c.Worker.JobTimeout <= 0 {
		return fmt.Errorf("worker job_timeout must be greater than 0")
	}

	if c.Worker.ShutdownTimeout <= 0 {
		return fmt.Errorf("worker shutdown_timeout must be greater than 0")
	}

	if c.Decompose.JPEGQuality < 0 || c.Decompose.JPEGQuality > 100 {
		return fmt.Errorf("invalid decompose jpeg_quality: %d (must be between 0 and 100)", c.Decompose.JPEGQuality)
	}

	if c.Decompose.Concurrency < 0 {
		return fmt.Errorf("decompose concurrency must not be negative")
	}

	if err := c.validateStorage(); err != nil {
		return err
	}

	return c.validateRabbitMQ()
}

func (c *Config) validateStorage() error {
	switch c.Storage.Records {
	case RecordsPostgres:
		if err := c.validateDatabase(); err != nil {
			return err
		}
	case RecordsDynamoDB:
		if c.AWS.Region == "" {
			return fmt.Errorf("aws region is required for dynamodb records")
		}
		if c.AWS.JobsTable == "" || c.AWS.PiecesTable == "" {
			return fmt.Errorf("aws jobs_table and pieces_table are required for dynamodb records")
		}
	case RecordsMemory:
	default:
		return fmt.Errorf("unsupported storage records driver: %q", c.Storage.Records)
	}

	switch c.Storage.Objects {
	case ObjectsS3:
		if c.AWS.Region == "" {
			return fmt.Errorf("aws region is required for s3 objects")
		}
		if c.AWS.Bucket == "" {
			return fmt.Errorf("aws bucket is required for s3 objects")
		}
	case ObjectsFilesystem:
		if c.Storage.FilesystemPath == "" {
			return fmt.Errorf("storage filesystem_path is required for filesystem objects")
		}
	case ObjectsMemory:
	default:
		return fmt.Errorf("unsupported storage objects driver: %q", c.Storage.Objects)
	}

	return nil
}

func (c *Config) validateDatabase() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Port < MinPort || c.Database.Port > MaxPort {
		return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	return nil
}

func (c *Config) validateRabbitMQ() error {
	if c.RabbitMQ.Host == "" {
		return fmt.Errorf("rabbitmq host is required")
	}

	if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
		return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
	}

	if c.RabbitMQ.Queue.Name == "" {
		return fmt.Errorf("rabbitmq queue name is required")
	}

	return nil
}
