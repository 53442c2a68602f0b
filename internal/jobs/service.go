// Package jobs registers jobs, looks them up, and moves them through their
// status lifecycle.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/cuongbtq/jigsaw-be/internal/domain"
	"github.com/cuongbtq/jigsaw-be/internal/storage"
	"github.com/google/uuid"
)

const (
	// DefaultUploadURLExpiry is how long an issued upload URL stays valid
	DefaultUploadURLExpiry = 15 * time.Minute
	// DefaultFileName is used when the caller does not name the upload
	DefaultFileName = "puzzle.jpg"
	// defaultExt is the extension assumed for file names without one
	defaultExt = "jpg"
)

// Config holds Service dependencies
type Config struct {
	Records         storage.RecordStore
	Objects         storage.ObjectStore
	Signer          storage.UploadSigner
	Status          *StatusMachine
	Logger          *slog.Logger
	UploadURLExpiry time.Duration
}

// Service is the registration and lookup surface over job records
type Service struct {
	records storage.RecordStore
	objects storage.ObjectStore
	signer  storage.UploadSigner
	status  *StatusMachine
	logger  *slog.Logger
	expiry  time.Duration
	now     func() time.Time
	newID   func() string
}

// UploadTarget is where a client uploads a job's source image
type UploadTarget struct {
	JobID       string
	URL         string
	ObjectKey   string
	ContentType string
	ExpiresIn   time.Duration
}

// NewService creates a new Service
func NewService(cfg *Config) *Service {
	expiry := cfg.UploadURLExpiry
	if expiry <= 0 {
		expiry = DefaultUploadURLExpiry
	}

	status := cfg.Status
	if status == nil {
		status = NewStatusMachine(cfg.Records, cfg.Logger)
	}

	return &Service{
		records: cfg.Records,
		objects: cfg.Objects,
		signer:  cfg.Signer,
		status:  status,
		logger:  cfg.Logger,
		expiry:  expiry,
		now:     func() time.Time { return time.Now().UTC() },
		newID:   func() string { return uuid.New().String() },
	}
}

// Create validates pieceCount and writes a new pending job
func (s *Service) Create(ctx context.Context, ownerID, displayName string, pieceCount int) (*domain.Job, error) {
	if !domain.IsSupportedPieceCount(pieceCount) {
		return nil, domain.InvalidInput("create job", "%w: %d", domain.ErrUnsupportedPieceCount, pieceCount)
	}

	now := s.now()
	job := &domain.Job{
		OwnerID:     ownerID,
		JobID:       s.newID(),
		DisplayName: displayName,
		PieceCount:  pieceCount,
		Status:      domain.JobStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.records.PutJob(ctx, job); err != nil {
		s.logger.Error("Failed to create job",
			slog.String("owner_id", ownerID),
			slog.String("job_id", job.JobID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	s.logger.Info("Job created",
		slog.String("owner_id", ownerID),
		slog.String("job_id", job.JobID),
		slog.Int("piece_count", pieceCount),
	)

	return job, nil
}

// Get returns the job, or nil when it does not exist. A record store failure
// on this path is logged and also reported as nil, so transient errors look
// like a missing job to callers.
func (s *Service) Get(ctx context.Context, ownerID, jobID string) (*domain.Job, error) {
	job, err := s.records.GetJob(ctx, ownerID, jobID)
	if err != nil {
		if !domain.IsKind(err, domain.KindNotFound) {
			s.logger.Error("Error getting job",
				slog.String("owner_id", ownerID),
				slog.String("job_id", jobID),
				slog.String("error", err.Error()),
			)
		}
		return nil, nil
	}
	return job, nil
}

// List returns every job owned by ownerID
func (s *Service) List(ctx context.Context, ownerID string) ([]domain.Job, error) {
	jobs, err := s.records.ListJobs(ctx, ownerID)
	if err != nil {
		s.logger.Error("Error listing jobs",
			slog.String("owner_id", ownerID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	return jobs, nil
}

// IssueUploadURL assigns the job's source object key, returns a presigned
// upload URL for it, and moves the job to uploaded. Only pending and
// uploaded jobs accept a new upload target.
func (s *Service) IssueUploadURL(ctx context.Context, ownerID, jobID, fileName string) (*UploadTarget, error) {
	const op = "issue upload url"

	job, err := s.Get(ctx, ownerID, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, domain.E(domain.KindNotFound, op, fmt.Errorf("%w: %s", domain.ErrJobNotFound, jobID))
	}
	if !domain.CanTransition(job.Status, domain.JobStatusUploaded) {
		return nil, domain.E(domain.KindConflict, op,
			fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, job.Status, domain.JobStatusUploaded))
	}

	if fileName == "" {
		fileName = DefaultFileName
	}
	ext := FileExt(fileName)
	contentType, ok := storage.ContentTypeForExt(ext)
	if !ok {
		return nil, domain.InvalidInput(op, "unsupported file extension %q", ext)
	}

	key := domain.SourceObjectKey(jobID, ext)
	url, err := s.signer.PresignPut(ctx, key, contentType, s.expiry)
	if err != nil {
		s.logger.Error("Failed to generate upload URL",
			slog.String("job_id", jobID),
			slog.String("object_key", key),
			slog.String("error", err.Error()),
		)
		return nil, domain.E(domain.KindStorageFailure, op, err)
	}

	if err := s.status.MarkUploaded(ctx, ownerID, jobID, fileName, key); err != nil {
		return nil, err
	}

	s.logger.Info("Upload URL issued",
		slog.String("owner_id", ownerID),
		slog.String("job_id", jobID),
		slog.String("object_key", key),
	)

	return &UploadTarget{
		JobID:       jobID,
		URL:         url,
		ObjectKey:   key,
		ContentType: contentType,
		ExpiresIn:   s.expiry,
	}, nil
}

// ListPieces returns the piece records of a job
func (s *Service) ListPieces(ctx context.Context, ownerID, jobID string) ([]domain.Piece, error) {
	job, err := s.Get(ctx, ownerID, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, domain.E(domain.KindNotFound, "list pieces", fmt.Errorf("%w: %s", domain.ErrJobNotFound, jobID))
	}
	return s.records.ListPieces(ctx, jobID)
}

// Delete removes a job, its pieces, and their images. Object deletions are
// best effort; record deletions are not.
func (s *Service) Delete(ctx context.Context, ownerID, jobID string) error {
	job, err := s.Get(ctx, ownerID, jobID)
	if err != nil {
		return err
	}
	if job == nil {
		return domain.E(domain.KindNotFound, "delete job", fmt.Errorf("%w: %s", domain.ErrJobNotFound, jobID))
	}

	pieces, err := s.records.ListPieces(ctx, jobID)
	if err != nil {
		return err
	}

	var objectErrs []error
	for _, p := range pieces {
		if err := s.objects.DeleteObject(ctx, p.ObjectKey); err != nil {
			objectErrs = append(objectErrs, err)
		}
	}
	if job.SourceObjectKey != "" {
		if err := s.objects.DeleteObject(ctx, job.SourceObjectKey); err != nil {
			objectErrs = append(objectErrs, err)
		}
	}
	if len(objectErrs) > 0 {
		s.logger.Warn("Some job objects could not be deleted",
			slog.String("job_id", jobID),
			slog.Int("failed", len(objectErrs)),
			slog.String("error", errors.Join(objectErrs...).Error()),
		)
	}

	if err := s.records.DeletePieces(ctx, jobID); err != nil {
		return err
	}
	if err := s.records.DeleteJob(ctx, ownerID, jobID); err != nil {
		return err
	}

	s.logger.Info("Job deleted",
		slog.String("owner_id", ownerID),
		slog.String("job_id", jobID),
		slog.Int("pieces", len(pieces)),
		slog.Bool("had_image", job.SourceObjectKey != ""),
	)

	return nil
}

// FileExt returns the lower-cased extension of name without the dot, or
// "jpg" when name has none.
func FileExt(name string) string {
	ext := strings.TrimPrefix(path.Ext(name), ".")
	if ext == "" {
		return defaultExt
	}
	return strings.ToLower(ext)
}
