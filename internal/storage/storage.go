// Package storage declares the object store and record store contracts the
// decomposition engine and job service are written against.
package storage

import (
	"context"
	"time"

	"github.com/cuongbtq/jigsaw-be/internal/domain"
)

// ObjectStore is key-addressed binary storage for source and piece images
type ObjectStore interface {
	GetObject(ctx context.Context, key string) ([]byte, error)
	PutObject(ctx context.Context, key string, data []byte, contentType string) error
	DeleteObject(ctx context.Context, key string) error
}

// UploadSigner issues short-lived write-capable URLs for direct client uploads
type UploadSigner interface {
	PresignPut(ctx context.Context, key, contentType string, expires time.Duration) (string, error)
}

// RecordStore is key-addressed structured storage for Job and Piece records.
// Jobs are keyed by (ownerID, jobID), pieces by (jobID, pieceID).
//
// GetJob and UpdateJob return an error of kind domain.KindNotFound when the
// job is absent; every backend failure is returned with kind
// domain.KindStorageFailure. ListJobs returns newest first and ListPieces
// returns row-major by solved position.
type RecordStore interface {
	PutJob(ctx context.Context, job *domain.Job) error
	GetJob(ctx context.Context, ownerID, jobID string) (*domain.Job, error)
	UpdateJob(ctx context.Context, ownerID, jobID string, update domain.JobUpdate) error
	ListJobs(ctx context.Context, ownerID string) ([]domain.Job, error)
	DeleteJob(ctx context.Context, ownerID, jobID string) error

	PutPiece(ctx context.Context, piece *domain.Piece) error
	ListPieces(ctx context.Context, jobID string) ([]domain.Piece, error)
	DeletePieces(ctx context.Context, jobID string) error
}

// Content types written to the object store
const (
	ContentTypeJPEG = "image/jpeg"
	ContentTypePNG  = "image/png"
)

// ContentTypeForExt maps an allowed upload extension to its content type
func ContentTypeForExt(ext string) (string, bool) {
	switch ext {
	case "jpg", "jpeg":
		return ContentTypeJPEG, true
	case "png":
		return ContentTypePNG, true
	}
	return "", false
}
