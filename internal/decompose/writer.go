package decompose

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/cuongbtq/jigsaw-be/internal/domain"
	"github.com/cuongbtq/jigsaw-be/internal/storage"
	"github.com/disintegration/imaging"
	"github.com/google/uuid"
)

// DefaultJPEGQuality is the encoder quality used for piece images
const DefaultJPEGQuality = 85

// PieceWriter encodes a cropped piece and persists its image and record
type PieceWriter struct {
	objects storage.ObjectStore
	records storage.RecordStore
	logger  *slog.Logger
	quality int
	now     func() time.Time
	newID   func() string
}

// NewPieceWriter creates a PieceWriter. quality <= 0 selects DefaultJPEGQuality.
func NewPieceWriter(objects storage.ObjectStore, records storage.RecordStore, logger *slog.Logger, quality int) *PieceWriter {
	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	return &PieceWriter{
		objects: objects,
		records: records,
		logger:  logger,
		quality: quality,
		now:     func() time.Time { return time.Now().UTC() },
		newID:   func() string { return uuid.New().String() },
	}
}

// Persist writes crop to pieces/{jobID}/{pieceID}.jpg and then writes its
// piece record. The two writes are independent: if the record write fails the
// image object is left behind.
func (w *PieceWriter) Persist(ctx context.Context, ownerID, jobID string, row, col int, crop image.Image) (string, error) {
	pieceID := w.newID()
	key := domain.PieceObjectKey(jobID, pieceID)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, crop, imaging.JPEG, imaging.JPEGQuality(w.quality)); err != nil {
		return "", domain.E(domain.KindUnknown, "encode piece", fmt.Errorf("row %d col %d: %w", row, col, err))
	}

	if err := w.objects.PutObject(ctx, key, buf.Bytes(), storage.ContentTypeJPEG); err != nil {
		return "", err
	}

	bounds := crop.Bounds()
	now := w.now()
	piece := &domain.Piece{
		OwnerID:    ownerID,
		JobID:      jobID,
		PieceID:    pieceID,
		Row:        row,
		Col:        col,
		CorrectRow: row,
		CorrectCol: col,
		ObjectKey:  key,
		Width:      bounds.Dx(),
		Height:     bounds.Dy(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := w.records.PutPiece(ctx, piece); err != nil {
		w.logger.Error("Piece record write failed, image object left orphaned",
			slog.String("job_id", jobID),
			slog.String("piece_id", pieceID),
			slog.String("object_key", key),
			slog.String("error", err.Error()),
		)
		return "", err
	}

	w.logger.Debug("Piece created",
		slog.String("job_id", jobID),
		slog.String("piece_id", pieceID),
		slog.Int("row", row),
		slog.Int("col", col),
	)

	return pieceID, nil
}
