// Package decompose cuts a job's source image into a grid of pieces and
// persists each piece's image and record.
package decompose

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"log/slog"

	"github.com/cuongbtq/jigsaw-be/internal/domain"
	"github.com/cuongbtq/jigsaw-be/internal/grid"
	"github.com/cuongbtq/jigsaw-be/internal/storage"
	"github.com/disintegration/imaging"
	"golang.org/x/sync/errgroup"
)

// StatusTracker records the lifecycle transitions of a decomposition
type StatusTracker interface {
	MarkProcessing(ctx context.Context, ownerID, jobID string) error
	MarkCompleted(ctx context.Context, ownerID, jobID string, rows, cols, totalPieces int) error
	MarkFailed(ctx context.Context, ownerID, jobID, errorMessage string) error
}

// PiecePersister stores one cropped piece and returns its id
type PiecePersister interface {
	Persist(ctx context.Context, ownerID, jobID string, row, col int, crop image.Image) (string, error)
}

// Config holds Engine dependencies
type Config struct {
	Objects storage.ObjectStore
	Pieces  PiecePersister
	Status  StatusTracker
	Logger  *slog.Logger
	// Concurrency is the number of cells persisted in parallel. Values <= 1
	// run a single sequential pass in row-major order.
	Concurrency int
}

// Engine runs decompositions
type Engine struct {
	objects     storage.ObjectStore
	pieces      PiecePersister
	status      StatusTracker
	logger      *slog.Logger
	concurrency int
}

// Result summarizes a completed decomposition
type Result struct {
	Rows        int
	Cols        int
	TotalPieces int
}

type cell struct {
	row, col int
	rect     image.Rectangle
}

// NewEngine creates a new Engine
func NewEngine(cfg *Config) *Engine {
	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	return &Engine{
		objects:     cfg.Objects,
		pieces:      cfg.Pieces,
		status:      cfg.Status,
		logger:      cfg.Logger,
		concurrency: concurrency,
	}
}

// Decompose splits the image at sourceKey into pieceCount (or slightly more)
// pieces for job (ownerID, jobID).
//
// An unsupported pieceCount is rejected before any I/O. Every later failure
// marks the job failed with the error text and is returned to the caller;
// pieces written before the failure stay in place.
func (e *Engine) Decompose(ctx context.Context, ownerID, jobID, sourceKey string, pieceCount int) (*Result, error) {
	if _, _, err := grid.Base(pieceCount); err != nil {
		return nil, err
	}

	logger := e.logger.With(
		slog.String("owner_id", ownerID),
		slog.String("job_id", jobID),
	)

	result, err := e.process(ctx, logger, ownerID, jobID, sourceKey, pieceCount)
	if err != nil {
		logger.Error("Decomposition failed",
			slog.String("source_key", sourceKey),
			slog.String("kind", domain.KindOf(err).String()),
			slog.String("error", err.Error()),
		)

		// the failure must be recorded even when ctx is what ended the run
		if markErr := e.status.MarkFailed(context.WithoutCancel(ctx), ownerID, jobID, err.Error()); markErr != nil {
			logger.Error("Failed to mark job failed",
				slog.String("error", markErr.Error()),
			)
		}
		return nil, err
	}

	return result, nil
}

func (e *Engine) process(ctx context.Context, logger *slog.Logger, ownerID, jobID, sourceKey string, pieceCount int) (*Result, error) {
	if err := e.status.MarkProcessing(ctx, ownerID, jobID); err != nil {
		return nil, err
	}

	logger.Info("Downloading source image", slog.String("source_key", sourceKey))

	data, err := e.objects.GetObject(ctx, sourceKey)
	if err != nil {
		return nil, err
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, domain.E(domain.KindUnknown, "decode source image", err)
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	rows, cols, err := grid.Calculate(pieceCount, width, height)
	if err != nil {
		return nil, err
	}
	if width < cols || height < rows {
		return nil, domain.InvalidInput("decompose", "image %dx%d is too small for a %dx%d grid", width, height, rows, cols)
	}

	logger.Info("Calculated grid dimensions",
		slog.Int("piece_count", pieceCount),
		slog.Int("image_width", width),
		slog.Int("image_height", height),
		slog.Int("rows", rows),
		slog.Int("cols", cols),
	)

	cells := make([]cell, 0, rows*cols)
	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			rect := grid.Bounds(row, col, rows, cols, width, height).Add(bounds.Min)
			cells = append(cells, cell{row: row, col: col, rect: rect})
		}
	}

	if e.concurrency > 1 {
		err = e.persistParallel(ctx, ownerID, jobID, img, cells)
	} else {
		err = e.persistSequential(ctx, ownerID, jobID, img, cells)
	}
	if err != nil {
		return nil, err
	}

	total := rows * cols
	if err := e.status.MarkCompleted(ctx, ownerID, jobID, rows, cols, total); err != nil {
		return nil, err
	}

	logger.Info("Image split completed",
		slog.Int("total_pieces", total),
		slog.Int("rows", rows),
		slog.Int("cols", cols),
	)

	return &Result{Rows: rows, Cols: cols, TotalPieces: total}, nil
}

func (e *Engine) persistSequential(ctx context.Context, ownerID, jobID string, img image.Image, cells []cell) error {
	for _, c := range cells {
		if err := e.persistCell(ctx, ownerID, jobID, img, c); err != nil {
			return err
		}
	}
	return nil
}

// persistParallel fans cells out over a bounded group. The first failure
// cancels the group so cells not yet started are skipped.
func (e *Engine) persistParallel(ctx context.Context, ownerID, jobID string, img image.Image, cells []cell) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)

	for _, c := range cells {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return e.persistCell(gctx, ownerID, jobID, img, c)
		})
	}

	return g.Wait()
}

func (e *Engine) persistCell(ctx context.Context, ownerID, jobID string, img image.Image, c cell) error {
	if err := ctx.Err(); err != nil {
		return domain.E(domain.KindUnknown, "decompose", err)
	}
	crop := imaging.Crop(img, c.rect)
	if _, err := e.pieces.Persist(ctx, ownerID, jobID, c.row, c.col, crop); err != nil {
		return fmt.Errorf("piece row %d col %d: %w", c.row, c.col, err)
	}
	return nil
}
