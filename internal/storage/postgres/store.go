// Package postgres is the PostgreSQL RecordStore. Jobs and pieces live in
// two tables keyed the same way as the other backends.
package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cuongbtq/jigsaw-be/internal/domain"
	"github.com/jmoiron/sqlx"
)

//go:embed schema.sql
var schema string

const jobColumns = `owner_id, job_id, display_name, piece_count, file_name,
	source_object_key, status, grid_rows, grid_cols, total_pieces,
	error_message, created_at, updated_at`

const pieceColumns = `job_id, piece_id, owner_id, grid_row, grid_col,
	correct_row, correct_col, object_key, width, height, created_at, updated_at`

// Store handles job and piece records in PostgreSQL
type Store struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a new Store
func NewStore(db *sqlx.DB, logger *slog.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger,
	}
}

// EnsureSchema creates the jobs and pieces tables when they do not exist
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		s.logger.Error("Failed to apply schema", slog.String("error", err.Error()))
		return domain.E(domain.KindStorageFailure, "ensure schema", err)
	}
	s.logger.Info("Database schema ready")
	return nil
}

func (s *Store) PutJob(ctx context.Context, job *domain.Job) error {
	query := `
		INSERT INTO jobs (` + jobColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (owner_id, job_id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			piece_count = EXCLUDED.piece_count,
			file_name = EXCLUDED.file_name,
			source_object_key = EXCLUDED.source_object_key,
			status = EXCLUDED.status,
			grid_rows = EXCLUDED.grid_rows,
			grid_cols = EXCLUDED.grid_cols,
			total_pieces = EXCLUDED.total_pieces,
			error_message = EXCLUDED.error_message,
			updated_at = EXCLUDED.updated_at
	`

	_, err := s.db.ExecContext(
		ctx,
		query,
		job.OwnerID,
		job.JobID,
		job.DisplayName,
		job.PieceCount,
		job.FileName,
		job.SourceObjectKey,
		job.Status,
		job.Rows,
		job.Cols,
		job.TotalPieces,
		job.ErrorMessage,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return domain.E(domain.KindStorageFailure, "put job", err)
	}

	return nil
}

func (s *Store) GetJob(ctx context.Context, ownerID, jobID string) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE owner_id = $1 AND job_id = $2`

	var job domain.Job
	if err := s.db.GetContext(ctx, &job, query, ownerID, jobID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.E(domain.KindNotFound, "get job", domain.ErrJobNotFound)
		}
		return nil, domain.E(domain.KindStorageFailure, "get job", err)
	}

	return &job, nil
}

func (s *Store) UpdateJob(ctx context.Context, ownerID, jobID string, update domain.JobUpdate) error {
	query, args := buildJobUpdate(ownerID, jobID, update)
	if query == "" {
		return nil
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return domain.E(domain.KindStorageFailure, "update job", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return domain.E(domain.KindStorageFailure, "update job", err)
	}
	if affected == 0 {
		return domain.E(domain.KindNotFound, "update job", domain.ErrJobNotFound)
	}

	return nil
}

// buildJobUpdate renders the set fields of update as a single UPDATE. It
// returns an empty query when nothing is set.
func buildJobUpdate(ownerID, jobID string, update domain.JobUpdate) (string, []interface{}) {
	var sets []string
	args := []interface{}{}
	argIdx := 1

	add := func(column string, value interface{}) {
		sets = append(sets, fmt.Sprintf("%s = $%d", column, argIdx))
		args = append(args, value)
		argIdx++
	}

	if update.Status != nil {
		add("status", *update.Status)
	}
	if update.Rows != nil {
		add("grid_rows", *update.Rows)
	}
	if update.Cols != nil {
		add("grid_cols", *update.Cols)
	}
	if update.TotalPieces != nil {
		add("total_pieces", *update.TotalPieces)
	}
	if update.ErrorMessage != nil {
		add("error_message", *update.ErrorMessage)
	}
	if update.FileName != nil {
		add("file_name", *update.FileName)
	}
	if update.SourceObjectKey != nil {
		add("source_object_key", *update.SourceObjectKey)
	}
	if !update.UpdatedAt.IsZero() {
		add("updated_at", update.UpdatedAt)
	}

	if len(sets) == 0 {
		return "", nil
	}

	query := fmt.Sprintf("UPDATE jobs SET %s WHERE owner_id = $%d AND job_id = $%d",
		strings.Join(sets, ", "), argIdx, argIdx+1)
	args = append(args, ownerID, jobID)

	return query, args
}

func (s *Store) ListJobs(ctx context.Context, ownerID string) ([]domain.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE owner_id = $1
		ORDER BY created_at DESC, job_id DESC
	`

	jobs := []domain.Job{}
	if err := s.db.SelectContext(ctx, &jobs, query, ownerID); err != nil {
		return nil, domain.E(domain.KindStorageFailure, "list jobs", err)
	}

	return jobs, nil
}

func (s *Store) DeleteJob(ctx context.Context, ownerID, jobID string) error {
	query := `DELETE FROM jobs WHERE owner_id = $1 AND job_id = $2`

	if _, err := s.db.ExecContext(ctx, query, ownerID, jobID); err != nil {
		return domain.E(domain.KindStorageFailure, "delete job", err)
	}

	return nil
}

func (s *Store) PutPiece(ctx context.Context, piece *domain.Piece) error {
	query := `
		INSERT INTO pieces (` + pieceColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (job_id, piece_id) DO UPDATE SET
			grid_row = EXCLUDED.grid_row,
			grid_col = EXCLUDED.grid_col,
			object_key = EXCLUDED.object_key,
			width = EXCLUDED.width,
			height = EXCLUDED.height,
			updated_at = EXCLUDED.updated_at
	`

	_, err := s.db.ExecContext(
		ctx,
		query,
		piece.JobID,
		piece.PieceID,
		piece.OwnerID,
		piece.Row,
		piece.Col,
		piece.CorrectRow,
		piece.CorrectCol,
		piece.ObjectKey,
		piece.Width,
		piece.Height,
		piece.CreatedAt,
		piece.UpdatedAt,
	)
	if err != nil {
		return domain.E(domain.KindStorageFailure, "put piece", err)
	}

	return nil
}

func (s *Store) ListPieces(ctx context.Context, jobID string) ([]domain.Piece, error) {
	query := `
		SELECT ` + pieceColumns + `
		FROM pieces
		WHERE job_id = $1
		ORDER BY correct_row, correct_col, piece_id
	`

	pieces := []domain.Piece{}
	if err := s.db.SelectContext(ctx, &pieces, query, jobID); err != nil {
		return nil, domain.E(domain.KindStorageFailure, "list pieces", err)
	}

	return pieces, nil
}

func (s *Store) DeletePieces(ctx context.Context, jobID string) error {
	query := `DELETE FROM pieces WHERE job_id = $1`

	if _, err := s.db.ExecContext(ctx, query, jobID); err != nil {
		return domain.E(domain.KindStorageFailure, "delete pieces", err)
	}

	return nil
}
