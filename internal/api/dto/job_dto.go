package dto

import (
	"time"

	"github.com/cuongbtq/jigsaw-be/internal/domain"
	"github.com/cuongbtq/jigsaw-be/internal/jobs"
)

// DefaultOwnerID is used when a request names no owner
const DefaultOwnerID = "anonymous"

type CreateJobRequest struct {
	OwnerID     string `json:"owner_id" binding:"omitempty,max=128"`
	DisplayName string `json:"display_name" binding:"required,min=1,max=100"`
	PieceCount  int    `json:"piece_count" binding:"required,oneof=100 300 500 1000 2000"`
}

type UploadURLRequest struct {
	OwnerID  string `json:"owner_id" binding:"omitempty,max=128"`
	FileName string `json:"file_name" binding:"omitempty,max=255,excludesall=/\\"`
}

type ProcessJobRequest struct {
	OwnerID string `json:"owner_id" binding:"omitempty,max=128"`
}

// OwnerQuery binds the owner_id query parameter of read and delete routes
type OwnerQuery struct {
	OwnerID string `form:"owner_id" binding:"omitempty,max=128"`
}

type JobDTO struct {
	JobID           string `json:"job_id"`
	OwnerID         string `json:"owner_id"`
	DisplayName     string `json:"display_name"`
	PieceCount      int    `json:"piece_count"`
	FileName        string `json:"file_name,omitempty"`
	SourceObjectKey string `json:"source_object_key,omitempty"`
	Status          string `json:"status"`
	Rows            int    `json:"rows,omitempty"`
	Cols            int    `json:"cols,omitempty"`
	TotalPieces     int    `json:"total_pieces,omitempty"`
	ErrorMessage    string `json:"error_message,omitempty"`
	CreatedAt       string `json:"created_at"`
	UpdatedAt       string `json:"updated_at"`
}

type ListJobsResponse struct {
	Jobs []JobDTO `json:"jobs"`
}

type PieceDTO struct {
	PieceID    string `json:"piece_id"`
	Row        int    `json:"row"`
	Col        int    `json:"col"`
	CorrectRow int    `json:"correct_row"`
	CorrectCol int    `json:"correct_col"`
	ObjectKey  string `json:"object_key"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
}

type ListPiecesResponse struct {
	JobID  string     `json:"job_id"`
	Pieces []PieceDTO `json:"pieces"`
}

type UploadURLResponse struct {
	JobID            string `json:"job_id"`
	UploadURL        string `json:"upload_url"`
	ObjectKey        string `json:"object_key"`
	ContentType      string `json:"content_type"`
	ExpiresInSeconds int    `json:"expires_in_seconds"`
}

type ProcessJobResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// OwnerOrDefault returns owner, or DefaultOwnerID when it is empty
func OwnerOrDefault(owner string) string {
	if owner == "" {
		return DefaultOwnerID
	}
	return owner
}

func FromJob(job *domain.Job) JobDTO {
	return JobDTO{
		JobID:           job.JobID,
		OwnerID:         job.OwnerID,
		DisplayName:     job.DisplayName,
		PieceCount:      job.PieceCount,
		FileName:        job.FileName,
		SourceObjectKey: job.SourceObjectKey,
		Status:          string(job.Status),
		Rows:            job.Rows,
		Cols:            job.Cols,
		TotalPieces:     job.TotalPieces,
		ErrorMessage:    job.ErrorMessage,
		CreatedAt:       job.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       job.UpdatedAt.Format(time.RFC3339),
	}
}

func FromJobs(jobs []domain.Job) []JobDTO {
	out := make([]JobDTO, 0, len(jobs))
	for i := range jobs {
		out = append(out, FromJob(&jobs[i]))
	}
	return out
}

func FromPieces(pieces []domain.Piece) []PieceDTO {
	out := make([]PieceDTO, 0, len(pieces))
	for _, p := range pieces {
		out = append(out, PieceDTO{
			PieceID:    p.PieceID,
			Row:        p.Row,
			Col:        p.Col,
			CorrectRow: p.CorrectRow,
			CorrectCol: p.CorrectCol,
			ObjectKey:  p.ObjectKey,
			Width:      p.Width,
			Height:     p.Height,
		})
	}
	return out
}

func FromUploadTarget(target *jobs.UploadTarget) UploadURLResponse {
	return UploadURLResponse{
		JobID:            target.JobID,
		UploadURL:        target.URL,
		ObjectKey:        target.ObjectKey,
		ContentType:      target.ContentType,
		ExpiresInSeconds: int(target.ExpiresIn.Seconds()),
	}
}
