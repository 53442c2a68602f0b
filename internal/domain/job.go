package domain

import "time"

// JobStatus is the lifecycle state of a Job
type JobStatus string

// Job status constants
const (
	JobStatusPending    JobStatus = "pending"
	JobStatusUploaded   JobStatus = "uploaded"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// SupportedPieceCounts lists the piece counts a Job may be created with
var SupportedPieceCounts = []int{100, 300, 500, 1000, 2000}

// IsSupportedPieceCount reports whether n is one of SupportedPieceCounts
func IsSupportedPieceCount(n int) bool {
	for _, c := range SupportedPieceCounts {
		if c == n {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition leaves s
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Valid reports whether s is a known status
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusUploaded, JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

var transitions = map[JobStatus][]JobStatus{
	JobStatusPending:    {JobStatusUploaded},
	JobStatusUploaded:   {JobStatusUploaded, JobStatusProcessing},
	JobStatusProcessing: {JobStatusCompleted, JobStatusFailed},
}

// CanTransition reports whether the lifecycle graph has an edge from -> to.
// Re-issuing an upload target for an uploaded job is allowed.
func CanTransition(from, to JobStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Job is one image-to-pieces task, identified by (OwnerID, JobID)
type Job struct {
	OwnerID         string    `db:"owner_id" dynamodbav:"owner_id" json:"owner_id"`
	JobID           string    `db:"job_id" dynamodbav:"job_id" json:"job_id"`
	DisplayName     string    `db:"display_name" dynamodbav:"display_name" json:"display_name"`
	PieceCount      int       `db:"piece_count" dynamodbav:"piece_count" json:"piece_count"`
	FileName        string    `db:"file_name" dynamodbav:"file_name,omitempty" json:"file_name,omitempty"`
	SourceObjectKey string    `db:"source_object_key" dynamodbav:"source_object_key,omitempty" json:"source_object_key,omitempty"`
	Status          JobStatus `db:"status" dynamodbav:"status" json:"status"`
	Rows            int       `db:"grid_rows" dynamodbav:"rows,omitempty" json:"rows,omitempty"`
	Cols            int       `db:"grid_cols" dynamodbav:"cols,omitempty" json:"cols,omitempty"`
	TotalPieces     int       `db:"total_pieces" dynamodbav:"total_pieces,omitempty" json:"total_pieces,omitempty"`
	ErrorMessage    string    `db:"error_message" dynamodbav:"error_message,omitempty" json:"error_message,omitempty"`
	CreatedAt       time.Time `db:"created_at" dynamodbav:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" dynamodbav:"updated_at" json:"updated_at"`
}

// JobUpdate is a partial update of a Job record. Nil fields are left untouched.
type JobUpdate struct {
	Status          *JobStatus
	Rows            *int
	Cols            *int
	TotalPieces     *int
	ErrorMessage    *string
	FileName        *string
	SourceObjectKey *string
	UpdatedAt       time.Time
}

// Apply copies the set fields of u onto job
func (u JobUpdate) Apply(job *Job) {
	if u.Status != nil {
		job.Status = *u.Status
	}
	if u.Rows != nil {
		job.Rows = *u.Rows
	}
	if u.Cols != nil {
		job.Cols = *u.Cols
	}
	if u.TotalPieces != nil {
		job.TotalPieces = *u.TotalPieces
	}
	if u.ErrorMessage != nil {
		job.ErrorMessage = *u.ErrorMessage
	}
	if u.FileName != nil {
		job.FileName = *u.FileName
	}
	if u.SourceObjectKey != nil {
		job.SourceObjectKey = *u.SourceObjectKey
	}
	if !u.UpdatedAt.IsZero() {
		job.UpdatedAt = u.UpdatedAt
	}
}

// Ptr returns a pointer to v, for filling JobUpdate fields
func Ptr[T any](v T) *T {
	return &v
}
