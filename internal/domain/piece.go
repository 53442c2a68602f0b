package domain

import (
	"fmt"
	"time"
)

// Piece is one cropped sub-image of a Job's source image
type Piece struct {
	OwnerID    string    `db:"owner_id" dynamodbav:"owner_id" json:"owner_id"`
	JobID      string    `db:"job_id" dynamodbav:"job_id" json:"job_id"`
	PieceID    string    `db:"piece_id" dynamodbav:"piece_id" json:"piece_id"`
	Row        int       `db:"grid_row" dynamodbav:"row" json:"row"`
	Col        int       `db:"grid_col" dynamodbav:"col" json:"col"`
	CorrectRow int       `db:"correct_row" dynamodbav:"correct_row" json:"correct_row"`
	CorrectCol int       `db:"correct_col" dynamodbav:"correct_col" json:"correct_col"`
	ObjectKey  string    `db:"object_key" dynamodbav:"object_key" json:"object_key"`
	Width      int       `db:"width" dynamodbav:"width" json:"width"`
	Height     int       `db:"height" dynamodbav:"height" json:"height"`
	CreatedAt  time.Time `db:"created_at" dynamodbav:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" dynamodbav:"updated_at" json:"updated_at"`
}

// PieceObjectKey returns the object store location of a piece image
func PieceObjectKey(jobID, pieceID string) string {
	return fmt.Sprintf("pieces/%s/%s.jpg", jobID, pieceID)
}

// SourceObjectKey returns the object store location of a job's uploaded image
func SourceObjectKey(jobID, ext string) string {
	return fmt.Sprintf("puzzles/%s.%s", jobID, ext)
}
