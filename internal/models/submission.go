package models

import (
	"time"
)

type Submission struct {
	ID               string    `json:"id" db:"id"`
	ExamID           string    `json:"exam_id" db:"exam_id"`
	StudentCode      string    `json:"student_code" db:"student_code"`
	OriginalFileName string    `json:"original_file_name" db:"original_file_name"`
	StorageKey       string    `json:"storage_key,omitempty" db:"storage_key"`
	FileSize         int64     `json:"file_size" db:"file_size"`
	ExtractedText    *string   `json:"-" db:"extracted_text"`
	ContentHash      *string   `json:"content_hash,omitempty" db:"content_hash"`
	ImportJobID      *string   `json:"import_job_id,omitempty" db:"import_job_id"`
	DuplicateGroupID *string   `json:"duplicate_group_id,omitempty" db:"duplicate_group_id"`
	Score            *float64  `json:"score,omitempty" db:"score"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time `json:"updated_at" db:"updated_at"`
}

// Text returns the extracted text or an empty string.
func (s *Submission) Text() string {
	if s.ExtractedText == nil {
		return ""
	}
	return *s.ExtractedText
}

type DuplicateGroup struct {
	ID              string    `json:"id" db:"id"`
	ExamID          string    `json:"exam_id" db:"exam_id"`
	GroupName       string    `json:"group_name" db:"group_name"`
	SimilarityScore float64   `json:"similarity_score" db:"similarity_score"`
	SubmissionIDs   []string  `json:"submission_ids" db:"-"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}
