package models

import (
	"time"
)

type ImportRequestedEvent struct {
	ArchivePath string `json:"archive_path"`
	ArchiveName string `json:"archive_name,omitempty"`
	SubjectID   string `json:"subject_id"`
	SemesterID  string `json:"semester_id"`
	ExamID      string `json:"exam_id"`
	UploadedBy  string `json:"uploaded_by"`
	Timestamp   int64  `json:"timestamp"`
}

type ImportJobFinishedEvent struct {
	JobID             string    `json:"job_id"`
	ExamID            string    `json:"exam_id"`
	Status            string    `json:"status"`
	TotalFiles        int       `json:"total_files"`
	SuccessCount      int       `json:"success_count"`
	FailedCount       int       `json:"failed_count"`
	ViolationsCreated int       `json:"violations_created"`
	ErrorMessage      *string   `json:"error_message,omitempty"`
	CompletedAt       time.Time `json:"completed_at"`
}
