package models

import (
	"time"
)

type ImportJob struct {
	ID                string     `json:"id" db:"id"`
	ArchiveName       string     `json:"archive_name" db:"archive_name"`
	ArchivePath       string     `json:"-" db:"archive_path"`
	SubjectID         string     `json:"subject_id" db:"subject_id"`
	SemesterID        string     `json:"semester_id" db:"semester_id"`
	ExamID            string     `json:"exam_id" db:"exam_id"`
	UploadedBy        string     `json:"uploaded_by" db:"uploaded_by"`
	Status            string     `json:"status" db:"status"`
	TotalFiles        int        `json:"total_files" db:"total_files"`
	ProcessedFiles    int        `json:"processed_files" db:"processed_files"`
	SuccessCount      int        `json:"success_count" db:"success_count"`
	FailedCount       int        `json:"failed_count" db:"failed_count"`
	ViolationsCreated int        `json:"violations_created" db:"violations_created"`
	ErrorMessage      *string    `json:"error_message,omitempty" db:"error_message"`
	StorageFolderPath string     `json:"storage_folder_path,omitempty" db:"storage_folder_path"`
	IsTransient       bool       `json:"is_transient" db:"is_transient"`
	Owner             string     `json:"-" db:"owner"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
	StartedAt         *time.Time `json:"started_at,omitempty" db:"started_at"`
	CompletedAt       *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	UpdatedAt         time.Time  `json:"updated_at" db:"updated_at"`
}

type ImportJobStatus string

const (
	ImportJobStatusPending   ImportJobStatus = "pending"
	ImportJobStatusRunning   ImportJobStatus = "running"
	ImportJobStatusCompleted ImportJobStatus = "completed"
	ImportJobStatusFailed    ImportJobStatus = "failed"
)

func (s ImportJobStatus) String() string {
	return string(s)
}

// IsTerminal reports whether no further transition is allowed.
func (s ImportJobStatus) IsTerminal() bool {
	return s == ImportJobStatusCompleted || s == ImportJobStatusFailed
}

// Description is the human readable form shown in status queries.
func (s ImportJobStatus) Description() string {
	switch s {
	case ImportJobStatusPending:
		return "Waiting to be processed"
	case ImportJobStatusRunning:
		return "Processing archive"
	case ImportJobStatusCompleted:
		return "Import completed"
	case ImportJobStatusFailed:
		return "Import failed"
	default:
		return "Unknown status"
	}
}

func IsValidImportJobStatus(status string) bool {
	switch ImportJobStatus(status) {
	case ImportJobStatusPending, ImportJobStatusRunning, ImportJobStatusCompleted, ImportJobStatusFailed:
		return true
	default:
		return false
	}
}

// ExtractedFileInfo describes one file written by the archive extractor.
// It is never persisted.
type ExtractedFileInfo struct {
	FileName     string `json:"file_name"`
	FullPath     string `json:"full_path"`
	RelativePath string `json:"relative_path"`
	Size         int64  `json:"size"`
	FolderName   string `json:"folder_name"`
}
