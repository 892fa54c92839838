package models

import "time"

// Data Transfer Objects

type SubmitImportRequest struct {
	ArchivePath string `json:"archive_path"`
	ArchiveName string `json:"archive_name,omitempty"`
	SubjectID   string `json:"subject_id"`
	SemesterID  string `json:"semester_id"`
	ExamID      string `json:"exam_id"`
	UploadedBy  string `json:"uploaded_by"`
	// Transient archives are removed together with their working folder
	// once the job reaches a terminal state.
	Transient bool `json:"-"`
}

type SubmitImportResponse struct {
	JobID     string `json:"job_id"`
	Status    string `json:"status"`
	StatusURL string `json:"status_url"`
}

type ImportJobStatusResponse struct {
	JobID             string     `json:"job_id"`
	ArchiveName       string     `json:"archive_name"`
	ExamID            string     `json:"exam_id"`
	Status            string     `json:"status"`
	StatusDescription string     `json:"status_description"`
	CreatedAt         time.Time  `json:"created_at"`
	StartedAt         *time.Time `json:"started_at,omitempty"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	TotalFiles        int        `json:"total_files"`
	ProcessedFiles    int        `json:"processed_files"`
	SuccessCount      int        `json:"success_count"`
	FailedCount       int        `json:"failed_count"`
	ViolationsCreated int        `json:"violations_created"`
	ErrorMessage      *string    `json:"error_message,omitempty"`
	ProgressLog       []string   `json:"progress_log"`
	IsActive          bool       `json:"is_active"`
}

type ImportedSubmission struct {
	SubmissionID string    `json:"submission_id"`
	StudentCode  string    `json:"student_code"`
	FileName     string    `json:"file_name"`
	Score        *float64  `json:"score,omitempty"`
	ImportedAt   time.Time `json:"imported_at"`
}

type DuplicateGroupResult struct {
	GroupID         string               `json:"group_id"`
	GroupName       string               `json:"group_name"`
	SimilarityScore float64              `json:"similarity_score"`
	Members         []ImportedSubmission `json:"members"`
}

type ImportSummary struct {
	TotalFiles         int     `json:"total_files"`
	ProcessedFiles     int     `json:"processed_files"`
	SuccessCount       int     `json:"success_count"`
	FailedCount        int     `json:"failed_count"`
	ViolationsCreated  int     `json:"violations_created"`
	DuplicateGroups    int     `json:"duplicate_groups"`
	ProcessingDuration string  `json:"processing_duration"`
	ProcessingSeconds  float64 `json:"processing_seconds"`
}

type ImportJobResultsResponse struct {
	JobID           string                 `json:"job_id"`
	Imported        []ImportedSubmission   `json:"imported"`
	DuplicateGroups []DuplicateGroupResult `json:"duplicate_groups"`
	Violations      []Violation            `json:"violations"`
	Summary         ImportSummary          `json:"summary"`
}

type PlagiarismMatch struct {
	SubmissionID     string  `json:"submission_id"`
	StudentCode      string  `json:"student_code"`
	Similarity       float64 `json:"similarity"`
	SourceFileName   string  `json:"source_file_name"`
	MatchedFileName  string  `json:"matched_file_name"`
	ViolationCreated bool    `json:"violation_created"`
	ZeroScore        bool    `json:"zero_score"`
}

type PlagiarismCheckResponse struct {
	SubmissionID  string            `json:"submission_id"`
	ComparedWith  int               `json:"compared_with"`
	HighestMatch  float64           `json:"highest_match"`
	Matches       []PlagiarismMatch `json:"matches"`
	ViolationsNew int               `json:"violations_created"`
	CheckedAt     time.Time         `json:"checked_at"`
}

type ListImportJobsResponse struct {
	Jobs   []ImportJobStatusResponse `json:"jobs"`
	Total  int                       `json:"total"`
	Limit  int                       `json:"limit"`
	Offset int                       `json:"offset"`
}

type HealthCheckResponse struct {
	Status        string    `json:"status"`
	Database      bool      `json:"database"`
	RabbitMQ      bool      `json:"rabbitmq"`
	Storage       string    `json:"storage"`
	ActiveJobs    int       `json:"active_jobs"`
	ActiveWorkers int       `json:"active_workers"`
	QueueLength   int       `json:"queue_length"`
	Uptime        string    `json:"uptime"`
	Timestamp     time.Time `json:"timestamp"`
}
