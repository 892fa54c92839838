package models

import (
	"time"
)

type Violation struct {
	ID           string    `json:"id" db:"id"`
	SubmissionID *string   `json:"submission_id,omitempty" db:"submission_id"`
	ExamID       string    `json:"exam_id" db:"exam_id"`
	ImportJobID  *string   `json:"import_job_id,omitempty" db:"import_job_id"`
	Type         string    `json:"type" db:"type"`
	Severity     string    `json:"severity" db:"severity"`
	Description  string    `json:"description" db:"description"`
	Evidence     []string  `json:"evidence,omitempty" db:"evidence"`
	Confidence   float64   `json:"confidence" db:"confidence"`
	ZeroScore    bool      `json:"zero_score" db:"zero_score"`
	CreatedBy    string    `json:"created_by" db:"created_by"`
	ReviewStatus string    `json:"review_status" db:"review_status"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

type ViolationType string

const (
	ViolationTypeFilename           ViolationType = "FilenameViolation"
	ViolationTypeDuplicate          ViolationType = "Duplicate"
	ViolationTypePlagiarism         ViolationType = "Plagiarism"
	ViolationTypeInvalidFormat      ViolationType = "InvalidFormat"
	ViolationTypeForbiddenConstruct ViolationType = "ForbiddenConstruct"
	ViolationTypeMissingFunction    ViolationType = "MissingFunction"
	ViolationTypeTemplateLeftover   ViolationType = "TemplateLeftover"
	ViolationTypeUnlockMarker       ViolationType = "UnlockMarker"
)

func (t ViolationType) String() string {
	return string(t)
}

type Severity string

const (
	SeverityLow      Severity = "Low"
	SeverityMedium   Severity = "Medium"
	SeverityHigh     Severity = "High"
	SeverityCritical Severity = "Critical"
)

func (s Severity) String() string {
	return string(s)
}

type ReviewStatus string

const (
	ReviewStatusNew       ReviewStatus = "New"
	ReviewStatusConfirmed ReviewStatus = "Confirmed"
	ReviewStatusDismissed ReviewStatus = "Dismissed"
)

func (s ReviewStatus) String() string {
	return string(s)
}
