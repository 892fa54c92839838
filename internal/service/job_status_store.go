package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/RubachokBoss/exam-grading/import-service/internal/models"
	"github.com/RubachokBoss/exam-grading/import-service/internal/repository"
	"github.com/RubachokBoss/exam-grading/import-service/pkg/utils"
	"github.com/rs/zerolog"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// JobStatusStore answers status, results and cancel requests by merging the
// persisted job row with the live progress kept in the registry.
type JobStatusStore interface {
	GetStatus(ctx context.Context, jobID string) (*models.ImportJobStatusResponse, error)
	GetResults(ctx context.Context, jobID string) (*models.ImportJobResultsResponse, error)
	Cancel(ctx context.Context, jobID string) error
	List(ctx context.Context, examID string, limit, offset int) (*models.ListImportJobsResponse, error)
}

type jobStatusStore struct {
	repos    Repositories
	registry *JobRegistry
	logger   zerolog.Logger
}

func NewJobStatusStore(repos Repositories, registry *JobRegistry, logger zerolog.Logger) JobStatusStore {
	return &jobStatusStore{
		repos:    repos,
		registry: registry,
		logger:   logger,
	}
}

func (s *jobStatusStore) load(ctx context.Context, jobID string) (*models.ImportJob, error) {
	if !utils.ValidateUUID(jobID) {
		return nil, notFoundError("import job %s not found", jobID)
	}
	job, err := s.repos.Jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, internalError("failed to load import job", err)
	}
	if job == nil {
		return nil, notFoundError("import job %s not found", jobID)
	}
	return job, nil
}

func (s *jobStatusStore) GetStatus(ctx context.Context, jobID string) (*models.ImportJobStatusResponse, error) {
	job, err := s.load(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return s.statusOf(job), nil
}

func (s *jobStatusStore) statusOf(job *models.ImportJob) *models.ImportJobStatusResponse {
	resp := &models.ImportJobStatusResponse{
		JobID:             job.ID,
		ArchiveName:       job.ArchiveName,
		ExamID:            job.ExamID,
		Status:            job.Status,
		StatusDescription: models.ImportJobStatus(job.Status).Description(),
		CreatedAt:         job.CreatedAt,
		StartedAt:         job.StartedAt,
		CompletedAt:       job.CompletedAt,
		TotalFiles:        job.TotalFiles,
		ProcessedFiles:    job.ProcessedFiles,
		SuccessCount:      job.SuccessCount,
		FailedCount:       job.FailedCount,
		ViolationsCreated: job.ViolationsCreated,
		ErrorMessage:      job.ErrorMessage,
		ProgressLog:       []string{},
	}

	if t, ok := s.registry.get(job.ID); ok {
		resp.ProgressLog = t.Progress()
		resp.IsActive = true
	}
	return resp
}

func (s *jobStatusStore) GetResults(ctx context.Context, jobID string) (*models.ImportJobResultsResponse, error) {
	job, err := s.load(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != models.ImportJobStatusCompleted.String() {
		return nil, invalidOperationError("import job %s is %s, results are available once it completes", jobID, job.Status)
	}

	submissions, err := s.repos.Submissions.ListByImportJob(ctx, jobID)
	if err != nil {
		return nil, internalError("failed to load imported submissions", err)
	}
	groups, err := s.repos.Groups.ListByImportJob(ctx, jobID)
	if err != nil {
		return nil, internalError("failed to load duplicate groups", err)
	}
	violations, err := s.repos.Violations.ListByImportJob(ctx, jobID)
	if err != nil {
		return nil, internalError("failed to load violations", err)
	}

	imported := make([]models.ImportedSubmission, 0, len(submissions))
	byID := make(map[string]models.ImportedSubmission, len(submissions))
	for _, sub := range submissions {
		item := models.ImportedSubmission{
			SubmissionID: sub.ID,
			StudentCode:  sub.StudentCode,
			FileName:     sub.OriginalFileName,
			Score:        sub.Score,
			ImportedAt:   sub.CreatedAt,
		}
		imported = append(imported, item)
		byID[sub.ID] = item
	}

	groupResults := make([]models.DuplicateGroupResult, 0, len(groups))
	for _, g := range groups {
		members := make([]models.ImportedSubmission, 0, len(g.SubmissionIDs))
		for _, id := range g.SubmissionIDs {
			if m, ok := byID[id]; ok {
				members = append(members, m)
			} else {
				members = append(members, models.ImportedSubmission{SubmissionID: id})
			}
		}
		groupResults = append(groupResults, models.DuplicateGroupResult{
			GroupID:         g.ID,
			GroupName:       g.GroupName,
			SimilarityScore: g.SimilarityScore,
			Members:         members,
		})
	}

	if violations == nil {
		violations = []models.Violation{}
	}

	var duration time.Duration
	if job.StartedAt != nil && job.CompletedAt != nil {
		duration = job.CompletedAt.Sub(*job.StartedAt)
	}

	return &models.ImportJobResultsResponse{
		JobID:           job.ID,
		Imported:        imported,
		DuplicateGroups: groupResults,
		Violations:      violations,
		Summary: models.ImportSummary{
			TotalFiles:         job.TotalFiles,
			ProcessedFiles:     job.ProcessedFiles,
			SuccessCount:       job.SuccessCount,
			FailedCount:        job.FailedCount,
			ViolationsCreated:  job.ViolationsCreated,
			DuplicateGroups:    len(groupResults),
			ProcessingDuration: duration.Round(time.Millisecond).String(),
			ProcessingSeconds:  duration.Seconds(),
		},
	}, nil
}

func (s *jobStatusStore) Cancel(ctx context.Context, jobID string) error {
	job, err := s.load(ctx, jobID)
	if err != nil {
		return err
	}
	return s.cancelLoaded(ctx, job)
}

func (s *jobStatusStore) cancelLoaded(ctx context.Context, job *models.ImportJob) error {
	jobID := job.ID
	if models.ImportJobStatus(job.Status).IsTerminal() {
		return invalidOperationError("import job %s is already %s", jobID, job.Status)
	}

	if t, ok := s.registry.get(jobID); ok {
		if !t.RequestCancel() {
			return invalidOperationError("import job %s is already completing", jobID)
		}
		t.Log("Cancellation requested")
		s.logger.Info().Str("job_id", jobID).Msg("Import job cancellation requested")
		return nil
	}

	// No task in this process runs the job. If another process does, its next
	// update finds the job failed and stops.
	msg := msgCancelled
	now := time.Now()
	job.Status = models.ImportJobStatusFailed.String()
	job.ErrorMessage = &msg
	job.CompletedAt = &now
	job.UpdatedAt = now
	if err := s.repos.Jobs.Update(ctx, job); err != nil {
		if errors.Is(err, repository.ErrJobFinished) {
			return invalidOperationError("import job %s is already finished", jobID)
		}
		return internalError("failed to cancel import job", err)
	}

	s.logger.Info().Str("job_id", jobID).Msg("Orphaned import job cancelled")
	return nil
}

func (s *jobStatusStore) List(ctx context.Context, examID string, limit, offset int) (*models.ListImportJobsResponse, error) {
	if examID == "" {
		return nil, validationError("exam_id is required")
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	jobs, total, err := s.repos.Jobs.ListByExam(ctx, examID, limit, offset)
	if err != nil {
		return nil, internalError(fmt.Sprintf("failed to list import jobs for exam %s", examID), err)
	}

	resp := &models.ListImportJobsResponse{
		Jobs:   make([]models.ImportJobStatusResponse, 0, len(jobs)),
		Total:  total,
		Limit:  limit,
		Offset: offset,
	}
	for i := range jobs {
		resp.Jobs = append(resp.Jobs, *s.statusOf(&jobs[i]))
	}
	return resp, nil
}
