package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/RubachokBoss/exam-grading/import-service/internal/metrics"
	"github.com/RubachokBoss/exam-grading/import-service/internal/models"
	"github.com/RubachokBoss/exam-grading/import-service/internal/repository"
	"github.com/RubachokBoss/exam-grading/import-service/internal/service/analyzer"
	"github.com/RubachokBoss/exam-grading/import-service/pkg/utils"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type PlagiarismService interface {
	// CheckSubmission compares one submission with every other submission
	// of the same exam and records a violation for each pair at or above
	// the duplicate threshold.
	CheckSubmission(ctx context.Context, submissionID string) (*models.PlagiarismCheckResponse, error)
}

type plagiarismService struct {
	submissions repository.SubmissionRepository
	violations  repository.ViolationRepository
	scorer      analyzer.SimilarityScorer
	metrics     *metrics.Metrics
	logger      zerolog.Logger
	thresholds  analyzer.Thresholds
	systemUser  string
}

func NewPlagiarismService(
	submissions repository.SubmissionRepository,
	violations repository.ViolationRepository,
	scorer analyzer.SimilarityScorer,
	m *metrics.Metrics,
	logger zerolog.Logger,
	thresholds analyzer.Thresholds,
	systemUser string,
) PlagiarismService {
	if systemUser == "" {
		systemUser = "system"
	}
	return &plagiarismService{
		submissions: submissions,
		violations:  violations,
		scorer:      scorer,
		metrics:     m,
		logger:      logger,
		thresholds:  thresholds,
		systemUser:  systemUser,
	}
}

func (s *plagiarismService) CheckSubmission(ctx context.Context, submissionID string) (*models.PlagiarismCheckResponse, error) {
	if !utils.ValidateUUID(submissionID) {
		return nil, notFoundError("submission %s not found", submissionID)
	}

	sub, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		return nil, internalError("failed to load submission", err)
	}
	if sub == nil {
		return nil, notFoundError("submission %s not found", submissionID)
	}

	others, err := s.submissions.ListByExam(ctx, sub.ExamID)
	if err != nil {
		return nil, internalError("failed to load exam submissions", err)
	}

	s.metrics.PlagiarismChecks.Inc()

	resp := &models.PlagiarismCheckResponse{
		SubmissionID: sub.ID,
		Matches:      []models.PlagiarismMatch{},
		CheckedAt:    time.Now(),
	}

	// Submissions without extracted text have nothing to compare. Scoring
	// them would turn two empty texts into a perfect match.
	if sub.Text() == "" {
		return resp, nil
	}
	sections := analyzer.SplitSections(sub.Text(), sub.OriginalFileName)

	for i := range others {
		other := &others[i]
		if other.ID == sub.ID || other.Text() == "" {
			continue
		}
		resp.ComparedWith++

		pair := s.scorer.BestPair(sections, analyzer.SplitSections(other.Text(), other.OriginalFileName))
		if pair.Score > resp.HighestMatch {
			resp.HighestMatch = pair.Score
		}

		flagged, zero := s.thresholds.Classify(pair.Score)
		if !flagged {
			continue
		}

		match := models.PlagiarismMatch{
			SubmissionID:    other.ID,
			StudentCode:     other.StudentCode,
			Similarity:      pair.Score,
			SourceFileName:  pair.FileA,
			MatchedFileName: pair.FileB,
			ZeroScore:       zero,
		}

		if err := s.recordViolation(ctx, sub, other, pair, zero); err != nil {
			s.logger.Error().Err(err).
				Str("submission_id", sub.ID).
				Str("other_submission_id", other.ID).
				Msg("Failed to save plagiarism violation")
		} else {
			match.ViolationCreated = true
			resp.ViolationsNew++
		}

		resp.Matches = append(resp.Matches, match)
	}

	sort.SliceStable(resp.Matches, func(i, j int) bool {
		return resp.Matches[i].Similarity > resp.Matches[j].Similarity
	})

	s.logger.Info().
		Str("submission_id", sub.ID).
		Str("exam_id", sub.ExamID).
		Int("compared_with", resp.ComparedWith).
		Int("matches", len(resp.Matches)).
		Float64("highest_match", resp.HighestMatch).
		Msg("Plagiarism check completed")

	return resp, nil
}

func (s *plagiarismService) recordViolation(ctx context.Context, sub, other *models.Submission, pair analyzer.PairMatch, zero bool) error {
	severity := models.SeverityHigh
	if zero {
		severity = models.SeverityCritical
	}

	subID := sub.ID
	v := &models.Violation{
		ID:           uuid.New().String(),
		SubmissionID: &subID,
		ExamID:       sub.ExamID,
		ImportJobID:  sub.ImportJobID,
		Type:         models.ViolationTypePlagiarism.String(),
		Severity:     severity.String(),
		Description: fmt.Sprintf("%.0f%% similar to submission of %s (%s vs %s)",
			pair.Score*100, other.StudentCode, pair.FileA, pair.FileB),
		Evidence:     []string{other.ID, pair.FileA, pair.FileB},
		Confidence:   pair.Score,
		ZeroScore:    zero,
		CreatedBy:    s.systemUser,
		ReviewStatus: models.ReviewStatusNew.String(),
		CreatedAt:    time.Now(),
	}

	if err := s.violations.Create(ctx, v); err != nil {
		return err
	}
	s.metrics.ViolationsCreated.WithLabelValues(v.Type).Inc()
	return nil
}
