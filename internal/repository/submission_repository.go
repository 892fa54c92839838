package repository

import (
	"context"
	"database/sql"

	"github.com/RubachokBoss/exam-grading/import-service/internal/models"
	"github.com/rs/zerolog"
)

type SubmissionRepository interface {
	// Create returns ErrDuplicateSubmission when the exam already holds a
	// submission for the same student code.
	Create(ctx context.Context, submission *models.Submission) error
	GetByID(ctx context.Context, id string) (*models.Submission, error)
	GetByExamAndStudent(ctx context.Context, examID, studentCode string) (*models.Submission, error)
	ListByExam(ctx context.Context, examID string) ([]models.Submission, error)
	ListByImportJob(ctx context.Context, jobID string) ([]models.Submission, error)
}

type submissionRepository struct {
	*PostgresRepository
}

func NewSubmissionRepository(db *sql.DB, logger zerolog.Logger) SubmissionRepository {
	return &submissionRepository{
		PostgresRepository: NewPostgresRepository(db, logger),
	}
}

const submissionColumns = `
	id, exam_id, student_code, original_file_name, storage_key, file_size,
	extracted_text, content_hash, import_job_id, duplicate_group_id, score,
	created_at, updated_at`

func (r *submissionRepository) Create(ctx context.Context, s *models.Submission) error {
	query := `
		INSERT INTO submissions (` + submissionColumns + `
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13
		)
	`

	_, err := r.db.ExecContext(ctx, query,
		s.ID,
		s.ExamID,
		s.StudentCode,
		s.OriginalFileName,
		s.StorageKey,
		s.FileSize,
		s.ExtractedText,
		s.ContentHash,
		s.ImportJobID,
		s.DuplicateGroupID,
		s.Score,
		s.CreatedAt,
		s.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicateSubmission
	}

	return err
}

func (r *submissionRepository) GetByID(ctx context.Context, id string) (*models.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions WHERE id = $1`

	s, err := scanSubmission(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return s, nil
}

func (r *submissionRepository) GetByExamAndStudent(ctx context.Context, examID, studentCode string) (*models.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions WHERE exam_id = $1 AND student_code = $2`

	s, err := scanSubmission(r.db.QueryRowContext(ctx, query, examID, studentCode))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return s, nil
}

func (r *submissionRepository) ListByExam(ctx context.Context, examID string) ([]models.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions WHERE exam_id = $1 ORDER BY created_at, id`
	return r.list(ctx, query, examID)
}

func (r *submissionRepository) ListByImportJob(ctx context.Context, jobID string) ([]models.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions WHERE import_job_id = $1 ORDER BY created_at, id`
	return r.list(ctx, query, jobID)
}

func (r *submissionRepository) list(ctx context.Context, query string, arg string) ([]models.Submission, error) {
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var submissions []models.Submission
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		submissions = append(submissions, *s)
	}

	return submissions, rows.Err()
}

func scanSubmission(row rowScanner) (*models.Submission, error) {
	s := &models.Submission{}
	var storageKey sql.NullString

	err := row.Scan(
		&s.ID,
		&s.ExamID,
		&s.StudentCode,
		&s.OriginalFileName,
		&storageKey,
		&s.FileSize,
		&s.ExtractedText,
		&s.ContentHash,
		&s.ImportJobID,
		&s.DuplicateGroupID,
		&s.Score,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	s.StorageKey = storageKey.String
	return s, nil
}
