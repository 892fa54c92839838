package repository

import (
	"context"
	"database/sql"

	"github.com/RubachokBoss/exam-grading/import-service/internal/models"
	"github.com/lib/pq"
	"github.com/rs/zerolog"
)

type ViolationRepository interface {
	Create(ctx context.Context, violation *models.Violation) error
	ListByImportJob(ctx context.Context, jobID string) ([]models.Violation, error)
	ListBySubmission(ctx context.Context, submissionID string) ([]models.Violation, error)
}

type violationRepository struct {
	*PostgresRepository
}

func NewViolationRepository(db *sql.DB, logger zerolog.Logger) ViolationRepository {
	return &violationRepository{
		PostgresRepository: NewPostgresRepository(db, logger),
	}
}

const violationColumns = `
	id, submission_id, exam_id, import_job_id, type, severity, description,
	evidence, confidence, zero_score, created_by, review_status, created_at`

func (r *violationRepository) Create(ctx context.Context, v *models.Violation) error {
	query := `
		INSERT INTO violations (` + violationColumns + `
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13
		)
	`

	_, err := r.db.ExecContext(ctx, query,
		v.ID,
		v.SubmissionID,
		v.ExamID,
		v.ImportJobID,
		v.Type,
		v.Severity,
		v.Description,
		pq.Array(v.Evidence),
		v.Confidence,
		v.ZeroScore,
		v.CreatedBy,
		v.ReviewStatus,
		v.CreatedAt,
	)

	return err
}

func (r *violationRepository) ListByImportJob(ctx context.Context, jobID string) ([]models.Violation, error) {
	query := `SELECT ` + violationColumns + ` FROM violations WHERE import_job_id = $1 ORDER BY created_at, id`
	return r.list(ctx, query, jobID)
}

func (r *violationRepository) ListBySubmission(ctx context.Context, submissionID string) ([]models.Violation, error) {
	query := `SELECT ` + violationColumns + ` FROM violations WHERE submission_id = $1 ORDER BY created_at, id`
	return r.list(ctx, query, submissionID)
}

func (r *violationRepository) list(ctx context.Context, query, arg string) ([]models.Violation, error) {
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var violations []models.Violation
	for rows.Next() {
		var (
			v        models.Violation
			evidence []sql.NullString
		)

		err := rows.Scan(
			&v.ID,
			&v.SubmissionID,
			&v.ExamID,
			&v.ImportJobID,
			&v.Type,
			&v.Severity,
			&v.Description,
			pq.Array(&evidence),
			&v.Confidence,
			&v.ZeroScore,
			&v.CreatedBy,
			&v.ReviewStatus,
			&v.CreatedAt,
		)
		if err != nil {
			return nil, err
		}

		v.Evidence = nullStrings(evidence)
		violations = append(violations, v)
	}

	return violations, rows.Err()
}
