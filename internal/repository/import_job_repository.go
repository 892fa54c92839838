package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/RubachokBoss/exam-grading/import-service/internal/models"
	"github.com/rs/zerolog"
)

type ImportJobRepository interface {
	Create(ctx context.Context, job *models.ImportJob) error
	GetByID(ctx context.Context, id string) (*models.ImportJob, error)
	// Update returns ErrJobFinished instead of overwriting a terminal job.
	Update(ctx context.Context, job *models.ImportJob) error
	ListByExam(ctx context.Context, examID string, limit, offset int) ([]models.ImportJob, int, error)
	// FailUnfinished marks the pending or running jobs of owner failed with
	// message and returns how many rows changed.
	FailUnfinished(ctx context.Context, owner, message string) (int64, error)
	Ping(ctx context.Context) error
}

type importJobRepository struct {
	*PostgresRepository
}

func NewImportJobRepository(db *sql.DB, logger zerolog.Logger) ImportJobRepository {
	return &importJobRepository{
		PostgresRepository: NewPostgresRepository(db, logger),
	}
}

const importJobColumns = `
	id, archive_name, archive_path, subject_id, semester_id, exam_id, uploaded_by,
	status, total_files, processed_files, success_count, failed_count,
	violations_created, error_message, storage_folder_path, is_transient,
	owner, created_at, started_at, completed_at, updated_at`

func (r *importJobRepository) Create(ctx context.Context, job *models.ImportJob) error {
	query := `
		INSERT INTO import_jobs (` + importJobColumns + `
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21
		)
	`

	res, err := r.db.ExecContext(ctx, query,
		job.ID,
		job.ArchiveName,
		job.ArchivePath,
		job.SubjectID,
		job.SemesterID,
		job.ExamID,
		job.UploadedBy,
		job.Status,
		job.TotalFiles,
		job.ProcessedFiles,
		job.SuccessCount,
		job.FailedCount,
		job.ViolationsCreated,
		job.ErrorMessage,
		job.StorageFolderPath,
		job.IsTransient,
		job.Owner,
		job.CreatedAt,
		job.StartedAt,
		job.CompletedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrJobFinished
	}
	return nil
}

func (r *importJobRepository) GetByID(ctx context.Context, id string) (*models.ImportJob, error) {
	query := `SELECT ` + importJobColumns + ` FROM import_jobs WHERE id = $1`

	job, err := scanImportJob(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return job, nil
}

func (r *importJobRepository) Update(ctx context.Context, job *models.ImportJob) error {
	query := `
		UPDATE import_jobs SET
			status = $2,
			total_files = $3,
			processed_files = $4,
			success_count = $5,
			failed_count = $6,
			violations_created = $7,
			error_message = $8,
			storage_folder_path = $9,
			started_at = $10,
			completed_at = $11,
			updated_at = $12
		WHERE id = $1 AND status NOT IN ('completed', 'failed')
	`

	res, err := r.db.ExecContext(ctx, query,
		job.ID,
		job.Status,
		job.TotalFiles,
		job.ProcessedFiles,
		job.SuccessCount,
		job.FailedCount,
		job.ViolationsCreated,
		job.ErrorMessage,
		job.StorageFolderPath,
		job.StartedAt,
		job.CompletedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrJobFinished
	}
	return nil
}

func (r *importJobRepository) ListByExam(ctx context.Context, examID string, limit, offset int) ([]models.ImportJob, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM import_jobs WHERE exam_id = $1`, examID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT ` + importJobColumns + `
		FROM import_jobs
		WHERE exam_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.QueryContext(ctx, query, examID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var jobs []models.ImportJob
	for rows.Next() {
		job, err := scanImportJob(rows)
		if err != nil {
			return nil, 0, err
		}
		jobs = append(jobs, *job)
	}

	return jobs, total, rows.Err()
}

func (r *importJobRepository) FailUnfinished(ctx context.Context, owner, message string) (int64, error) {
	query := `
		UPDATE import_jobs SET
			status = 'failed',
			error_message = $1,
			completed_at = NOW(),
			updated_at = NOW()
		WHERE status IN ('pending', 'running') AND owner = $2
	`

	res, err := r.db.ExecContext(ctx, query, message, owner)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanImportJob(row rowScanner) (*models.ImportJob, error) {
	job := &models.ImportJob{}
	var folder sql.NullString

	err := row.Scan(
		&job.ID,
		&job.ArchiveName,
		&job.ArchivePath,
		&job.SubjectID,
		&job.SemesterID,
		&job.ExamID,
		&job.UploadedBy,
		&job.Status,
		&job.TotalFiles,
		&job.ProcessedFiles,
		&job.SuccessCount,
		&job.FailedCount,
		&job.ViolationsCreated,
		&job.ErrorMessage,
		&folder,
		&job.IsTransient,
		&job.Owner,
		&job.CreatedAt,
		&job.StartedAt,
		&job.CompletedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	job.StorageFolderPath = folder.String
	return job, nil
}
