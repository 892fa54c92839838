package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/RubachokBoss/exam-grading/import-service/internal/models"
	"github.com/lib/pq"
	"github.com/rs/zerolog"
)

type DuplicateGroupRepository interface {
	// Create stores the group and links every member submission to it.
	Create(ctx context.Context, group *models.DuplicateGroup) error
	ListByImportJob(ctx context.Context, jobID string) ([]models.DuplicateGroup, error)
}

type duplicateGroupRepository struct {
	*PostgresRepository
}

func NewDuplicateGroupRepository(db *sql.DB, logger zerolog.Logger) DuplicateGroupRepository {
	return &duplicateGroupRepository{
		PostgresRepository: NewPostgresRepository(db, logger),
	}
}

func (r *duplicateGroupRepository) Create(ctx context.Context, group *models.DuplicateGroup) error {
	return r.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO duplicate_groups (id, exam_id, group_name, similarity_score, created_at)
			VALUES ($1, $2, $3, $4, $5)
		`, group.ID, group.ExamID, group.GroupName, group.SimilarityScore, group.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert duplicate group: %w", err)
		}

		if len(group.SubmissionIDs) == 0 {
			return nil
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE submissions SET duplicate_group_id = $1, updated_at = NOW()
			WHERE id = ANY($2)
		`, group.ID, pq.Array(group.SubmissionIDs))
		if err != nil {
			return fmt.Errorf("failed to link duplicate group members: %w", err)
		}

		return nil
	})
}

func (r *duplicateGroupRepository) ListByImportJob(ctx context.Context, jobID string) ([]models.DuplicateGroup, error) {
	query := `
		SELECT g.id, g.exam_id, g.group_name, g.similarity_score, g.created_at,
			ARRAY_AGG(s.id ORDER BY s.created_at, s.id)
		FROM duplicate_groups g
		JOIN submissions s ON s.duplicate_group_id = g.id
		WHERE s.import_job_id = $1
		GROUP BY g.id, g.exam_id, g.group_name, g.similarity_score, g.created_at
		ORDER BY g.created_at, g.id
	`

	rows, err := r.db.QueryContext(ctx, query, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []models.DuplicateGroup
	for rows.Next() {
		var (
			g       models.DuplicateGroup
			members []sql.NullString
		)
		if err := rows.Scan(&g.ID, &g.ExamID, &g.GroupName, &g.SimilarityScore, &g.CreatedAt, pq.Array(&members)); err != nil {
			return nil, err
		}
		g.SubmissionIDs = nullStrings(members)
		groups = append(groups, g)
	}

	return groups, rows.Err()
}
