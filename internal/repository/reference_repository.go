package repository

import (
	"context"
	"database/sql"

	"github.com/rs/zerolog"
)

// Exam is the slice of the exam catalogue the import pipeline needs.
type Exam struct {
	ID         string
	SubjectID  string
	SemesterID string
}

// ReferenceRepository reads the subject, semester, exam and user catalogues
// owned by the rest of the grading system.
type ReferenceRepository interface {
	SubjectExists(ctx context.Context, id string) (bool, error)
	SemesterExists(ctx context.Context, id string) (bool, error)
	GetExam(ctx context.Context, id string) (*Exam, error)
	// ResolveUser accepts a user id, username or email and returns the id.
	ResolveUser(ctx context.Context, identity string) (string, error)
}

type referenceRepository struct {
	*PostgresRepository
}

func NewReferenceRepository(db *sql.DB, logger zerolog.Logger) ReferenceRepository {
	return &referenceRepository{
		PostgresRepository: NewPostgresRepository(db, logger),
	}
}

func (r *referenceRepository) SubjectExists(ctx context.Context, id string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS(SELECT 1 FROM subjects WHERE id = $1)`, id)
}

func (r *referenceRepository) SemesterExists(ctx context.Context, id string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS(SELECT 1 FROM semesters WHERE id = $1)`, id)
}

func (r *referenceRepository) exists(ctx context.Context, query, id string) (bool, error) {
	var ok bool
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

func (r *referenceRepository) GetExam(ctx context.Context, id string) (*Exam, error) {
	exam := &Exam{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, subject_id, semester_id FROM exams WHERE id = $1`, id,
	).Scan(&exam.ID, &exam.SubjectID, &exam.SemesterID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return exam, nil
}

func (r *referenceRepository) ResolveUser(ctx context.Context, identity string) (string, error) {
	var id string
	err := r.db.QueryRowContext(ctx, `
		SELECT id FROM users
		WHERE id::text = $1 OR username = $1 OR LOWER(email) = LOWER($1)
		LIMIT 1
	`, identity).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return id, nil
}
