package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog"
)

// ErrDuplicateSubmission is returned when the (exam_id, student_code) unique
// constraint rejects an insert.
var ErrDuplicateSubmission = errors.New("submission already exists for this student and exam")

// ErrJobFinished is returned by ImportJobRepository.Update when the stored
// job is already completed or failed (or gone), so the write was dropped.
var ErrJobFinished = errors.New("import job is already finished")

const uniqueViolation = "23505"

type rowScanner interface {
	Scan(dest ...interface{}) error
}

type PostgresRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewPostgresRepository(db *sql.DB, logger zerolog.Logger) *PostgresRepository {
	return &PostgresRepository{
		db:     db,
		logger: logger,
	}
}

// WithTx runs fn inside a transaction and commits when fn returns nil.
func (r *PostgresRepository) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit()
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return r.db.PingContext(ctx)
}

func (r *PostgresRepository) Close() error {
	return r.db.Close()
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func nullStrings(in []sql.NullString) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s.Valid {
			out = append(out, s.String)
		}
	}
	return out
}
