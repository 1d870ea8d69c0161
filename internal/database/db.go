// Package database implements the core store on PostgreSQL using pgx.
//
// Every core transaction maps to one pgx transaction started with
// pgx.BeginTxFunc at READ COMMITTED. Submission sequence numbers are computed
// inside the INSERT that creates the submission, after the form row has been
// locked, so writers to the same form serialize while writers to different
// forms do not contend.
package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/JonMunkholm/formsvc/internal/core"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX is the subset of pgx used by the queries.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	SendBatch(context.Context, *pgx.Batch) pgx.BatchResults
}

// Store is the PostgreSQL implementation of core.Store.
type Store struct {
	pool *pgxpool.Pool
}

var _ core.Store = (*Store)(nil)

// New wraps an open pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Pool exposes the underlying pool for migrations and health checks.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// InTx runs fn in a transaction, committing when fn returns nil.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx core.Tx) error) error {
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(ctx, &queries{db: tx})
	})
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const streamSubmissionsSQL = `
SELECT s.id, s.form_id, s.form_version_id, s.submission_seq, s.created_at, a.field_key, a.value
FROM submissions s
LEFT JOIN answers a ON a.submission_id = s.id
WHERE s.form_id = $1
ORDER BY s.created_at, s.id, a.field_key`

// StreamSubmissions reads a form's submissions in (created_at, id) order
// with a single query and hands them to fn one submission at a time.
func (s *Store) StreamSubmissions(ctx context.Context, formID int64, fn func(core.ExportRecord) error) error {
	rows, err := s.pool.Query(ctx, streamSubmissionsSQL, formID)
	if err != nil {
		return fmt.Errorf("stream submissions: %w", err)
	}
	defer rows.Close()

	var (
		cur     *core.ExportRecord
		key     pgtype.Text
		value   pgtype.Text
		scanned core.Submission
	)
	for rows.Next() {
		if err := rows.Scan(&scanned.ID, &scanned.FormID, &scanned.FormVersionID, &scanned.Seq, &scanned.CreatedAt, &key, &value); err != nil {
			return fmt.Errorf("scan submission: %w", err)
		}
		if cur != nil && cur.Submission.ID != scanned.ID {
			if err := fn(*cur); err != nil {
				return err
			}
			cur = nil
		}
		if cur == nil {
			cur = &core.ExportRecord{Submission: scanned, Answers: make(map[string]string)}
		}
		if key.Valid {
			cur.Answers[key.String] = value.String
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("stream submissions: %w", err)
	}
	if cur != nil {
		return fn(*cur)
	}
	return nil
}

// uniqueViolation reports whether err is a unique violation on constraint.
func uniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23505" && pgErr.ConstraintName == constraint
}

// notFound converts pgx.ErrNoRows into a core NotFound error.
func notFound(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return core.NotFoundf("%s not found", what)
	}
	return err
}
