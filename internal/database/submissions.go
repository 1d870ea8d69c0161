package database

import (
	"context"
	"fmt"

	"github.com/JonMunkholm/formsvc/internal/core"
	"github.com/jackc/pgx/v5"
)

// lockFormSQL serializes submitters of one form for the rest of the
// transaction. Other forms are unaffected, and FK checks (KEY SHARE) from
// concurrent inserts do not conflict with it.
const lockFormSQL = `SELECT id FROM forms WHERE id = $1 FOR NO KEY UPDATE`

// insertSubmissionSQL derives submission_seq in the same statement as the
// insert. uq_submissions_form_seq rejects any duplicate that slips past the
// row lock.
const insertSubmissionSQL = `
INSERT INTO submissions (form_id, form_version_id, submission_seq, created_at)
SELECT $1, $2, COALESCE(MAX(submission_seq), 0) + 1, $3
FROM submissions
WHERE form_id = $1
RETURNING id, submission_seq`

func (q *queries) InsertSubmission(ctx context.Context, formID, versionID int64, now int64) (core.Submission, error) {
	var locked int64
	if err := q.db.QueryRow(ctx, lockFormSQL, formID).Scan(&locked); err != nil {
		return core.Submission{}, notFound(err, "form")
	}

	sub := core.Submission{FormID: formID, FormVersionID: versionID, CreatedAt: now}
	err := q.db.QueryRow(ctx, insertSubmissionSQL, formID, versionID, now).Scan(&sub.ID, &sub.Seq)
	if uniqueViolation(err, "uq_submissions_form_seq") {
		return core.Submission{}, core.ErrSequenceConflict
	}
	if err != nil {
		return core.Submission{}, fmt.Errorf("insert submission: %w", err)
	}
	return sub, nil
}

// InsertAnswers writes all answers with a single unnest insert.
func (q *queries) InsertAnswers(ctx context.Context, submissionID int64, answers []core.Answer) error {
	if len(answers) == 0 {
		return nil
	}
	keys := make([]string, len(answers))
	values := make([]string, len(answers))
	for i, a := range answers {
		keys[i] = a.FieldKey
		values[i] = a.Value
	}

	_, err := q.db.Exec(ctx, `
		INSERT INTO answers (submission_id, field_key, value)
		SELECT $1, k, v FROM unnest($2::text[], $3::text[]) AS t(k, v)`,
		submissionID, keys, values,
	)
	if err != nil {
		return fmt.Errorf("insert answers: %w", err)
	}
	return nil
}

const submissionColumns = `id, form_id, form_version_id, submission_seq, created_at`

func scanSubmission(row pgx.Row) (core.Submission, error) {
	var s core.Submission
	err := row.Scan(&s.ID, &s.FormID, &s.FormVersionID, &s.Seq, &s.CreatedAt)
	return s, err
}

func (q *queries) ListSubmissions(ctx context.Context, formID int64, offset, limit int) ([]core.Submission, int, error) {
	var total int
	if err := q.db.QueryRow(ctx, `SELECT COUNT(*) FROM submissions WHERE form_id = $1`, formID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count submissions: %w", err)
	}

	rows, err := q.db.Query(ctx, `
		SELECT `+submissionColumns+` FROM submissions
		WHERE form_id = $1
		ORDER BY created_at, id
		LIMIT $2 OFFSET $3`,
		formID, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list submissions: %w", err)
	}
	subs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (core.Submission, error) {
		return scanSubmission(row)
	})
	if err != nil {
		return nil, 0, fmt.Errorf("list submissions: %w", err)
	}
	return subs, total, nil
}

func (q *queries) GetSubmission(ctx context.Context, formID, submissionID int64) (core.Submission, error) {
	sub, err := scanSubmission(q.db.QueryRow(ctx, `
		SELECT `+submissionColumns+` FROM submissions
		WHERE id = $1 AND form_id = $2`,
		submissionID, formID,
	))
	if err != nil {
		return core.Submission{}, notFound(err, "submission")
	}
	return sub, nil
}

func (q *queries) ListAnswers(ctx context.Context, submissionID int64) ([]core.Answer, error) {
	rows, err := q.db.Query(ctx, `
		SELECT field_key, value FROM answers
		WHERE submission_id = $1
		ORDER BY field_key`, submissionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	answers, err := pgx.CollectRows(rows, pgx.RowToStructByPos[core.Answer])
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	return answers, nil
}
