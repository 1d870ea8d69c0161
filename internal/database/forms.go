package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/JonMunkholm/formsvc/internal/core"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// queries implements core.Tx on top of a pgx transaction.
type queries struct {
	db DBTX
}

var _ core.Tx = (*queries)(nil)

// fieldConfig is the JSONB payload stored in fields.config.
type fieldConfig struct {
	Options []string `json:"options,omitempty"`
}

const formColumns = `id, title, slug, status, COALESCE(active_version_id, 0), created_at, updated_at`

func scanForm(row pgx.Row) (core.Form, error) {
	var (
		f      core.Form
		status string
	)
	err := row.Scan(&f.ID, &f.Title, &f.Slug, &status, &f.ActiveVersionID, &f.CreatedAt, &f.UpdatedAt)
	f.Status = core.Status(status)
	return f, err
}

func (q *queries) CreateForm(ctx context.Context, nf core.NewForm) (core.Form, error) {
	form, err := scanForm(q.db.QueryRow(ctx, `
		INSERT INTO forms (title, slug, status, created_at, updated_at)
		VALUES ($1, $2, 'draft', $3, $3)
		RETURNING `+formColumns,
		nf.Title, nf.Slug, nf.Now,
	))
	if uniqueViolation(err, "uq_forms_slug") {
		return core.Form{}, core.Conflictf("slug already exists")
	}
	if err != nil {
		return core.Form{}, fmt.Errorf("insert form: %w", err)
	}

	var versionID int64
	err = q.db.QueryRow(ctx, `
		INSERT INTO form_versions (form_id, version_number, status, created_at)
		VALUES ($1, 1, 'draft', $2)
		RETURNING id`,
		form.ID, nf.Now,
	).Scan(&versionID)
	if err != nil {
		return core.Form{}, fmt.Errorf("insert form version: %w", err)
	}

	if _, err := q.db.Exec(ctx, `UPDATE forms SET active_version_id = $2 WHERE id = $1`, form.ID, versionID); err != nil {
		return core.Form{}, fmt.Errorf("set active version: %w", err)
	}
	form.ActiveVersionID = versionID
	return form, nil
}

func (q *queries) GetForm(ctx context.Context, id int64) (core.Form, error) {
	form, err := scanForm(q.db.QueryRow(ctx, `SELECT `+formColumns+` FROM forms WHERE id = $1`, id))
	if err != nil {
		return core.Form{}, notFound(err, "form")
	}
	return form, nil
}

func (q *queries) GetFormBySlug(ctx context.Context, slug string) (core.Form, error) {
	form, err := scanForm(q.db.QueryRow(ctx, `SELECT `+formColumns+` FROM forms WHERE slug = $1`, slug))
	if err != nil {
		return core.Form{}, notFound(err, "form")
	}
	return form, nil
}

// SlugsWithPrefix relies on slugs being limited to [a-z0-9-], so the LIKE
// pattern needs no escaping.
func (q *queries) SlugsWithPrefix(ctx context.Context, base string) ([]string, error) {
	rows, err := q.db.Query(ctx, `SELECT slug FROM forms WHERE slug = $1 OR slug LIKE $1 || '-%'`, base)
	if err != nil {
		return nil, fmt.Errorf("query slugs: %w", err)
	}
	slugs, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("query slugs: %w", err)
	}
	return slugs, nil
}

func (q *queries) SlugOwner(ctx context.Context, slug string) (int64, bool, error) {
	var id int64
	err := q.db.QueryRow(ctx, `SELECT id FROM forms WHERE slug = $1`, slug).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("query slug owner: %w", err)
	}
	return id, true, nil
}

func (q *queries) ListForms(ctx context.Context, offset, limit int) ([]core.Form, int, error) {
	var total int
	if err := q.db.QueryRow(ctx, `SELECT COUNT(*) FROM forms`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count forms: %w", err)
	}

	rows, err := q.db.Query(ctx, `
		SELECT `+formColumns+` FROM forms
		ORDER BY created_at, id
		LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list forms: %w", err)
	}
	forms, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (core.Form, error) {
		return scanForm(row)
	})
	if err != nil {
		return nil, 0, fmt.Errorf("list forms: %w", err)
	}
	return forms, total, nil
}

func (q *queries) UpdateForm(ctx context.Context, id int64, title, slug string, now int64) error {
	tag, err := q.db.Exec(ctx, `UPDATE forms SET title = $2, slug = $3, updated_at = $4 WHERE id = $1`, id, title, slug, now)
	if uniqueViolation(err, "uq_forms_slug") {
		return core.Conflictf("slug already exists")
	}
	if err != nil {
		return fmt.Errorf("update form: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.NotFoundf("form not found")
	}
	return nil
}

func (q *queries) DeleteForm(ctx context.Context, id int64) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM forms WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete form: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.NotFoundf("form not found")
	}
	return nil
}

func (q *queries) TouchForm(ctx context.Context, id int64, now int64) error {
	if _, err := q.db.Exec(ctx, `UPDATE forms SET updated_at = $2 WHERE id = $1`, id, now); err != nil {
		return fmt.Errorf("touch form: %w", err)
	}
	return nil
}

const selectVersionSQL = `
	SELECT id, form_id, version_number, status, created_at, published_at
	FROM form_versions WHERE id = $1`

func (q *queries) GetVersion(ctx context.Context, id int64) (core.FormVersion, error) {
	return scanVersion(q.db.QueryRow(ctx, selectVersionSQL, id))
}

func (q *queries) LockVersion(ctx context.Context, id int64) (core.FormVersion, error) {
	return scanVersion(q.db.QueryRow(ctx, selectVersionSQL+` FOR NO KEY UPDATE`, id))
}

func scanVersion(row pgx.Row) (core.FormVersion, error) {
	var (
		v           core.FormVersion
		status      string
		publishedAt pgtype.Int8
	)
	err := row.Scan(&v.ID, &v.FormID, &v.VersionNumber, &status, &v.CreatedAt, &publishedAt)
	if err != nil {
		return core.FormVersion{}, notFound(err, "form version")
	}
	v.Status = core.Status(status)
	if publishedAt.Valid {
		ts := publishedAt.Int64
		v.PublishedAt = &ts
	}
	return v, nil
}

func (q *queries) ListFields(ctx context.Context, versionID int64) ([]core.Field, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, form_version_id, field_key, label, field_type, required, position, config
		FROM fields
		WHERE form_version_id = $1
		ORDER BY position, id`, versionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list fields: %w", err)
	}
	fields, err := pgx.CollectRows(rows, scanField)
	if err != nil {
		return nil, fmt.Errorf("list fields: %w", err)
	}
	return fields, nil
}

func scanField(row pgx.CollectableRow) (core.Field, error) {
	var (
		f        core.Field
		typeName string
		cfg      fieldConfig
	)
	if err := row.Scan(&f.ID, &f.FormVersionID, &f.Key, &f.Label, &typeName, &f.Required, &f.Position, &cfg); err != nil {
		return core.Field{}, err
	}
	ft, ok := core.ParseFieldType(typeName)
	if !ok {
		return core.Field{}, fmt.Errorf("field %d: unknown field type %q", f.ID, typeName)
	}
	f.Type = ft
	f.Options = cfg.Options
	return f, nil
}

// ReplaceFields deletes the version's fields and inserts defs in one batch.
func (q *queries) ReplaceFields(ctx context.Context, versionID int64, defs []core.FieldDefinition) ([]core.Field, error) {
	if _, err := q.db.Exec(ctx, `DELETE FROM fields WHERE form_version_id = $1`, versionID); err != nil {
		return nil, fmt.Errorf("delete fields: %w", err)
	}
	if len(defs) == 0 {
		return []core.Field{}, nil
	}

	batch := &pgx.Batch{}
	for _, d := range defs {
		batch.Queue(`
			INSERT INTO fields (form_version_id, field_key, label, field_type, required, position, config)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id`,
			versionID, d.Key, d.Label, d.Type.String(), d.Required, d.Position, fieldConfig{Options: d.Options},
		)
	}

	br := q.db.SendBatch(ctx, batch)
	fields := make([]core.Field, 0, len(defs))
	for _, d := range defs {
		var id int64
		if err := br.QueryRow().Scan(&id); err != nil {
			br.Close()
			if uniqueViolation(err, "uq_fields_version_key") {
				return nil, core.Conflictf("duplicate field key: %s", d.Key)
			}
			return nil, fmt.Errorf("insert field %s: %w", d.Key, err)
		}
		fields = append(fields, core.Field{
			ID:            id,
			FormVersionID: versionID,
			Key:           d.Key,
			Label:         d.Label,
			Type:          d.Type,
			Required:      d.Required,
			Position:      d.Position,
			Options:       d.Options,
		})
	}
	if err := br.Close(); err != nil {
		return nil, fmt.Errorf("insert fields: %w", err)
	}
	return fields, nil
}

func (q *queries) MarkPublished(ctx context.Context, formID, versionID int64, now int64) error {
	if _, err := q.db.Exec(ctx, `
		UPDATE form_versions SET status = 'published', published_at = $2 WHERE id = $1`,
		versionID, now,
	); err != nil {
		return fmt.Errorf("publish version: %w", err)
	}
	if _, err := q.db.Exec(ctx, `
		UPDATE forms SET status = 'published', updated_at = $2 WHERE id = $1`,
		formID, now,
	); err != nil {
		return fmt.Errorf("publish form: %w", err)
	}
	return nil
}
