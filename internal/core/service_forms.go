package core

import (
	"cmp"
	"context"
	"strings"

	"github.com/JonMunkholm/formsvc/internal/logging"
	"github.com/sethvargo/go-retry"
)

// createSlugRetries bounds how often CreateForm re-resolves a slug taken by
// a concurrent create.
const createSlugRetries = 3

// CreateForm creates a draft form and its version 1 in one transaction.
// The slug comes from slugHint, or the title when the hint is blank, and is
// suffixed (-2, -3, ...) until unique.
func (s *Service) CreateForm(ctx context.Context, title, slugHint string) (FormDetail, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return FormDetail{}, Validationf("title is required")
	}
	base := NormalizeSlug(cmp.Or(strings.TrimSpace(slugHint), title))

	// A concurrent create can take the resolved slug between the read and the
	// insert; the store then reports a conflict and resolution runs again.
	var detail FormDetail
	err := retry.Do(ctx, s.backoff(createSlugRetries), func(ctx context.Context) error {
		err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
			return s.insertForm(ctx, tx, title, base, &detail)
		})
		if IsKind(err, KindConflict) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return FormDetail{}, err
	}

	logging.WithFields(ctx, "form_id", detail.ID, "slug", detail.Slug).Info("form created")
	return detail, nil
}

func (s *Service) insertForm(ctx context.Context, tx Tx, title, base string, detail *FormDetail) error {
	existing, err := tx.SlugsWithPrefix(ctx, base)
	if err != nil {
		return err
	}
	taken := make(map[string]struct{}, len(existing))
	for _, slug := range existing {
		taken[slug] = struct{}{}
	}

	form, err := tx.CreateForm(ctx, NewForm{
		Title: title,
		Slug:  ResolveUniqueSlug(base, taken),
		Now:   s.now(),
	})
	if err != nil {
		return err
	}
	*detail = toFormDetail(form, nil)
	return nil
}

// GetForm returns a form with its active version's fields, in any status.
func (s *Service) GetForm(ctx context.Context, id int64) (FormDetail, error) {
	var detail FormDetail
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		form, err := tx.GetForm(ctx, id)
		if err != nil {
			return err
		}
		detail, err = loadFormDetail(ctx, tx, form)
		return err
	})
	return detail, err
}

// GetFormBySlug returns a form by slug in any status.
func (s *Service) GetFormBySlug(ctx context.Context, slug string) (FormDetail, error) {
	var detail FormDetail
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		form, err := tx.GetFormBySlug(ctx, NormalizeSlug(slug))
		if err != nil {
			return err
		}
		detail, err = loadFormDetail(ctx, tx, form)
		return err
	})
	return detail, err
}

// GetPublishedForm is the public slug lookup. Draft forms are reported as
// not found.
func (s *Service) GetPublishedForm(ctx context.Context, slug string) (FormDetail, error) {
	var detail FormDetail
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		form, err := tx.GetFormBySlug(ctx, NormalizeSlug(slug))
		if IsKind(err, KindNotFound) || (err == nil && form.Status != StatusPublished) {
			return NotFoundf("published form not found")
		}
		if err != nil {
			return err
		}
		detail, err = loadFormDetail(ctx, tx, form)
		return err
	})
	return detail, err
}

// ListForms returns one page of forms ordered by (created_at, id).
func (s *Service) ListForms(ctx context.Context, page, pageSize int) (Page[FormSummary], error) {
	req := NormalizePage(page, pageSize)

	var result Page[FormSummary]
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		forms, total, err := tx.ListForms(ctx, req.Offset(), req.PageSize)
		if err != nil {
			return err
		}
		items := make([]FormSummary, len(forms))
		for i, f := range forms {
			items[i] = toFormSummary(f)
		}
		result = NewPage(items, total, req)
		return nil
	})
	return result, err
}

// UpdateForm changes a form's title and slug. Versions and fields are left
// untouched. A slug held by a different form is a conflict.
func (s *Service) UpdateForm(ctx context.Context, id int64, title, slugHint string) (FormDetail, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return FormDetail{}, Validationf("title is required")
	}
	slug := NormalizeSlug(cmp.Or(strings.TrimSpace(slugHint), title))

	var detail FormDetail
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := tx.GetForm(ctx, id); err != nil {
			return err
		}

		owner, found, err := tx.SlugOwner(ctx, slug)
		if err != nil {
			return err
		}
		if found && owner != id {
			return Conflictf("slug already exists")
		}

		if err := tx.UpdateForm(ctx, id, title, slug, s.now()); err != nil {
			return err
		}

		form, err := tx.GetForm(ctx, id)
		if err != nil {
			return err
		}
		detail, err = loadFormDetail(ctx, tx, form)
		return err
	})
	if err != nil {
		return FormDetail{}, err
	}

	logging.WithFields(ctx, "form_id", id, "slug", slug).Info("form updated")
	return detail, nil
}

// DeleteForm removes a form together with its versions, fields,
// submissions and answers.
func (s *Service) DeleteForm(ctx context.Context, id int64) error {
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.DeleteForm(ctx, id)
	})
	if err != nil {
		return err
	}

	logging.WithFields(ctx, "form_id", id).Info("form deleted")
	return nil
}

// ReplaceFields swaps the field set of the form's active version. A
// published version is immutable and yields a conflict with nothing changed.
func (s *Service) ReplaceFields(ctx context.Context, id int64, inputs []FieldInput) (FormDetail, error) {
	var detail FormDetail
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		form, err := tx.GetForm(ctx, id)
		if err != nil {
			return err
		}
		version, err := tx.LockVersion(ctx, form.ActiveVersionID)
		if err != nil {
			return err
		}
		if version.Status == StatusPublished {
			return Conflictf("published form version is immutable")
		}

		defs, err := NormalizeFieldInputs(inputs)
		if err != nil {
			return err
		}

		fields, err := tx.ReplaceFields(ctx, version.ID, defs)
		if err != nil {
			return err
		}

		now := s.now()
		if err := tx.TouchForm(ctx, id, now); err != nil {
			return err
		}
		form.UpdatedAt = now
		detail = toFormDetail(form, fields)
		return nil
	})
	if err != nil {
		return FormDetail{}, err
	}

	logging.WithFields(ctx, "form_id", id, "version_id", detail.ActiveVersionID).
		Info("form fields replaced", "fields", len(detail.Fields))
	return detail, nil
}

// PublishForm marks the form and its active version published. The version
// needs at least one field. Publishing an already published form re-stamps
// its timestamps.
func (s *Service) PublishForm(ctx context.Context, id int64) (FormDetail, error) {
	var detail FormDetail
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		form, err := tx.GetForm(ctx, id)
		if err != nil {
			return err
		}
		if _, err := tx.LockVersion(ctx, form.ActiveVersionID); err != nil {
			return err
		}
		fields, err := tx.ListFields(ctx, form.ActiveVersionID)
		if err != nil {
			return err
		}
		if len(fields) == 0 {
			return Validationf("cannot publish form without fields")
		}

		now := s.now()
		if err := tx.MarkPublished(ctx, form.ID, form.ActiveVersionID, now); err != nil {
			return err
		}
		form.Status = StatusPublished
		form.UpdatedAt = now
		detail = toFormDetail(form, fields)
		return nil
	})
	if err != nil {
		return FormDetail{}, err
	}

	s.metrics.FormPublished()
	logging.WithFields(ctx, "form_id", id, "version_id", detail.ActiveVersionID).Info("form published")
	return detail, nil
}

func loadFormDetail(ctx context.Context, tx Tx, form Form) (FormDetail, error) {
	fields, err := tx.ListFields(ctx, form.ActiveVersionID)
	if err != nil {
		return FormDetail{}, err
	}
	return toFormDetail(form, fields), nil
}
