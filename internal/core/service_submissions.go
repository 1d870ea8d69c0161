package core

import (
	"context"
	"errors"

	"github.com/JonMunkholm/formsvc/internal/logging"
	"github.com/sethvargo/go-retry"
)

// Submit validates values against the published form found by slug and
// stores a submission with the next per-form sequence number.
//
// The sequence number is computed by the store in the same statement as the
// insert. If the store still reports a duplicate sequence, the whole
// transaction is retried with jittered exponential backoff. Validation and
// lookup failures are never retried and leave nothing written.
func (s *Service) Submit(ctx context.Context, slug string, values map[string]string) (SubmissionSummary, error) {
	slug = NormalizeSlug(slug)

	var summary SubmissionSummary
	attempt := 0
	err := retry.Do(ctx, s.backoff(s.seqRetries), func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			s.metrics.SequenceRetry()
		}

		err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
			var err error
			summary, err = s.insertSubmission(ctx, tx, slug, values)
			return err
		})
		if errors.Is(err, ErrSequenceConflict) {
			return retry.RetryableError(err)
		}
		return err
	})

	client := ClientFromContext(ctx)
	logger := logging.WithFields(ctx, "slug", slug, "ip", client.IP, "user_agent", client.UserAgent)
	if err != nil {
		if kind := KindOf(err); kind != "" {
			s.metrics.SubmissionRejected(kind)
			logger.Debug("submission rejected", "kind", kind, "error", err)
		} else {
			logger.Error("submission failed", "attempts", attempt, "error", err)
		}
		return SubmissionSummary{}, err
	}

	s.metrics.SubmissionAccepted()
	logger.Info("submission accepted",
		"form_id", summary.FormID,
		"submission_seq", summary.SubmissionSeq,
		"attempts", attempt,
	)
	return summary, nil
}

func (s *Service) insertSubmission(ctx context.Context, tx Tx, slug string, values map[string]string) (SubmissionSummary, error) {
	form, err := tx.GetFormBySlug(ctx, slug)
	if err != nil {
		return SubmissionSummary{}, err
	}
	if form.Status != StatusPublished {
		return SubmissionSummary{}, Validationf("form is not published")
	}

	version, err := tx.GetVersion(ctx, form.ActiveVersionID)
	if err != nil {
		return SubmissionSummary{}, err
	}
	if version.Status != StatusPublished {
		return SubmissionSummary{}, Validationf("active form version is not published")
	}

	fields, err := tx.ListFields(ctx, version.ID)
	if err != nil {
		return SubmissionSummary{}, err
	}
	normalized, err := NormalizeAnswers(fields, values)
	if err != nil {
		return SubmissionSummary{}, err
	}

	sub, err := tx.InsertSubmission(ctx, form.ID, version.ID, s.now())
	if err != nil {
		return SubmissionSummary{}, err
	}
	if err := tx.InsertAnswers(ctx, sub.ID, AnswersFromMap(normalized)); err != nil {
		return SubmissionSummary{}, err
	}
	return toSubmissionSummary(sub), nil
}

// ListSubmissions returns one page of a form's submissions ordered by
// (created_at, id).
func (s *Service) ListSubmissions(ctx context.Context, formID int64, page, pageSize int) (Page[SubmissionSummary], error) {
	req := NormalizePage(page, pageSize)

	var result Page[SubmissionSummary]
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := tx.GetForm(ctx, formID); err != nil {
			return err
		}
		subs, total, err := tx.ListSubmissions(ctx, formID, req.Offset(), req.PageSize)
		if err != nil {
			return err
		}
		items := make([]SubmissionSummary, len(subs))
		for i, sub := range subs {
			items[i] = toSubmissionSummary(sub)
		}
		result = NewPage(items, total, req)
		return nil
	})
	return result, err
}

// GetSubmission returns one submission of the form with its answers ordered
// by field key.
func (s *Service) GetSubmission(ctx context.Context, formID, submissionID int64) (SubmissionDetail, error) {
	var detail SubmissionDetail
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		sub, err := tx.GetSubmission(ctx, formID, submissionID)
		if err != nil {
			return err
		}
		answers, err := tx.ListAnswers(ctx, sub.ID)
		if err != nil {
			return err
		}
		if answers == nil {
			answers = []Answer{}
		}
		detail = SubmissionDetail{SubmissionSummary: toSubmissionSummary(sub), Answers: answers}
		return nil
	})
	return detail, err
}
