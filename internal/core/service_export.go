package core

// service_export.go streams a form's submissions as CSV.
//
// ExportCSV resolves the header once (submission_id, created_at, then the
// active version's field keys in (position, id) order). The returned
// CSVExport can be iterated any number of times; each iteration re-reads the
// store, so unchanged data always produces byte-identical output. Rows follow
// (created_at, id) order and are produced one at a time, so memory use does
// not grow with the number of submissions.

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"io"
	"iter"
	"strconv"

	"github.com/JonMunkholm/formsvc/internal/logging"
)

// ExportVersionV1 is the only supported export layout.
const ExportVersionV1 = "v1"

var errExportStopped = errors.New("export consumer stopped")

// CSVExport is a prepared, restartable export of one form.
type CSVExport struct {
	formID  int64
	slug    string
	header  []string
	keys    []string
	store   Store
	limiter *ExportLimiter
	metrics Metrics
}

// ExportCSV prepares an export of form formID using layout version.
func (s *Service) ExportCSV(ctx context.Context, formID int64, version string) (*CSVExport, error) {
	if version != ExportVersionV1 {
		return nil, Validationf("unsupported export version: %s", version)
	}

	var (
		form   Form
		fields []Field
	)
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		if form, err = tx.GetForm(ctx, formID); err != nil {
			return err
		}
		fields, err = tx.ListFields(ctx, form.ActiveVersionID)
		return err
	})
	if err != nil {
		return nil, err
	}
	SortFields(fields)

	keys := make([]string, len(fields))
	for i, f := range fields {
		keys[i] = f.Key
	}
	header := append([]string{"submission_id", "created_at"}, keys...)

	return &CSVExport{
		formID:  form.ID,
		slug:    form.Slug,
		header:  header,
		keys:    keys,
		store:   s.store,
		limiter: s.exports,
		metrics: s.metrics,
	}, nil
}

// Header returns the column names of the export.
func (e *CSVExport) Header() []string {
	return append([]string(nil), e.header...)
}

// Filename is a suggested download name.
func (e *CSVExport) Filename() string {
	return e.slug + "-submissions.csv"
}

// Chunks yields the header line followed by one line per submission. Each
// chunk is a complete CSV record ending in "\n". A non-nil error is always
// the final element. Breaking out of the loop stops the underlying query.
func (e *CSVExport) Chunks(ctx context.Context) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if err := e.limiter.Acquire(ctx); err != nil {
			e.metrics.ExportFinished(0, err)
			yield("", err)
			return
		}
		defer e.limiter.Release()

		enc := newLineEncoder()

		line, err := enc.encode(e.header)
		if err != nil {
			e.metrics.ExportFinished(0, err)
			yield("", err)
			return
		}
		if !yield(line, nil) {
			return
		}

		rows := 0
		row := make([]string, len(e.header))
		err = e.store.StreamSubmissions(ctx, e.formID, func(rec ExportRecord) error {
			row[0] = strconv.FormatInt(rec.Submission.ID, 10)
			row[1] = strconv.FormatInt(rec.Submission.CreatedAt, 10)
			for i, key := range e.keys {
				row[i+2] = rec.Answers[key]
			}
			line, err := enc.encode(row)
			if err != nil {
				return err
			}
			rows++
			if !yield(line, nil) {
				return errExportStopped
			}
			return nil
		})

		switch {
		case errors.Is(err, errExportStopped):
			e.metrics.ExportFinished(rows, nil)
		case err != nil:
			e.metrics.ExportFinished(rows, err)
			logging.WithFields(ctx, "form_id", e.formID).Error("export failed", "rows", rows, "error", err)
			yield("", err)
		default:
			e.metrics.ExportFinished(rows, nil)
			logging.WithFields(ctx, "form_id", e.formID).Debug("export finished", "rows", rows)
		}
	}
}

// Stream writes the whole export to w and returns the number of bytes
// written.
func (e *CSVExport) Stream(ctx context.Context, w io.Writer) (int64, error) {
	var total int64
	for chunk, err := range e.Chunks(ctx) {
		if err != nil {
			return total, err
		}
		n, err := io.WriteString(w, chunk)
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// lineEncoder renders one CSV record at a time with standard quoting.
type lineEncoder struct {
	buf bytes.Buffer
	w   *csv.Writer
}

func newLineEncoder() *lineEncoder {
	enc := &lineEncoder{}
	enc.w = csv.NewWriter(&enc.buf)
	return enc
}

func (enc *lineEncoder) encode(record []string) (string, error) {
	enc.buf.Reset()
	if err := enc.w.Write(record); err != nil {
		return "", err
	}
	enc.w.Flush()
	if err := enc.w.Error(); err != nil {
		return "", err
	}
	return enc.buf.String(), nil
}
