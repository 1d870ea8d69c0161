package core_test

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/formsvc/internal/core"
	"github.com/JonMunkholm/formsvc/internal/database/memstore"
)

const fixedNow = int64(1700000000)

type recordingMetrics struct {
	published  atomic.Int64
	accepted   atomic.Int64
	retries    atomic.Int64
	exportRows atomic.Int64

	mu       sync.Mutex
	rejected []core.Kind
}

func (m *recordingMetrics) FormPublished()      { m.published.Add(1) }
func (m *recordingMetrics) SubmissionAccepted() { m.accepted.Add(1) }
func (m *recordingMetrics) SequenceRetry()      { m.retries.Add(1) }

func (m *recordingMetrics) SubmissionRejected(k core.Kind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejected = append(m.rejected, k)
}

func (m *recordingMetrics) ExportFinished(rows int, _ error) {
	m.exportRows.Add(int64(rows))
}

func newTestService(t *testing.T, store core.Store) (*core.Service, *recordingMetrics) {
	t.Helper()
	if store == nil {
		store = memstore.New()
	}
	m := &recordingMetrics{}
	svc := core.NewService(store, core.Options{
		Clock:           core.FixedClock(fixedNow),
		Metrics:         m,
		SequenceBackoff: time.Millisecond,
	})
	return svc, m
}

func intakeFields() []core.FieldInput {
	return []core.FieldInput{
		{Key: "name", Label: "Name", Type: "text", Required: true},
		{Key: "email", Label: "Email", Type: "email", Required: true},
		{Key: "priority", Label: "Priority", Type: "select", Required: true, Options: []string{"low", "normal", "high"}},
	}
}

// publishedIntake creates and publishes the "Customer Intake" form.
func publishedIntake(t *testing.T, svc *core.Service) core.FormDetail {
	t.Helper()
	ctx := context.Background()

	form, err := svc.CreateForm(ctx, "Customer Intake", "")
	require.NoError(t, err)
	_, err = svc.ReplaceFields(ctx, form.ID, intakeFields())
	require.NoError(t, err)
	form, err = svc.PublishForm(ctx, form.ID)
	require.NoError(t, err)
	return form
}

func TestCreateForm(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	form, err := svc.CreateForm(ctx, "  Customer Intake ", "")
	require.NoError(t, err)
	assert.Equal(t, "Customer Intake", form.Title)
	assert.Equal(t, "customer-intake", form.Slug)
	assert.Equal(t, core.StatusDraft, form.Status)
	assert.NotZero(t, form.ActiveVersionID)
	assert.Equal(t, fixedNow, form.CreatedAt)
	assert.Empty(t, form.Fields)

	second, err := svc.CreateForm(ctx, "Customer Intake", "")
	require.NoError(t, err)
	assert.Equal(t, "customer-intake-2", second.Slug)

	third, err := svc.CreateForm(ctx, "Anything", "Customer Intake")
	require.NoError(t, err)
	assert.Equal(t, "customer-intake-3", third.Slug)

	fallback, err := svc.CreateForm(ctx, "!!!", "")
	require.NoError(t, err)
	assert.Equal(t, core.FallbackSlug, fallback.Slug)
}

// staleSlugStore hides existing slugs from the first n SlugsWithPrefix
// calls, as if another create committed between the read and the insert.
type staleSlugStore struct {
	core.Store
	remaining atomic.Int64
}

type staleSlugTx struct {
	core.Tx
	store *staleSlugStore
}

func (s *staleSlugStore) InTx(ctx context.Context, fn func(context.Context, core.Tx) error) error {
	return s.Store.InTx(ctx, func(ctx context.Context, tx core.Tx) error {
		return fn(ctx, &staleSlugTx{Tx: tx, store: s})
	})
}

func (tx *staleSlugTx) SlugsWithPrefix(ctx context.Context, base string) ([]string, error) {
	if tx.store.remaining.Add(-1) >= 0 {
		return nil, nil
	}
	return tx.Tx.SlugsWithPrefix(ctx, base)
}

func TestCreateForm_RetriesLostSlugRace(t *testing.T) {
	store := &staleSlugStore{Store: memstore.New()}
	svc, _ := newTestService(t, store)
	ctx := context.Background()

	_, err := svc.CreateForm(ctx, "Customer Intake", "")
	require.NoError(t, err)

	store.remaining.Store(1)
	second, err := svc.CreateForm(ctx, "Customer Intake", "")
	require.NoError(t, err)
	assert.Equal(t, "customer-intake-2", second.Slug)

	page, err := svc.ListForms(ctx, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
}

func TestCreateForm_SlugRaceRetriesExhausted(t *testing.T) {
	store := &staleSlugStore{Store: memstore.New()}
	svc, _ := newTestService(t, store)
	ctx := context.Background()

	_, err := svc.CreateForm(ctx, "Customer Intake", "")
	require.NoError(t, err)

	store.remaining.Store(100)
	_, err = svc.CreateForm(ctx, "Customer Intake", "")
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindConflict))

	page, err := svc.ListForms(ctx, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
}

func TestListForms_HugePage(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	for i := range 3 {
		_, err := svc.CreateForm(ctx, fmt.Sprintf("Form %d", i), "")
		require.NoError(t, err)
	}

	page, err := svc.ListForms(ctx, math.MaxInt, 20)
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, core.MaxPage, page.Page)
	assert.False(t, page.HasNext)
}

func TestCreateForm_TitleRequired(t *testing.T) {
	svc, _ := newTestService(t, nil)

	_, err := svc.CreateForm(context.Background(), "   ", "hint")
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindValidation))
	assert.EqualError(t, err, "title is required")

	page, err := svc.ListForms(context.Background(), 1, 20)
	require.NoError(t, err)
	assert.Zero(t, page.Total)
}

func TestGetForm_NotFound(t *testing.T) {
	svc, _ := newTestService(t, nil)

	_, err := svc.GetForm(context.Background(), 42)
	assert.True(t, core.IsKind(err, core.KindNotFound))
}

func TestUpdateForm(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	a, err := svc.CreateForm(ctx, "Alpha", "")
	require.NoError(t, err)
	b, err := svc.CreateForm(ctx, "Beta", "")
	require.NoError(t, err)

	updated, err := svc.UpdateForm(ctx, a.ID, "Alpha Renamed", "")
	require.NoError(t, err)
	assert.Equal(t, "alpha-renamed", updated.Slug)
	assert.Equal(t, a.ActiveVersionID, updated.ActiveVersionID)

	// Keeping its own slug is not a collision.
	_, err = svc.UpdateForm(ctx, a.ID, "Alpha Again", "alpha-renamed")
	require.NoError(t, err)

	_, err = svc.UpdateForm(ctx, b.ID, "Beta", "Alpha Renamed")
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindConflict))

	got, err := svc.GetForm(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "beta", got.Slug)
}

func TestReplaceFields(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	form, err := svc.CreateForm(ctx, "Customer Intake", "")
	require.NoError(t, err)

	detail, err := svc.ReplaceFields(ctx, form.ID, intakeFields())
	require.NoError(t, err)
	require.Len(t, detail.Fields, 3)
	for i, f := range detail.Fields {
		assert.Equal(t, i, f.Position)
	}
	assert.Equal(t, core.FieldSelect, detail.Fields[2].FieldType)
	assert.Equal(t, []string{"low", "normal", "high"}, detail.Fields[2].Options)

	// Replacing again swaps the whole set.
	detail, err = svc.ReplaceFields(ctx, form.ID, []core.FieldInput{{Key: "Notes", Label: "Notes", Type: "textarea"}})
	require.NoError(t, err)
	require.Len(t, detail.Fields, 1)
	assert.Equal(t, "notes", detail.Fields[0].Key)

	// A failing replace leaves the previous set in place.
	_, err = svc.ReplaceFields(ctx, form.ID, []core.FieldInput{
		{Key: "a", Label: "A"},
		{Key: "A", Label: "Again"},
	})
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindConflict))

	got, err := svc.GetForm(ctx, form.ID)
	require.NoError(t, err)
	require.Len(t, got.Fields, 1)
	assert.Equal(t, "notes", got.Fields[0].Key)
}

func TestPublishForm(t *testing.T) {
	svc, m := newTestService(t, nil)
	ctx := context.Background()

	form, err := svc.CreateForm(ctx, "Empty", "")
	require.NoError(t, err)

	_, err = svc.PublishForm(ctx, form.ID)
	require.Error(t, err)
	assert.EqualError(t, err, "cannot publish form without fields")
	assert.True(t, core.IsKind(err, core.KindValidation))

	published := publishedIntake(t, svc)
	assert.Equal(t, core.StatusPublished, published.Status)
	assert.Len(t, published.Fields, 3)
	assert.EqualValues(t, 1, m.published.Load())

	// Re-publishing is allowed and only re-stamps.
	again, err := svc.PublishForm(ctx, published.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusPublished, again.Status)
}

func TestPublishedVersionIsImmutable(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()
	form := publishedIntake(t, svc)

	_, err := svc.ReplaceFields(ctx, form.ID, []core.FieldInput{{Key: "x", Label: "X"}})
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindConflict))
	assert.EqualError(t, err, "published form version is immutable")

	got, err := svc.GetForm(ctx, form.ID)
	require.NoError(t, err)
	assert.Equal(t, form.Fields, got.Fields)
}

// orderStore records the version and field calls made inside transactions.
type orderStore struct {
	core.Store
	mu    sync.Mutex
	calls []string
}

type orderTx struct {
	core.Tx
	store *orderStore
}

func (s *orderStore) InTx(ctx context.Context, fn func(context.Context, core.Tx) error) error {
	return s.Store.InTx(ctx, func(ctx context.Context, tx core.Tx) error {
		return fn(ctx, &orderTx{Tx: tx, store: s})
	})
}

func (s *orderStore) record(call string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
}

func (s *orderStore) reset() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	calls := s.calls
	s.calls = nil
	return calls
}

func (tx *orderTx) GetVersion(ctx context.Context, id int64) (core.FormVersion, error) {
	tx.store.record("GetVersion")
	return tx.Tx.GetVersion(ctx, id)
}

func (tx *orderTx) LockVersion(ctx context.Context, id int64) (core.FormVersion, error) {
	tx.store.record("LockVersion")
	return tx.Tx.LockVersion(ctx, id)
}

func (tx *orderTx) ListFields(ctx context.Context, versionID int64) ([]core.Field, error) {
	tx.store.record("ListFields")
	return tx.Tx.ListFields(ctx, versionID)
}

func (tx *orderTx) ReplaceFields(ctx context.Context, versionID int64, defs []core.FieldDefinition) ([]core.Field, error) {
	tx.store.record("ReplaceFields")
	return tx.Tx.ReplaceFields(ctx, versionID, defs)
}

func (tx *orderTx) MarkPublished(ctx context.Context, formID, versionID int64, now int64) error {
	tx.store.record("MarkPublished")
	return tx.Tx.MarkPublished(ctx, formID, versionID, now)
}

func TestFieldEditsAndPublishLockVersionFirst(t *testing.T) {
	store := &orderStore{Store: memstore.New()}
	svc, _ := newTestService(t, store)
	ctx := context.Background()

	form, err := svc.CreateForm(ctx, "Locked", "")
	require.NoError(t, err)
	store.reset()

	_, err = svc.ReplaceFields(ctx, form.ID, intakeFields())
	require.NoError(t, err)
	assert.Equal(t, []string{"LockVersion", "ReplaceFields"}, store.reset())

	_, err = svc.PublishForm(ctx, form.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"LockVersion", "ListFields", "MarkPublished"}, store.reset())

	_, err = svc.ReplaceFields(ctx, form.ID, nil)
	assert.True(t, core.IsKind(err, core.KindConflict))
	assert.Equal(t, []string{"LockVersion"}, store.reset())
}

func TestGetPublishedForm(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	draft, err := svc.CreateForm(ctx, "Draft Only", "")
	require.NoError(t, err)

	_, err = svc.GetPublishedForm(ctx, draft.Slug)
	assert.True(t, core.IsKind(err, core.KindNotFound))

	// The admin path still sees it.
	_, err = svc.GetFormBySlug(ctx, draft.Slug)
	require.NoError(t, err)

	form := publishedIntake(t, svc)
	got, err := svc.GetPublishedForm(ctx, "  Customer-Intake ")
	require.NoError(t, err)
	assert.Equal(t, form.ID, got.ID)

	_, err = svc.GetPublishedForm(ctx, "missing")
	assert.True(t, core.IsKind(err, core.KindNotFound))
}

func TestSubmit(t *testing.T) {
	svc, m := newTestService(t, nil)
	ctx := context.Background()
	form := publishedIntake(t, svc)

	values := map[string]string{"name": "Ada", "email": "ada@example.com", "priority": "high"}
	first, err := svc.Submit(ctx, form.Slug, values)
	require.NoError(t, err)
	assert.EqualValues(t, 1, first.SubmissionSeq)
	assert.Equal(t, form.ID, first.FormID)
	assert.Equal(t, form.ActiveVersionID, first.FormVersionID)
	assert.Equal(t, fixedNow, first.CreatedAt)

	_, err = svc.Submit(ctx, form.Slug, map[string]string{"name": "Bob", "email": "bob@example.com", "priority": "medium"})
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindValidation))
	assert.EqualError(t, err, "field 'Priority' has invalid option")

	// A rejected submission does not consume a sequence number.
	second, err := svc.Submit(ctx, form.Slug, values)
	require.NoError(t, err)
	assert.EqualValues(t, 2, second.SubmissionSeq)

	assert.EqualValues(t, 2, m.accepted.Load())
	assert.Equal(t, []core.Kind{core.KindValidation}, m.rejected)
}

func TestSubmit_Unpublished(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	draft, err := svc.CreateForm(ctx, "Draft", "")
	require.NoError(t, err)
	_, err = svc.ReplaceFields(ctx, draft.ID, intakeFields())
	require.NoError(t, err)

	_, err = svc.Submit(ctx, draft.Slug, map[string]string{"name": "Ada"})
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindValidation))
	assert.EqualError(t, err, "form is not published")

	_, err = svc.Submit(ctx, "no-such-form", nil)
	assert.True(t, core.IsKind(err, core.KindNotFound))
}

func TestSubmit_ConcurrentSequencesAreDense(t *testing.T) {
	svc, _ := newTestService(t, nil)
	form := publishedIntake(t, svc)

	const submitters = 20
	seqs := make([]int64, submitters)

	g, ctx := errgroup.WithContext(context.Background())
	for i := range submitters {
		g.Go(func() error {
			sub, err := svc.Submit(ctx, form.Slug, map[string]string{
				"name":     fmt.Sprintf("user %d", i),
				"email":    fmt.Sprintf("user%d@example.com", i),
				"priority": "normal",
			})
			if err != nil {
				return err
			}
			seqs[i] = sub.SubmissionSeq
			return nil
		})
	}
	require.NoError(t, g.Wait())

	slices.Sort(seqs)
	for i, seq := range seqs {
		assert.EqualValues(t, i+1, seq)
	}
}

func TestSubmit_SequencesArePerForm(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	intake := publishedIntake(t, svc)
	other, err := svc.CreateForm(ctx, "Feedback", "")
	require.NoError(t, err)
	_, err = svc.ReplaceFields(ctx, other.ID, []core.FieldInput{{Key: "comment", Label: "Comment"}})
	require.NoError(t, err)
	_, err = svc.PublishForm(ctx, other.ID)
	require.NoError(t, err)

	for range 3 {
		_, err := svc.Submit(ctx, intake.Slug, map[string]string{"name": "A", "email": "a@b.co", "priority": "low"})
		require.NoError(t, err)
	}
	sub, err := svc.Submit(ctx, other.Slug, map[string]string{"comment": "hi"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, sub.SubmissionSeq)
}

// conflictStore makes the first n InsertSubmission calls report a sequence
// conflict.
type conflictStore struct {
	core.Store
	remaining atomic.Int64
}

type conflictTx struct {
	core.Tx
	store *conflictStore
}

func (s *conflictStore) InTx(ctx context.Context, fn func(context.Context, core.Tx) error) error {
	return s.Store.InTx(ctx, func(ctx context.Context, tx core.Tx) error {
		return fn(ctx, &conflictTx{Tx: tx, store: s})
	})
}

func (tx *conflictTx) InsertSubmission(ctx context.Context, formID, versionID int64, now int64) (core.Submission, error) {
	if tx.store.remaining.Add(-1) >= 0 {
		return core.Submission{}, core.ErrSequenceConflict
	}
	return tx.Tx.InsertSubmission(ctx, formID, versionID, now)
}

func TestSubmit_RetriesSequenceConflict(t *testing.T) {
	store := &conflictStore{Store: memstore.New()}
	svc, m := newTestService(t, store)
	form := publishedIntake(t, svc)

	store.remaining.Store(2)
	sub, err := svc.Submit(context.Background(), form.Slug, map[string]string{"name": "A", "email": "a@b.co", "priority": "low"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, sub.SubmissionSeq)
	assert.EqualValues(t, 2, m.retries.Load())
}

func TestSubmit_RetriesExhausted(t *testing.T) {
	store := &conflictStore{Store: memstore.New()}
	m := &recordingMetrics{}
	svc := core.NewService(store, core.Options{
		Clock:           core.FixedClock(fixedNow),
		Metrics:         m,
		SequenceRetries: 2,
		SequenceBackoff: time.Millisecond,
	})
	form := publishedIntake(t, svc)

	store.remaining.Store(100)
	_, err := svc.Submit(context.Background(), form.Slug, map[string]string{"name": "A", "email": "a@b.co", "priority": "low"})
	require.ErrorIs(t, err, core.ErrSequenceConflict)
	assert.EqualValues(t, 2, m.retries.Load())

	page, err := svc.ListSubmissions(context.Background(), form.ID, 1, 20)
	require.NoError(t, err)
	assert.Zero(t, page.Total)
}

func TestListAndGetSubmissions(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()
	form := publishedIntake(t, svc)

	for i := range 5 {
		_, err := svc.Submit(ctx, form.Slug, map[string]string{
			"name": fmt.Sprintf("n%d", i), "email": "a@b.co", "priority": "low",
		})
		require.NoError(t, err)
	}

	page, err := svc.ListSubmissions(ctx, form.ID, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, page.Total)
	assert.True(t, page.HasNext)
	require.Len(t, page.Items, 2)
	assert.EqualValues(t, 3, page.Items[0].SubmissionSeq)
	assert.EqualValues(t, 4, page.Items[1].SubmissionSeq)

	detail, err := svc.GetSubmission(ctx, form.ID, page.Items[0].ID)
	require.NoError(t, err)
	assert.Equal(t, []core.Answer{
		{FieldKey: "email", Value: "a@b.co"},
		{FieldKey: "name", Value: "n2"},
		{FieldKey: "priority", Value: "low"},
	}, detail.Answers)

	_, err = svc.GetSubmission(ctx, form.ID+1000, page.Items[0].ID)
	assert.True(t, core.IsKind(err, core.KindNotFound))

	_, err = svc.ListSubmissions(ctx, 9999, 1, 20)
	assert.True(t, core.IsKind(err, core.KindNotFound))
}

func TestDeleteForm(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()
	form := publishedIntake(t, svc)

	sub, err := svc.Submit(ctx, form.Slug, map[string]string{"name": "A", "email": "a@b.co", "priority": "low"})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteForm(ctx, form.ID))

	_, err = svc.GetForm(ctx, form.ID)
	assert.True(t, core.IsKind(err, core.KindNotFound))
	_, err = svc.GetSubmission(ctx, form.ID, sub.ID)
	assert.True(t, core.IsKind(err, core.KindNotFound))

	err = svc.DeleteForm(ctx, form.ID)
	assert.True(t, core.IsKind(err, core.KindNotFound))

	// The slug is free again.
	again, err := svc.CreateForm(ctx, "Customer Intake", "")
	require.NoError(t, err)
	assert.Equal(t, "customer-intake", again.Slug)
}

func exportString(t *testing.T, svc *core.Service, formID int64) string {
	t.Helper()
	export, err := svc.ExportCSV(context.Background(), formID, core.ExportVersionV1)
	require.NoError(t, err)

	var sb strings.Builder
	_, err = export.Stream(context.Background(), &sb)
	require.NoError(t, err)
	return sb.String()
}

func TestExportCSV(t *testing.T) {
	svc, m := newTestService(t, nil)
	ctx := context.Background()
	form := publishedIntake(t, svc)

	assert.Equal(t, "submission_id,created_at,name,email,priority\n", exportString(t, svc, form.ID))

	a, err := svc.Submit(ctx, form.Slug, map[string]string{"name": "Lovelace, Ada", "email": "ada@example.com", "priority": "high"})
	require.NoError(t, err)
	b, err := svc.Submit(ctx, form.Slug, map[string]string{"name": `Bob "B"`, "email": "bob@example.com", "priority": "low"})
	require.NoError(t, err)

	want := "submission_id,created_at,name,email,priority\n" +
		fmt.Sprintf("%d,%d,\"Lovelace, Ada\",ada@example.com,high\n", a.ID, fixedNow) +
		fmt.Sprintf("%d,%d,\"Bob \"\"B\"\"\",bob@example.com,low\n", b.ID, fixedNow)

	first := exportString(t, svc, form.ID)
	assert.Equal(t, want, first)
	assert.Equal(t, first, exportString(t, svc, form.ID))
	assert.EqualValues(t, 4, m.exportRows.Load())

	export, err := svc.ExportCSV(ctx, form.ID, core.ExportVersionV1)
	require.NoError(t, err)
	assert.Equal(t, "customer-intake-submissions.csv", export.Filename())
	assert.Equal(t, []string{"submission_id", "created_at", "name", "email", "priority"}, export.Header())
}

func TestExportCSV_Errors(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()
	form := publishedIntake(t, svc)

	_, err := svc.ExportCSV(ctx, form.ID, "v2")
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindValidation))
	assert.EqualError(t, err, "unsupported export version: v2")

	_, err = svc.ExportCSV(ctx, 9999, core.ExportVersionV1)
	assert.True(t, core.IsKind(err, core.KindNotFound))
}

func TestExportCSV_StopEarlyReleasesSlot(t *testing.T) {
	limiter := core.NewExportLimiter(1, 50*time.Millisecond)
	svc := core.NewService(memstore.New(), core.Options{
		Clock:         core.FixedClock(fixedNow),
		ExportLimiter: limiter,
	})
	ctx := context.Background()
	form := publishedIntake(t, svc)
	for range 3 {
		_, err := svc.Submit(ctx, form.Slug, map[string]string{"name": "A", "email": "a@b.co", "priority": "low"})
		require.NoError(t, err)
	}

	export, err := svc.ExportCSV(ctx, form.ID, core.ExportVersionV1)
	require.NoError(t, err)

	chunks := 0
	for chunk, err := range export.Chunks(ctx) {
		require.NoError(t, err)
		require.True(t, strings.HasSuffix(chunk, "\n"))
		chunks++
		if chunks == 2 {
			break
		}
	}
	assert.Equal(t, 2, chunks)
	assert.Zero(t, limiter.ActiveCount())

	// While one export holds the only slot, another one times out.
	require.NoError(t, limiter.Acquire(ctx))
	_, err = export.Stream(ctx, &strings.Builder{})
	assert.ErrorIs(t, err, core.ErrTooManyExports)
	limiter.Release()
}
