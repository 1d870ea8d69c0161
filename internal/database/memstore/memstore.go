// Package memstore is an in-memory core.Store for tests and database-free
// CLI runs. Every transaction holds one mutex and works on a copy of the
// state that replaces the committed state only on success, so failed
// commands leave nothing behind. It is correct within a single process only.
package memstore

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/JonMunkholm/formsvc/internal/core"
)

type state struct {
	nextID      int64
	forms       map[int64]core.Form
	versions    map[int64]core.FormVersion
	fields      map[int64][]core.Field // by version id
	submissions map[int64]core.Submission
	answers     map[int64][]core.Answer // by submission id
}

func newState() *state {
	return &state{
		forms:       make(map[int64]core.Form),
		versions:    make(map[int64]core.FormVersion),
		fields:      make(map[int64][]core.Field),
		submissions: make(map[int64]core.Submission),
		answers:     make(map[int64][]core.Answer),
	}
}

func (s *state) clone() *state {
	c := &state{
		nextID:      s.nextID,
		forms:       maps.Clone(s.forms),
		versions:    maps.Clone(s.versions),
		fields:      make(map[int64][]core.Field, len(s.fields)),
		submissions: maps.Clone(s.submissions),
		answers:     make(map[int64][]core.Answer, len(s.answers)),
	}
	for k, v := range s.fields {
		c.fields[k] = slices.Clone(v)
	}
	for k, v := range s.answers {
		c.answers[k] = slices.Clone(v)
	}
	return c
}

func (s *state) id() int64 {
	s.nextID++
	return s.nextID
}

// Store is the in-memory core.Store.
type Store struct {
	mu    sync.Mutex
	state *state
}

var _ core.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{state: newState()}
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx core.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	if err := fn(ctx, &tx{st: work}); err != nil {
		return err
	}
	s.state = work
	return nil
}

// StreamSubmissions snapshots the form's submissions and then calls fn
// without holding the lock.
func (s *Store) StreamSubmissions(ctx context.Context, formID int64, fn func(core.ExportRecord) error) error {
	s.mu.Lock()
	var records []core.ExportRecord
	for _, sub := range s.state.submissions {
		if sub.FormID != formID {
			continue
		}
		answers := make(map[string]string, len(s.state.answers[sub.ID]))
		for _, a := range s.state.answers[sub.ID] {
			answers[a.FieldKey] = a.Value
		}
		records = append(records, core.ExportRecord{Submission: sub, Answers: answers})
	}
	s.mu.Unlock()

	slices.SortFunc(records, func(a, b core.ExportRecord) int {
		return compareSubmissions(a.Submission, b.Submission)
	})
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func compareSubmissions(a, b core.Submission) int {
	if c := cmp.Compare(a.CreatedAt, b.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// tx implements core.Tx against a private copy of the state.
type tx struct {
	st *state
}

func (t *tx) CreateForm(_ context.Context, nf core.NewForm) (core.Form, error) {
	for _, f := range t.st.forms {
		if f.Slug == nf.Slug {
			return core.Form{}, core.Conflictf("slug already exists")
		}
	}
	form := core.Form{
		ID:        t.st.id(),
		Title:     nf.Title,
		Slug:      nf.Slug,
		Status:    core.StatusDraft,
		CreatedAt: nf.Now,
		UpdatedAt: nf.Now,
	}
	version := core.FormVersion{
		ID:            t.st.id(),
		FormID:        form.ID,
		VersionNumber: 1,
		Status:        core.StatusDraft,
		CreatedAt:     nf.Now,
	}
	form.ActiveVersionID = version.ID
	t.st.forms[form.ID] = form
	t.st.versions[version.ID] = version
	return form, nil
}

func (t *tx) GetForm(_ context.Context, id int64) (core.Form, error) {
	f, ok := t.st.forms[id]
	if !ok {
		return core.Form{}, core.NotFoundf("form not found")
	}
	return f, nil
}

func (t *tx) GetFormBySlug(_ context.Context, slug string) (core.Form, error) {
	for _, f := range t.st.forms {
		if f.Slug == slug {
			return f, nil
		}
	}
	return core.Form{}, core.NotFoundf("form not found")
}

func (t *tx) SlugsWithPrefix(_ context.Context, base string) ([]string, error) {
	var out []string
	for _, f := range t.st.forms {
		if f.Slug == base || strings.HasPrefix(f.Slug, base+"-") {
			out = append(out, f.Slug)
		}
	}
	return out, nil
}

func (t *tx) SlugOwner(_ context.Context, slug string) (int64, bool, error) {
	for _, f := range t.st.forms {
		if f.Slug == slug {
			return f.ID, true, nil
		}
	}
	return 0, false, nil
}

func (t *tx) ListForms(_ context.Context, offset, limit int) ([]core.Form, int, error) {
	all := slices.Collect(maps.Values(t.st.forms))
	slices.SortFunc(all, func(a, b core.Form) int {
		if c := cmp.Compare(a.CreatedAt, b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return window(all, offset, limit), len(all), nil
}

func (t *tx) UpdateForm(_ context.Context, id int64, title, slug string, now int64) error {
	f, ok := t.st.forms[id]
	if !ok {
		return core.NotFoundf("form not found")
	}
	for _, other := range t.st.forms {
		if other.ID != id && other.Slug == slug {
			return core.Conflictf("slug already exists")
		}
	}
	f.Title, f.Slug, f.UpdatedAt = title, slug, now
	t.st.forms[id] = f
	return nil
}

func (t *tx) DeleteForm(_ context.Context, id int64) error {
	if _, ok := t.st.forms[id]; !ok {
		return core.NotFoundf("form not found")
	}
	delete(t.st.forms, id)
	for vid, v := range t.st.versions {
		if v.FormID == id {
			delete(t.st.versions, vid)
			delete(t.st.fields, vid)
		}
	}
	for sid, s := range t.st.submissions {
		if s.FormID == id {
			delete(t.st.submissions, sid)
			delete(t.st.answers, sid)
		}
	}
	return nil
}

func (t *tx) TouchForm(_ context.Context, id int64, now int64) error {
	f, ok := t.st.forms[id]
	if !ok {
		return core.NotFoundf("form not found")
	}
	f.UpdatedAt = now
	t.st.forms[id] = f
	return nil
}

func (t *tx) GetVersion(_ context.Context, id int64) (core.FormVersion, error) {
	v, ok := t.st.versions[id]
	if !ok {
		return core.FormVersion{}, core.NotFoundf("form version not found")
	}
	return v, nil
}

// LockVersion is GetVersion: every transaction already holds the store mutex.
func (t *tx) LockVersion(ctx context.Context, id int64) (core.FormVersion, error) {
	return t.GetVersion(ctx, id)
}

func (t *tx) ListFields(_ context.Context, versionID int64) ([]core.Field, error) {
	fields := slices.Clone(t.st.fields[versionID])
	core.SortFields(fields)
	return fields, nil
}

func (t *tx) ReplaceFields(_ context.Context, versionID int64, defs []core.FieldDefinition) ([]core.Field, error) {
	if _, ok := t.st.versions[versionID]; !ok {
		return nil, core.NotFoundf("form version not found")
	}
	fields := make([]core.Field, 0, len(defs))
	seen := make(map[string]bool, len(defs))
	for _, d := range defs {
		if seen[d.Key] {
			return nil, core.Conflictf("duplicate field key: %s", d.Key)
		}
		seen[d.Key] = true
		fields = append(fields, core.Field{
			ID:            t.st.id(),
			FormVersionID: versionID,
			Key:           d.Key,
			Label:         d.Label,
			Type:          d.Type,
			Required:      d.Required,
			Position:      d.Position,
			Options:       slices.Clone(d.Options),
		})
	}
	t.st.fields[versionID] = fields
	return slices.Clone(fields), nil
}

func (t *tx) MarkPublished(_ context.Context, formID, versionID int64, now int64) error {
	f, ok := t.st.forms[formID]
	if !ok {
		return core.NotFoundf("form not found")
	}
	v, ok := t.st.versions[versionID]
	if !ok {
		return core.NotFoundf("form version not found")
	}
	published := now
	v.Status, v.PublishedAt = core.StatusPublished, &published
	f.Status, f.UpdatedAt = core.StatusPublished, now
	t.st.versions[versionID] = v
	t.st.forms[formID] = f
	return nil
}

func (t *tx) InsertSubmission(_ context.Context, formID, versionID int64, now int64) (core.Submission, error) {
	if _, ok := t.st.forms[formID]; !ok {
		return core.Submission{}, core.NotFoundf("form not found")
	}
	var maxSeq int64
	for _, s := range t.st.submissions {
		if s.FormID == formID && s.Seq > maxSeq {
			maxSeq = s.Seq
		}
	}
	sub := core.Submission{
		ID:            t.st.id(),
		FormID:        formID,
		FormVersionID: versionID,
		Seq:           maxSeq + 1,
		CreatedAt:     now,
	}
	t.st.submissions[sub.ID] = sub
	return sub, nil
}

func (t *tx) InsertAnswers(_ context.Context, submissionID int64, answers []core.Answer) error {
	if _, ok := t.st.submissions[submissionID]; !ok {
		return core.NotFoundf("submission not found")
	}
	t.st.answers[submissionID] = append(t.st.answers[submissionID], answers...)
	return nil
}

func (t *tx) ListSubmissions(_ context.Context, formID int64, offset, limit int) ([]core.Submission, int, error) {
	var subs []core.Submission
	for _, s := range t.st.submissions {
		if s.FormID == formID {
			subs = append(subs, s)
		}
	}
	slices.SortFunc(subs, compareSubmissions)
	return window(subs, offset, limit), len(subs), nil
}

func (t *tx) GetSubmission(_ context.Context, formID, submissionID int64) (core.Submission, error) {
	s, ok := t.st.submissions[submissionID]
	if !ok || s.FormID != formID {
		return core.Submission{}, core.NotFoundf("submission not found")
	}
	return s, nil
}

func (t *tx) ListAnswers(_ context.Context, submissionID int64) ([]core.Answer, error) {
	answers := slices.Clone(t.st.answers[submissionID])
	slices.SortFunc(answers, func(a, b core.Answer) int {
		return strings.Compare(a.FieldKey, b.FieldKey)
	})
	return answers, nil
}

func window[T any](items []T, offset, limit int) []T {
	if offset < 0 || limit <= 0 || offset >= len(items) {
		return nil
	}
	end := min(offset+limit, len(items))
	return items[offset:end]
}
