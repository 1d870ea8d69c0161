// Package core provides the business logic for building forms and collecting
// submissions. This package has no transport dependencies and can be used by
// the HTTP server, the CLI, or tests.
package core

import (
	"context"
	"fmt"
	"strings"
)

// Status is the lifecycle state shared by forms and form versions.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
)

// FieldType represents the kind of value a form field collects.
// The set is closed; ParseFieldType rejects anything else.
type FieldType int

const (
	FieldText FieldType = iota
	FieldTextarea
	FieldNumber
	FieldEmail
	FieldSelect
	FieldCheckbox
	FieldDate
)

var fieldTypeNames = [...]string{
	FieldText:     "text",
	FieldTextarea: "textarea",
	FieldNumber:   "number",
	FieldEmail:    "email",
	FieldSelect:   "select",
	FieldCheckbox: "checkbox",
	FieldDate:     "date",
}

// String returns the wire name of the field type ("text", "select", ...).
func (ft FieldType) String() string {
	if ft < 0 || int(ft) >= len(fieldTypeNames) {
		return fmt.Sprintf("FieldType(%d)", int(ft))
	}
	return fieldTypeNames[ft]
}

// Valid reports whether ft is one of the enumerated field types.
func (ft FieldType) Valid() bool {
	return ft >= 0 && int(ft) < len(fieldTypeNames)
}

// ParseFieldType converts a wire name to a FieldType.
// Input is trimmed and lower-cased; an empty name means FieldText.
func ParseFieldType(name string) (FieldType, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return FieldText, true
	}
	for i, n := range fieldTypeNames {
		if n == name {
			return FieldType(i), true
		}
	}
	return 0, false
}

func (ft FieldType) MarshalText() ([]byte, error) {
	if !ft.Valid() {
		return nil, fmt.Errorf("invalid field type %d", int(ft))
	}
	return []byte(ft.String()), nil
}

func (ft *FieldType) UnmarshalText(b []byte) error {
	parsed, ok := ParseFieldType(string(b))
	if !ok {
		return fmt.Errorf("unsupported field type: %s", b)
	}
	*ft = parsed
	return nil
}

// Form is the top-level entity an operator manages. ActiveVersionID always
// points at exactly one FormVersion owned by the form.
type Form struct {
	ID              int64
	Title           string
	Slug            string
	Status          Status
	ActiveVersionID int64
	CreatedAt       int64
	UpdatedAt       int64
}

// FormVersion is a numbered snapshot of a form's field set.
// PublishedAt is nil until the version is published.
type FormVersion struct {
	ID            int64
	FormID        int64
	VersionNumber int
	Status        Status
	CreatedAt     int64
	PublishedAt   *int64
}

// Field is a stored field definition belonging to one FormVersion.
type Field struct {
	ID            int64
	FormVersionID int64
	Key           string
	Label         string
	Type          FieldType
	Required      bool
	Position      int
	Options       []string // select only
}

// FieldInput is an unvalidated field definition as supplied by an operator.
type FieldInput struct {
	Key      string   `json:"key"`
	Label    string   `json:"label"`
	Type     string   `json:"field_type"`
	Required bool     `json:"required"`
	Options  []string `json:"options,omitempty"`
}

// FieldDefinition is a normalized field ready to be stored.
type FieldDefinition struct {
	Key      string
	Label    string
	Type     FieldType
	Required bool
	Position int
	Options  []string
}

// Submission is one accepted response to a published form.
// Seq is dense per form: 1..N with no gaps.
type Submission struct {
	ID            int64
	FormID        int64
	FormVersionID int64
	Seq           int64
	CreatedAt     int64
}

// Answer is the normalized value stored for one field of a submission.
type Answer struct {
	FieldKey string `json:"field_key"`
	Value    string `json:"value"`
}

// ExportRecord is a committed submission with its answers keyed by field key.
type ExportRecord struct {
	Submission Submission
	Answers    map[string]string
}

// NewForm carries what a store needs to create a form together with version 1.
type NewForm struct {
	Title string
	Slug  string
	Now   int64
}

// Store is the transactional persistence boundary used by all services.
type Store interface {
	// InTx runs fn inside one atomic unit. Any error returned by fn, or a
	// panic, rolls back every write made through tx.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// StreamSubmissions calls fn for each committed submission of the form in
	// (created_at, id) order. Iteration stops at the first error from fn.
	StreamSubmissions(ctx context.Context, formID int64, fn func(ExportRecord) error) error

	// Ping checks that the store is reachable.
	Ping(ctx context.Context) error
}

// Tx exposes the repository operations available inside a transaction.
// Lookups of missing rows return a NotFound *Error.
type Tx interface {
	CreateForm(ctx context.Context, f NewForm) (Form, error)
	GetForm(ctx context.Context, id int64) (Form, error)
	GetFormBySlug(ctx context.Context, slug string) (Form, error)
	// SlugsWithPrefix returns base itself and every "base-*" slug in use.
	SlugsWithPrefix(ctx context.Context, base string) ([]string, error)
	// SlugOwner returns the id of the form holding slug, if any.
	SlugOwner(ctx context.Context, slug string) (int64, bool, error)
	ListForms(ctx context.Context, offset, limit int) ([]Form, int, error)
	UpdateForm(ctx context.Context, id int64, title, slug string, now int64) error
	DeleteForm(ctx context.Context, id int64) error
	TouchForm(ctx context.Context, id int64, now int64) error

	GetVersion(ctx context.Context, id int64) (FormVersion, error)
	// LockVersion reads the version and holds a row lock on it until the
	// transaction ends. Field edits and publishing take it before checking
	// status, so the two never interleave.
	LockVersion(ctx context.Context, id int64) (FormVersion, error)
	// ListFields returns the version's fields ordered by (position, id).
	ListFields(ctx context.Context, versionID int64) ([]Field, error)
	ReplaceFields(ctx context.Context, versionID int64, defs []FieldDefinition) ([]Field, error)
	MarkPublished(ctx context.Context, formID, versionID int64, now int64) error

	// InsertSubmission assigns the next submission_seq for the form in the
	// same statement as the insert. A detected duplicate sequence surfaces
	// as ErrSequenceConflict.
	InsertSubmission(ctx context.Context, formID, versionID int64, now int64) (Submission, error)
	InsertAnswers(ctx context.Context, submissionID int64, answers []Answer) error
	ListSubmissions(ctx context.Context, formID int64, offset, limit int) ([]Submission, int, error)
	GetSubmission(ctx context.Context, formID, submissionID int64) (Submission, error)
	// ListAnswers returns the submission's answers ordered by field_key.
	ListAnswers(ctx context.Context, submissionID int64) ([]Answer, error)
}
