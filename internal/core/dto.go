package core

// FieldDetail is the public shape of a stored field.
type FieldDetail struct {
	ID        int64     `json:"id"`
	Key       string    `json:"key"`
	Label     string    `json:"label"`
	FieldType FieldType `json:"field_type"`
	Required  bool      `json:"required"`
	Position  int       `json:"position"`
	Options   []string  `json:"options"`
}

// FormSummary is a form without its fields, used in listings.
type FormSummary struct {
	ID              int64  `json:"id"`
	Title           string `json:"title"`
	Slug            string `json:"slug"`
	Status          Status `json:"status"`
	ActiveVersionID int64  `json:"active_version_id"`
	CreatedAt       int64  `json:"created_at"`
	UpdatedAt       int64  `json:"updated_at"`
}

// FormDetail is a form with the fields of its active version.
type FormDetail struct {
	FormSummary
	Fields []FieldDetail `json:"fields"`
}

// SubmissionSummary identifies one submission and its sequence number.
type SubmissionSummary struct {
	ID            int64 `json:"id"`
	FormID        int64 `json:"form_id"`
	FormVersionID int64 `json:"form_version_id"`
	SubmissionSeq int64 `json:"submission_seq"`
	CreatedAt     int64 `json:"created_at"`
}

// SubmissionDetail adds the stored answers, ordered by field key.
type SubmissionDetail struct {
	SubmissionSummary
	Answers []Answer `json:"answers"`
}

func toFormSummary(f Form) FormSummary {
	return FormSummary{
		ID:              f.ID,
		Title:           f.Title,
		Slug:            f.Slug,
		Status:          f.Status,
		ActiveVersionID: f.ActiveVersionID,
		CreatedAt:       f.CreatedAt,
		UpdatedAt:       f.UpdatedAt,
	}
}

func toFieldDetail(f Field) FieldDetail {
	opts := f.Options
	if opts == nil {
		opts = []string{}
	}
	return FieldDetail{
		ID:        f.ID,
		Key:       f.Key,
		Label:     f.Label,
		FieldType: f.Type,
		Required:  f.Required,
		Position:  f.Position,
		Options:   opts,
	}
}

func toFormDetail(f Form, fields []Field) FormDetail {
	details := make([]FieldDetail, len(fields))
	for i, fld := range fields {
		details[i] = toFieldDetail(fld)
	}
	return FormDetail{FormSummary: toFormSummary(f), Fields: details}
}

func toSubmissionSummary(s Submission) SubmissionSummary {
	return SubmissionSummary{
		ID:            s.ID,
		FormID:        s.FormID,
		FormVersionID: s.FormVersionID,
		SubmissionSeq: s.Seq,
		CreatedAt:     s.CreatedAt,
	}
}
