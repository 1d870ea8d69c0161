package core

import (
	"context"
	"fmt"

	"github.com/JonMunkholm/formsvc/internal/logging"
)

// DemoSlug is the slug of the form created by SeedDemo.
const DemoSlug = "demo-intake"

// DemoFields is the field set of the demo form.
func DemoFields() []FieldInput {
	return []FieldInput{
		{Key: "name", Label: "Name", Type: "text", Required: true},
		{Key: "email", Label: "Email", Type: "email", Required: true},
		{Key: "priority", Label: "Priority", Type: "select", Required: true, Options: []string{"low", "normal", "high"}},
	}
}

// SeedDemo creates and publishes the "Demo Intake" form unless a form with
// DemoSlug already exists. created reports whether anything was written.
func (s *Service) SeedDemo(ctx context.Context) (form FormDetail, created bool, err error) {
	existing, err := s.GetFormBySlug(ctx, DemoSlug)
	switch {
	case err == nil:
		return existing, false, nil
	case !IsKind(err, KindNotFound):
		return FormDetail{}, false, fmt.Errorf("seed demo: %w", err)
	}

	form, err = s.CreateForm(ctx, "Demo Intake", DemoSlug)
	if err != nil {
		return FormDetail{}, false, fmt.Errorf("seed demo: %w", err)
	}
	if _, err = s.ReplaceFields(ctx, form.ID, DemoFields()); err != nil {
		return FormDetail{}, false, fmt.Errorf("seed demo: %w", err)
	}
	if form, err = s.PublishForm(ctx, form.ID); err != nil {
		return FormDetail{}, false, fmt.Errorf("seed demo: %w", err)
	}

	logging.WithFields(ctx, "form_id", form.ID, "slug", form.Slug).Info("demo form seeded")
	return form, true, nil
}
