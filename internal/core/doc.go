// Package core provides the business logic for building forms and collecting
// submissions.
//
// The package holds all domain rules independent of any transport. It is
// used by the HTTP server, the formsctl CLI and tests without modification.
//
// # Architecture
//
//   - Slugs: [NormalizeSlug] and [ResolveUniqueSlug] derive URL-safe,
//     globally unique form identifiers.
//   - Field engine: [NormalizeFieldInputs] validates definitions and
//     [NormalizeAnswers] validates submitted values against a closed set of
//     [FieldType] rules.
//   - Lifecycle: [Service.CreateForm], [Service.ReplaceFields] and
//     [Service.PublishForm] move a form from draft to published. A published
//     version is immutable.
//   - Sequencer: [Service.Submit] stores a submission with a dense per-form
//     sequence number.
//   - Export: [Service.ExportCSV] prepares a restartable CSV stream.
//
// # Persistence
//
// Services talk to a [Store]. Every command runs inside [Store.InTx], so a
// failing command leaves no partial writes. The store computes the next
// submission sequence in the same statement that inserts the submission;
// [ErrSequenceConflict] from the store makes Submit retry the transaction.
//
// # Errors
//
// Domain failures are *[Error] values with a [Kind] of validation, conflict
// or not_found. Anything else is an infrastructure error. [MapError] turns
// either into a client-facing [UserMessage].
//
// # Usage
//
//	svc := core.NewService(store, core.Options{})
//	form, err := svc.CreateForm(ctx, "Customer Intake", "")
//	_, err = svc.ReplaceFields(ctx, form.ID, []core.FieldInput{
//	    {Key: "email", Label: "Email", Type: "email", Required: true},
//	})
//	_, err = svc.PublishForm(ctx, form.ID)
//	sub, err := svc.Submit(ctx, form.Slug, map[string]string{"email": "a@b.co"})
package core
