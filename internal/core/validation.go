package core

// validation.go is the field validation engine.
//
// It works at two points in a form's life:
//  1. Definition time: NormalizeFieldInputs turns operator input into
//     FieldDefinitions (keys, types, select options, positions).
//  2. Submission time: NormalizeAnswers checks raw values against the stored
//     fields of a published version and returns canonical text per key.
//
// The per-type rules are a closed switch over FieldType. A type outside the
// enumeration is rejected at both points.

import (
	"cmp"
	"slices"
	"strings"
)

// NormalizeFieldInputs validates operator-supplied fields and returns them in
// input order with positions assigned 0..n-1.
func NormalizeFieldInputs(inputs []FieldInput) ([]FieldDefinition, error) {
	defs := make([]FieldDefinition, 0, len(inputs))
	seen := make(map[string]struct{}, len(inputs))

	for i, in := range inputs {
		if strings.TrimSpace(in.Key) == "" {
			return nil, Validationf("field key is required")
		}
		key := NormalizeFieldKey(in.Key)
		if _, dup := seen[key]; dup {
			return nil, Conflictf("duplicate field key: %s", key)
		}
		seen[key] = struct{}{}

		label := strings.TrimSpace(in.Label)
		if label == "" {
			return nil, fieldError(key, "field label is required")
		}

		ft, ok := ParseFieldType(in.Type)
		if !ok {
			return nil, fieldError(key, "unsupported field type: %s", strings.TrimSpace(in.Type))
		}

		def := FieldDefinition{
			Key:      key,
			Label:    label,
			Type:     ft,
			Required: in.Required,
			Position: i,
		}
		if ft == FieldSelect {
			def.Options = cleanOptions(in.Options)
			if len(def.Options) == 0 {
				return nil, fieldError(key, "select field requires options")
			}
		}
		defs = append(defs, def)
	}

	return defs, nil
}

// SortFields orders fields by (position, id) in place.
func SortFields(fields []Field) {
	slices.SortFunc(fields, func(a, b Field) int {
		if c := cmp.Compare(a.Position, b.Position); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

// NormalizeAnswers validates raw values against fields and returns one
// normalized value per field key. Keys in raw that match no field are
// ignored; fields missing from raw are treated as empty.
//
// Fields are checked in (position, id) order and the first failure wins.
func NormalizeAnswers(fields []Field, raw map[string]string) (map[string]string, error) {
	ordered := slices.Clone(fields)
	SortFields(ordered)

	out := make(map[string]string, len(ordered))
	for _, f := range ordered {
		value, err := NormalizeValue(f, raw[f.Key])
		if err != nil {
			return nil, err
		}
		if f.Required && value == "" {
			return nil, fieldError(f.Key, "field '%s' is required", f.Label)
		}
		out[f.Key] = value
	}
	return out, nil
}

// NormalizeValue applies the type rule for f to one raw value.
func NormalizeValue(f Field, raw string) (string, error) {
	value := CleanValue(raw)

	switch f.Type {
	case FieldText, FieldTextarea:
		return value, nil

	case FieldNumber:
		if value != "" && !isNumber(value) {
			return "", fieldError(f.Key, "field '%s' must be a number", f.Label)
		}
		return value, nil

	case FieldEmail:
		if value != "" && !isEmail(value) {
			return "", fieldError(f.Key, "field '%s' must be a valid email", f.Label)
		}
		return value, nil

	case FieldCheckbox:
		return checkboxValue(value), nil

	case FieldDate:
		if value == "" {
			return "", nil
		}
		canonical, ok := canonicalDate(value)
		if !ok {
			return "", fieldError(f.Key, "field '%s' must be YYYY-MM-DD", f.Label)
		}
		return canonical, nil

	case FieldSelect:
		if value != "" && !slices.Contains(f.Options, value) {
			return "", fieldError(f.Key, "field '%s' has invalid option", f.Label)
		}
		return value, nil

	default:
		return "", fieldError(f.Key, "field '%s' has unsupported field type", f.Label)
	}
}

// AnswersFromMap flattens normalized values into answers ordered by key.
func AnswersFromMap(values map[string]string) []Answer {
	answers := make([]Answer, 0, len(values))
	for k, v := range values {
		answers = append(answers, Answer{FieldKey: k, Value: v})
	}
	slices.SortFunc(answers, func(a, b Answer) int {
		return strings.Compare(a.FieldKey, b.FieldKey)
	})
	return answers
}
