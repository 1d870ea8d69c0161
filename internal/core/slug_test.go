package core

import "testing"

func TestNormalizeSlug(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"title", "Customer Intake", "customer-intake"},
		{"punctuation and spaces", "  Hello, World!! ", "hello-world"},
		{"dash runs collapse", "a - b", "a-b"},
		{"leading and trailing dashes trimmed", "--a--", "a"},
		{"digits kept", "Survey 2024", "survey-2024"},
		{"already a slug", "already-slug-2", "already-slug-2"},
		{"non ascii letters become separators", "Ünïcode", "n-code"},
		{"empty falls back", "", FallbackSlug},
		{"only symbols falls back", "!!!", FallbackSlug},
		{"only dashes falls back", "  --  ", FallbackSlug},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeSlug(tt.input); got != tt.want {
				t.Errorf("NormalizeSlug(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormalizeSlug_Idempotent(t *testing.T) {
	inputs := []string{"Customer Intake", "a - b", "Ünïcode", "", "x"}
	for _, in := range inputs {
		once := NormalizeSlug(in)
		if twice := NormalizeSlug(once); twice != once {
			t.Errorf("NormalizeSlug not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestResolveUniqueSlug(t *testing.T) {
	set := func(slugs ...string) map[string]struct{} {
		m := make(map[string]struct{}, len(slugs))
		for _, s := range slugs {
			m[s] = struct{}{}
		}
		return m
	}

	tests := []struct {
		name  string
		base  string
		taken map[string]struct{}
		want  string
	}{
		{"free", "customer-intake", set(), "customer-intake"},
		{"taken once", "customer-intake", set("customer-intake"), "customer-intake-2"},
		{"first gap wins", "survey", set("survey", "survey-2", "survey-4"), "survey-3"},
		{"suffix alone does not block base", "survey", set("survey-2"), "survey"},
		{"nil set", "form", nil, "form"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveUniqueSlug(tt.base, tt.taken); got != tt.want {
				t.Errorf("ResolveUniqueSlug(%q) = %q, want %q", tt.base, got, tt.want)
			}
		})
	}
}

func TestNormalizeFieldKey(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"First Name", "first_name"},
		{"E-mail", "e_mail"},
		{"zip/code", "zip_code"},
		{"priority", "priority"},
		{"  Phone #  ", "phone"},
	}

	for _, tt := range tests {
		if got := NormalizeFieldKey(tt.input); got != tt.want {
			t.Errorf("NormalizeFieldKey(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
