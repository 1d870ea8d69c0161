package core

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	slugInvalidRun = regexp.MustCompile(`[^a-z0-9-]+`)
	slugDashRun    = regexp.MustCompile(`-{2,}`)
)

// FallbackSlug is used when text contains nothing slug-safe.
const FallbackSlug = "form"

// NormalizeSlug turns arbitrary text into a URL-safe slug.
//
//	"Customer Intake!" -> "customer-intake"
//	"  --  "           -> "form"
func NormalizeSlug(text string) string {
	s := strings.ToLower(strings.TrimSpace(text))
	s = slugInvalidRun.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	s = slugDashRun.ReplaceAllString(s, "-")
	if s == "" {
		return FallbackSlug
	}
	return s
}

// ResolveUniqueSlug returns base if unused, otherwise the first free
// candidate among base-2, base-3, ...
func ResolveUniqueSlug(base string, taken map[string]struct{}) string {
	if _, ok := taken[base]; !ok {
		return base
	}
	for n := 2; ; n++ {
		candidate := base + "-" + strconv.Itoa(n)
		if _, ok := taken[candidate]; !ok {
			return candidate
		}
	}
}

// NormalizeFieldKey derives a field key: slug rules with underscores as
// the separator.
func NormalizeFieldKey(raw string) string {
	return strings.ReplaceAll(NormalizeSlug(raw), "-", "_")
}
