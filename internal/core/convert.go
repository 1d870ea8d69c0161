package core

// convert.go provides the per-type parsing used when normalizing answers.
//
// Every helper takes an already-trimmed, non-empty value. Stored values stay
// text; these functions only decide acceptability and the canonical form.

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// emailRegex accepts local@domain.tld. RE2's \s is ASCII only; isEmail
// rejects the rest of Unicode whitespace separately.
var emailRegex = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// isoDateLayout is the only accepted date form.
const isoDateLayout = "2006-01-02"

// checkboxTruthy lists the lower-cased inputs that mean "checked".
var checkboxTruthy = map[string]bool{
	"1":    true,
	"true": true,
	"on":   true,
	"yes":  true,
}

// CleanValue trims whitespace and strips a leading byte order mark.
func CleanValue(s string) string {
	s = strings.TrimPrefix(s, "\ufeff")
	return strings.TrimSpace(s)
}

// isNumber reports whether s is a decimal floating point literal.
// Underscores may separate digits ("1_000"). Hex literals are rejected.
// Out-of-range magnitudes still count as numbers.
func isNumber(s string) bool {
	unsigned := strings.TrimLeft(s, "+-")
	if strings.HasPrefix(unsigned, "0x") || strings.HasPrefix(unsigned, "0X") {
		return false
	}
	s, ok := stripDigitSeparators(s)
	if !ok {
		return false
	}
	_, err := strconv.ParseFloat(s, 64)
	return err == nil || errors.Is(err, strconv.ErrRange)
}

// stripDigitSeparators removes underscores that sit between two digits.
// Any other underscore makes the literal invalid.
func stripDigitSeparators(s string) (string, bool) {
	if !strings.Contains(s, "_") {
		return s, true
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '_' {
			b.WriteByte(s[i])
			continue
		}
		if i == 0 || i == len(s)-1 || !isDigit(s[i-1]) || !isDigit(s[i+1]) {
			return "", false
		}
	}
	return b.String(), true
}

func isDigit(c byte) bool {
	return '0' <= c && c <= '9'
}

// isEmail reports whether s has the local@domain.tld shape with no
// whitespace anywhere.
func isEmail(s string) bool {
	return !strings.ContainsFunc(s, unicode.IsSpace) && emailRegex.MatchString(s)
}

// canonicalDate parses a YYYY-MM-DD calendar date and returns it in
// canonical form. ok is false for impossible dates like 2024-02-30.
func canonicalDate(s string) (string, bool) {
	t, err := time.Parse(isoDateLayout, s)
	if err != nil {
		return "", false
	}
	return t.Format(isoDateLayout), true
}

// checkboxValue maps any input to "true" or "false".
func checkboxValue(s string) string {
	if checkboxTruthy[strings.ToLower(s)] {
		return "true"
	}
	return "false"
}

// cleanOptions trims select options and drops empty entries.
func cleanOptions(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, o := range raw {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
