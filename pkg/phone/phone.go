package phone

import (
	"errors"
	"regexp"
	"strings"
)

var (
	// ErrEmpty indicates the input contained no usable characters
	ErrEmpty = errors.New("phone number is empty")
	// ErrInvalid indicates the input did not normalize to a valid E.164 number
	ErrInvalid = errors.New("phone number is not a valid E.164 number")
)

var e164Pattern = regexp.MustCompile(`^\+[0-9]{6,15}$`)
var bareDigits = regexp.MustCompile(`^[0-9]{6,15}$`)

// Number is a validated phone number. E164 carries the leading plus,
// Canonical is the same digits without it. Instances only come out of Parse.
type Number struct {
	E164      string
	Canonical string
}

// Parse normalizes raw input into an E.164 number. It strips whitespace and
// hyphens, rewrites a leading international 00 prefix to +, and accepts bare
// 6-15 digit input by prepending +.
func Parse(raw string) (Number, error) {
	normalized := normalize(raw)
	if normalized == "" {
		return Number{}, ErrEmpty
	}

	if !e164Pattern.MatchString(normalized) {
		return Number{}, ErrInvalid
	}

	return Number{
		E164:      normalized,
		Canonical: normalized[1:],
	}, nil
}

// Normalize is the permissive variant of Parse: invalid input yields an
// empty string instead of an error, usable as an absent-value sentinel.
func Normalize(raw string) string {
	n, err := Parse(raw)
	if err != nil {
		return ""
	}
	return n.E164
}

// Canonical returns the canonical (no leading plus) form of raw, or an
// empty string when raw is not a valid number.
func Canonical(raw string) string {
	n, err := Parse(raw)
	if err != nil {
		return ""
	}
	return n.Canonical
}

func normalize(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, "-", "")
	if s == "" {
		return ""
	}

	if strings.HasPrefix(s, "00") && len(s) > 2 {
		s = "+" + s[2:]
	}

	if !strings.HasPrefix(s, "+") && bareDigits.MatchString(s) {
		s = "+" + s
	}

	return s
}
