package types

import (
	"strings"

	"golang.org/x/text/cases"
)

// Normalize trims surrounding whitespace and case-folds s, so "  Bob " and
// "bob" name the same participant. A new Caser is built per call because
// cases.Caser must not be shared between goroutines.
func Normalize(s string) string {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return ""
	}
	return cases.Fold().String(trimmed)
}

// Validate reports ErrInvalidInput unless both fields are non-empty.
// Callers pass already normalized values.
func (s *Session) Validate() error {
	if s.Username == "" || s.Room == "" {
		return ErrInvalidInput
	}
	return nil
}
