// Package moderation screens chat text against a censored word list.
package moderation

import (
	"fmt"
	"slices"
	"strings"
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"
)

// Moderator matches each word of a text against the censored words with an
// Aho-Corasick automaton. A Moderator built from an empty list accepts everything. It is
// read-only after construction and safe for concurrent use.
type Moderator struct {
	matcher *goahocorasick.Machine
	words   int
}

// NewModerator builds the automaton over the folded form of words. Entries
// that fold to nothing are skipped.
func NewModerator(words []string) (*Moderator, error) {
	patterns := make([][]rune, 0, len(words))
	seen := make(map[string]bool, len(words))
	for _, word := range words {
		folded := fold([]rune(word))
		if len(folded) == 0 || seen[string(folded)] {
			continue
		}
		seen[string(folded)] = true
		patterns = append(patterns, folded)
	}

	if len(patterns) == 0 {
		return &Moderator{}, nil
	}

	m := new(goahocorasick.Machine)
	if err := m.Build(patterns); err != nil {
		return nil, fmt.Errorf("failed to build censored word matcher: %w", err)
	}
	return &Moderator{matcher: m, words: len(patterns)}, nil
}

// Contains reports whether text holds a censored word as a whole word.
// Case, inner punctuation and letter stand-ins such as "d4rn" are ignored
// within a word, and runs of single letters ("d a r n") are read as one
// word. Words that merely contain a censored one, like "glass", pass.
func (m *Moderator) Contains(text string) bool {
	if m == nil || m.matcher == nil {
		return false
	}
	for _, token := range tokens(text) {
		for _, candidate := range [][]rune{token, trimNoise(token)} {
			if m.matchesWhole(fold(candidate)) {
				return true
			}
		}
	}
	return false
}

func (m *Moderator) matchesWhole(folded []rune) bool {
	if len(folded) == 0 {
		return false
	}
	for _, term := range m.matcher.MultiPatternSearch(folded, false) {
		if term.Pos == 0 && len(term.Word) == len(folded) {
			return true
		}
	}
	return false
}

// Words returns the number of distinct censored patterns.
func (m *Moderator) Words() int {
	if m == nil {
		return 0
	}
	return m.words
}

// tokens splits text on whitespace and joins consecutive one-rune tokens.
func tokens(text string) [][]rune {
	var out [][]rune
	var run []rune
	flush := func() {
		if len(run) > 0 {
			out = append(out, run)
			run = nil
		}
	}
	for _, field := range strings.Fields(text) {
		r := []rune(field)
		if len(r) == 1 {
			run = append(run, r[0])
			continue
		}
		flush()
		out = append(out, r)
	}
	flush()
	return out
}

func trimNoise(token []rune) []rune {
	return []rune(strings.TrimFunc(string(token), isNoise))
}

// fold lowercases and drops noise. Stand-ins are only read as letters inside
// tokens that carry a letter, so "455" stays a number.
func fold(input []rune) []rune {
	leet := slices.ContainsFunc(input, unicode.IsLetter)
	out := make([]rune, 0, len(input))
	for _, r := range input {
		if leet {
			r = unleet(r)
		}
		if isNoise(r) {
			continue
		}
		out = append(out, unicode.ToLower(r))
	}
	return out
}

// unleet maps common digit and symbol stand-ins back to letters.
func unleet(r rune) rune {
	switch r {
	case '4', '@':
		return 'a'
	case '3', '€':
		return 'e'
	case '1', '!', '|':
		return 'i'
	case '0':
		return 'o'
	case '5', '$':
		return 's'
	default:
		return r
	}
}

func isNoise(r rune) bool {
	return unicode.IsPunct(r) || unicode.IsSpace(r) || unicode.IsSymbol(r)
}
