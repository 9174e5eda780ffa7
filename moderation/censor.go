// Package moderation masks censored words in chat bodies before fan-out.
// Matching runs on a normalized view of the text (lowercased, leet speak
// folded, punctuation ignored) so trivial obfuscation does not bypass it.
package moderation

import (
	"bufio"
	"embed"
	"strings"
	"unicode"

	"chat-relay/errors"

	goahocorasick "github.com/anknown/ahocorasick"
)

//go:embed wordlists/*.txt
var wordlistFS embed.FS

// Censor holds the compiled Aho-Corasick automaton over normalized patterns.
// It is immutable after construction and safe for concurrent use.
type Censor struct {
	machine     *goahocorasick.Machine
	replacement rune
}

// NewCensor compiles the automaton from a word list.
func NewCensor(words []string, replacement rune) (*Censor, error) {
	if len(words) == 0 {
		return nil, errors.ErrEmptyWordlist
	}
	patterns := make([][]rune, 0, len(words))
	for _, word := range words {
		if normalized := normalize([]rune(word)); len(normalized) > 0 {
			patterns = append(patterns, normalized)
		}
	}
	machine := new(goahocorasick.Machine)
	if err := machine.Build(patterns); err != nil {
		return nil, err
	}
	return &Censor{machine: machine, replacement: replacement}, nil
}

// NewEmbeddedCensor loads every embedded word list (one word per line,
// '#' starts a comment) and compiles a single automaton over all of them.
func NewEmbeddedCensor(replacement rune) (*Censor, error) {
	entries, err := wordlistFS.ReadDir("wordlists")
	if err != nil {
		return nil, err
	}
	var words []string
	for _, entry := range entries {
		file, err := wordlistFS.Open("wordlists/" + entry.Name())
		if err != nil {
			return nil, err
		}
		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			words = append(words, line)
		}
		_ = file.Close()
		if err := scanner.Err(); err != nil {
			return nil, err
		}
	}
	return NewCensor(words, replacement)
}

// Apply masks every censored pattern found in the text, preserving length
// and spacing of the original.
func (c *Censor) Apply(original string) string {
	origRunes := []rune(original)
	normalized := make([]rune, 0, len(origRunes))
	// origIdx maps each normalized rune back to its position in the original.
	origIdx := make([]int, 0, len(origRunes))
	for i, r := range origRunes {
		folded := foldLeet(r)
		if isNoise(folded) {
			continue
		}
		normalized = append(normalized, unicode.ToLower(folded))
		origIdx = append(origIdx, i)
	}
	if len(normalized) == 0 {
		return original
	}

	matches := c.machine.MultiPatternSearch(normalized, false)
	if len(matches) == 0 {
		return original
	}

	for _, match := range matches {
		start := match.Pos
		end := start + len(match.Word)
		if start < 0 || end > len(origIdx) {
			continue
		}
		for i := origIdx[start]; i <= origIdx[end-1]; i++ {
			origRunes[i] = c.replacement
		}
	}
	return string(origRunes)
}

// normalize prepares a pattern the same way Apply prepares the text.
func normalize(input []rune) []rune {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		folded := foldLeet(r)
		if isNoise(folded) {
			continue
		}
		out = append(out, unicode.ToLower(folded))
	}
	return out
}

// foldLeet maps common leet speak characters back to their alphabet
// counterparts.
func foldLeet(r rune) rune {
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

// isNoise identifies characters ignored during matching.
func isNoise(r rune) bool {
	return unicode.IsPunct(r) || unicode.IsSpace(r) || unicode.IsSymbol(r)
}
