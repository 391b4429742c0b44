package moderation

import (
	"bufio"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"
	"github.com/samber/lo"
)

//go:embed censored/*
var censoredFolder embed.FS

type Moderator struct {
	matcher *goahocorasick.Machine
	log     *slog.Logger
}

// NewModerator initializes the Aho-Corasick automaton with a normalized version of the provided censored words list.
// Words that normalize to nothing (pure punctuation, blanks) are ignored.
func NewModerator(censoredWords []string, log *slog.Logger) (*Moderator, error) {
	patterns := lo.FilterMap(censoredWords, func(word string, _ int) ([]rune, bool) {
		normalized := normalizeRunes([]rune(word))
		return normalized, len(normalized) > 0
	})
	patterns = lo.UniqBy(patterns, func(p []rune) string { return string(p) })
	if len(patterns) == 0 {
		return &Moderator{log: log}, nil
	}

	m := new(goahocorasick.Machine)
	if err := m.Build(patterns); err != nil {
		return nil, err
	}
	return &Moderator{matcher: m, log: log}, nil
}

// NewDefaultModerator builds a Moderator from the embedded dictionaries.
func NewDefaultModerator(log *slog.Logger) (*Moderator, error) {
	words, err := loadCensored(censoredFolder, "censored")
	if err != nil {
		return nil, err
	}
	log.Debug(fmt.Sprintf("%d censored words loaded", len(words)))
	return NewModerator(words, log)
}

// IsProfane reports whether text contains a censored word. Words are split
// on whitespace, then leet speak, case and punctuation are normalized away
// inside each word.
func (m *Moderator) IsProfane(text string) bool {
	return len(m.Matches(text)) > 0
}

// Matches returns the censored words found in text, in order of appearance.
// Only whole words match: "Scunthorpe" is not flagged.
func (m *Moderator) Matches(text string) []string {
	if m.matcher == nil {
		return nil
	}
	var found []string
	for _, token := range strings.Fields(text) {
		normalized := normalizeRunes([]rune(token))
		if len(normalized) == 0 {
			continue
		}
		terms := m.matcher.MultiPatternSearch(normalized, false)
		word, ok := lo.Find(terms, func(term *goahocorasick.Term) bool {
			return term.Pos == 0 && len(term.Word) == len(normalized)
		})
		if ok {
			found = append(found, string(word.Word))
		}
	}
	return found
}

// loadCensored reads one word per line from every file under dir.
func loadCensored(fsys fs.FS, dir string) ([]string, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, err
	}
	var words []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		f, err := fsys.Open(dir + "/" + entry.Name())
		if err != nil {
			return nil, err
		}
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			if word := strings.TrimSpace(scanner.Text()); word != "" {
				words = append(words, word)
			}
		}
		_ = f.Close()
		if err := scanner.Err(); err != nil {
			return nil, err
		}
	}
	return words, nil
}

// normalizeRunes applies simplification and noise removal to a slice of runes.
func normalizeRunes(input []rune) []rune {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		clean := simplifyRune(r)
		if isNoise(clean) {
			continue
		}
		out = append(out, unicode.ToLower(clean))
	}
	return out
}

// simplifyRune maps common Leet speak characters back to their standard alphabet counterparts.
func simplifyRune(r rune) rune {
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

// isNoise identifies characters that should be ignored during the pattern matching phase.
func isNoise(r rune) bool {
	return unicode.IsPunct(r) || unicode.IsSpace(r) || unicode.IsSymbol(r)
}
