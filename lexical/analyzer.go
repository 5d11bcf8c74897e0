// Package lexical provides text analysis for full-text index fields.
//
// An Analyzer splits text into terms with positions. Positions are preserved
// across removed stop words so that phrase queries keep their gaps.
package lexical

import (
	"sort"
	"strings"
	"unicode"
)

// Term is one analysed token.
type Term struct {
	Text     string
	Position int
}

// Analyzer turns text into terms.
// Implementations must be safe for concurrent use.
type Analyzer interface {
	Name() string
	Analyze(text string) []Term
}

// Texts returns the term texts of ts.
func Texts(ts []Term) []string {
	out := make([]string, len(ts))
	for i := range ts {
		out[i] = ts[i].Text
	}
	return out
}

// Standard splits on anything that is not a letter or digit and lowercases.
type Standard struct{}

// Name implements Analyzer.
func (Standard) Name() string { return "standard" }

// Analyze implements Analyzer.
func (Standard) Analyze(text string) []Term {
	return split(text, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) }, true)
}

// Whitespace splits on whitespace only and keeps case.
type Whitespace struct{}

// Name implements Analyzer.
func (Whitespace) Name() string { return "whitespace" }

// Analyze implements Analyzer.
func (Whitespace) Analyze(text string) []Term {
	return split(text, unicode.IsSpace, false)
}

// Simple splits on non-letters and lowercases.
type Simple struct{}

// Name implements Analyzer.
func (Simple) Name() string { return "simple" }

// Analyze implements Analyzer.
func (Simple) Analyze(text string) []Term {
	return split(text, func(r rune) bool { return !unicode.IsLetter(r) }, true)
}

// Keyword emits the whole input as a single term.
type Keyword struct{}

// Name implements Analyzer.
func (Keyword) Name() string { return "keyword" }

// Analyze implements Analyzer.
func (Keyword) Analyze(text string) []Term {
	if text == "" {
		return nil
	}
	return []Term{{Text: text}}
}

// Stop is the Standard analyzer with stop word removal.
type Stop struct {
	Words map[string]struct{}
}

// NewStop creates a Stop analyzer. If words is empty the English stop word
// list is used.
func NewStop(words ...string) *Stop {
	if len(words) == 0 {
		words = englishStopWords
	}
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[strings.ToLower(w)] = struct{}{}
	}
	return &Stop{Words: set}
}

// Name implements Analyzer.
func (*Stop) Name() string { return "stop" }

// Analyze implements Analyzer.
func (s *Stop) Analyze(text string) []Term {
	terms := Standard{}.Analyze(text)
	out := terms[:0]
	for _, t := range terms {
		if _, ok := s.Words[t.Text]; ok {
			continue
		}
		out = append(out, t)
	}
	return out
}

func split(text string, sep func(rune) bool, lower bool) []Term {
	fields := strings.FieldsFunc(text, sep)
	if len(fields) == 0 {
		return nil
	}
	out := make([]Term, len(fields))
	for i, f := range fields {
		if lower {
			f = strings.ToLower(f)
		}
		out[i] = Term{Text: f, Position: i}
	}
	return out
}

var englishStopWords = []string{
	"a", "an", "and", "are", "as", "at", "be", "but", "by", "for", "if", "in",
	"into", "is", "it", "no", "not", "of", "on", "or", "such", "that", "the",
	"their", "then", "there", "these", "they", "this", "to", "was", "will", "with",
}

var builtin = map[string]Analyzer{
	"standard":   Standard{},
	"whitespace": Whitespace{},
	"simple":     Simple{},
	"keyword":    Keyword{},
	"stop":       NewStop(),
}

// Lookup returns a built-in analyzer by name.
func Lookup(name string) (Analyzer, bool) {
	a, ok := builtin[name]
	return a, ok
}

// Names returns the names of the built-in analyzers, sorted.
func Names() []string {
	names := make([]string, 0, len(builtin))
	for n := range builtin {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// DefaultAnalyzer is used by text fields that do not name one.
const DefaultAnalyzer = "standard"
