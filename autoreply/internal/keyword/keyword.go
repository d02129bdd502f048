// Package keyword classifies post text against positive and negative keyword
// lists. It is pure: no I/O, no state, deterministic for a given Config.
package keyword

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Result is the outcome of Evaluate.
type Result int

const (
	Pass Result = iota
	RejectNegative
	RejectMissingPositive
)

func (r Result) String() string {
	switch r {
	case Pass:
		return "pass"
	case RejectNegative:
		return "reject_negative"
	case RejectMissingPositive:
		return "reject_missing_positive"
	default:
		return "unknown"
	}
}

// MatchMode selects how keywords are located in text.
type MatchMode string

const (
	MatchSubstring MatchMode = "substring"
	MatchWord      MatchMode = "word"
)

// Config is the filter configuration. It is loaded once and never mutated.
type Config struct {
	Negative []string
	Positive []string // empty means the positive check always passes
	Mode     MatchMode
	// MinLength rejects normalised text shorter than this many runes as
	// RejectMissingPositive. 0 disables the check.
	MinLength int
}

// Verdict carries the Result and the keyword that decided it, if any.
type Verdict struct {
	Result  Result
	Keyword string
	Reason  string
}

// Normalize applies NFKC, lower-cases and trims the text.
func Normalize(text string) string {
	return strings.TrimSpace(strings.ToLower(norm.NFKC.String(text)))
}

// Evaluate classifies text. A negative match always wins over a positive
// match. Empty or whitespace-only text cannot satisfy a non-empty positive
// list.
func Evaluate(text string, cfg Config) Verdict {
	t := Normalize(text)

	for _, kw := range cfg.Negative {
		if k := Normalize(kw); k != "" && contains(t, k, cfg.Mode) {
			return Verdict{Result: RejectNegative, Keyword: kw, Reason: "negative keyword " + quote(kw)}
		}
	}

	if cfg.MinLength > 0 && utf8.RuneCountInString(t) < cfg.MinLength {
		return Verdict{Result: RejectMissingPositive, Reason: "text too short"}
	}

	if len(cfg.Positive) == 0 {
		return Verdict{Result: Pass, Reason: "no positive keywords configured"}
	}
	if t == "" {
		return Verdict{Result: RejectMissingPositive, Reason: "empty text"}
	}
	for _, kw := range cfg.Positive {
		if k := Normalize(kw); k != "" && contains(t, k, cfg.Mode) {
			return Verdict{Result: Pass, Keyword: kw, Reason: "positive keyword " + quote(kw)}
		}
	}
	return Verdict{Result: RejectMissingPositive, Reason: "no positive keyword"}
}

func contains(text, kw string, mode MatchMode) bool {
	if mode != MatchWord {
		return strings.Contains(text, kw)
	}
	for from := 0; from <= len(text)-len(kw); {
		i := strings.Index(text[from:], kw)
		if i < 0 {
			return false
		}
		start := from + i
		end := start + len(kw)
		if boundaryBefore(text, start) && boundaryAfter(text, end) {
			return true
		}
		_, size := utf8.DecodeRuneInString(text[start:])
		from = start + size
	}
	return false
}

func boundaryBefore(s string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return !isWordRune(r)
}

func boundaryAfter(s string, i int) bool {
	if i >= len(s) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(s[i:])
	return !isWordRune(r)
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

func quote(s string) string { return `"` + s + `"` }
