package analyzer

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	DefaultMinTokenLength = 2
	DefaultMaxTokenLength = 30
)

// literalsAndComments matches, left to right, single-line quoted literals,
// line comments and block comments so that a "//" inside a string is never
// mistaken for a comment.
var literalsAndComments = regexp.MustCompile(`"(?:\\.|[^"\\\n])*"|'(?:\\.|[^'\\\n])*'|//[^\n]*|/\*[\s\S]*?\*/`)

type TokenSet map[string]struct{}

type Tokenizer struct {
	minLen int
	maxLen int
}

func NewTokenizer(minLen, maxLen int) *Tokenizer {
	if minLen <= 0 {
		minLen = DefaultMinTokenLength
	}
	if maxLen < minLen {
		maxLen = DefaultMaxTokenLength
	}
	return &Tokenizer{minLen: minLen, maxLen: maxLen}
}

// Tokens strips literals and comments, splits on non-word characters and
// keeps lowercase tokens within the configured length bounds.
func (t *Tokenizer) Tokens(text string) TokenSet {
	set := make(TokenSet)
	if text == "" {
		return set
	}

	stripped := literalsAndComments.ReplaceAllString(text, " ")
	fields := strings.FieldsFunc(stripped, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})

	for _, f := range fields {
		n := utf8.RuneCountInString(f)
		if n < t.minLen || n > t.maxLen {
			continue
		}
		set[strings.ToLower(f)] = struct{}{}
	}

	return set
}
