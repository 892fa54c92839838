package validator

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

const (
	groupStudentName = "studentName"
	groupStudentCode = "studentCode"

	placeholderName = "{" + groupStudentName + "}"
	placeholderCode = "{" + groupStudentCode + "}"
)

var ErrNoMatch = errors.New("name does not match filename pattern")

type MatchSource string

const (
	SourceFile   MatchSource = "file"
	SourceFolder MatchSource = "folder"
)

type Match struct {
	StudentName string
	StudentCode string
	Source      MatchSource
}

type FilenameValidator interface {
	// Resolve tries the file name first and then the enclosing folder name.
	Resolve(fileName, folderName string) (*Match, error)
	// Pattern is the configured pattern as written in configuration.
	Pattern() string
}

type Config struct {
	Pattern       string
	CodeDigits    int
	PrefixLetters int
}

type filenameValidator struct {
	pattern string
	re      *regexp.Regexp
	nameIdx int
	codeIdx int
}

// NewFilenameValidator accepts either a template built from the
// {studentName} and {studentCode} placeholders or a raw regular expression
// with named groups of the same names. Matching is case-insensitive.
func NewFilenameValidator(cfg Config) (FilenameValidator, error) {
	if cfg.CodeDigits <= 0 {
		cfg.CodeDigits = 6
	}
	if cfg.PrefixLetters <= 0 {
		cfg.PrefixLetters = 2
	}
	if cfg.PrefixLetters > 8 {
		return nil, fmt.Errorf("student code prefix must be 1-8 letters, got %d", cfg.PrefixLetters)
	}

	expr := cfg.Pattern
	if strings.Contains(expr, placeholderName) || strings.Contains(expr, placeholderCode) {
		expr = expandTemplate(expr, cfg.PrefixLetters, cfg.CodeDigits)
	}
	if !strings.HasPrefix(expr, "(?i)") {
		expr = "(?i)" + expr
	}

	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid filename pattern %q: %w", cfg.Pattern, err)
	}

	codeIdx := re.SubexpIndex(groupStudentCode)
	if codeIdx < 0 {
		return nil, fmt.Errorf("filename pattern %q has no %s group", cfg.Pattern, groupStudentCode)
	}

	return &filenameValidator{
		pattern: cfg.Pattern,
		re:      re,
		nameIdx: re.SubexpIndex(groupStudentName),
		codeIdx: codeIdx,
	}, nil
}

func expandTemplate(template string, prefix, digits int) string {
	var b strings.Builder
	b.WriteString("^")

	rest := template
	for rest != "" {
		nameAt := strings.Index(rest, placeholderName)
		codeAt := strings.Index(rest, placeholderCode)

		next, token := -1, ""
		switch {
		case nameAt >= 0 && (codeAt < 0 || nameAt < codeAt):
			next, token = nameAt, placeholderName
		case codeAt >= 0:
			next, token = codeAt, placeholderCode
		}

		if next < 0 {
			b.WriteString(regexp.QuoteMeta(rest))
			break
		}

		b.WriteString(regexp.QuoteMeta(rest[:next]))
		if token == placeholderName {
			b.WriteString(`(?P<studentName>[A-Za-z]+)`)
		} else {
			fmt.Fprintf(&b, `(?P<studentCode>[A-Za-z]{%d}\d{%d})`, prefix, digits)
		}
		rest = rest[next+len(token):]
	}

	b.WriteString("$")
	return b.String()
}

func (v *filenameValidator) Pattern() string {
	return v.pattern
}

func (v *filenameValidator) Resolve(fileName, folderName string) (*Match, error) {
	if m := v.match(stripExt(fileName)); m != nil {
		m.Source = SourceFile
		return m, nil
	}

	if folderName != "" {
		if m := v.match(strings.TrimSpace(folderName)); m != nil {
			m.Source = SourceFolder
			return m, nil
		}
	}

	return nil, fmt.Errorf("%w: %q (pattern %s)", ErrNoMatch, fileName, v.pattern)
}

func (v *filenameValidator) match(name string) *Match {
	if name == "" {
		return nil
	}

	sub := v.re.FindStringSubmatch(name)
	if sub == nil {
		return nil
	}

	m := &Match{StudentCode: strings.ToUpper(sub[v.codeIdx])}
	if v.nameIdx >= 0 {
		m.StudentName = sub[v.nameIdx]
	}
	if m.StudentCode == "" {
		return nil
	}
	return m
}

func stripExt(fileName string) string {
	base := filepath.Base(strings.TrimSpace(fileName))
	return strings.TrimSuffix(base, filepath.Ext(base))
}
