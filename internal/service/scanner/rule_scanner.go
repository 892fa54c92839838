package scanner

import (
	"bufio"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/RubachokBoss/exam-grading/import-service/internal/models"
	"github.com/rs/zerolog"
)

type CandidateKind string

const (
	KindNaming             CandidateKind = "Naming"
	KindForbiddenConstruct CandidateKind = "ForbiddenConstruct"
	KindMissingFunction    CandidateKind = "MissingFunction"
	KindTemplateLeftover   CandidateKind = "TemplateLeftover"
	KindUnlockMarker       CandidateKind = "UnlockMarker"
)

// ViolationType maps a candidate kind onto the persisted violation type.
func (k CandidateKind) ViolationType() models.ViolationType {
	switch k {
	case KindNaming:
		return models.ViolationTypeFilename
	case KindForbiddenConstruct:
		return models.ViolationTypeForbiddenConstruct
	case KindMissingFunction:
		return models.ViolationTypeMissingFunction
	case KindTemplateLeftover:
		return models.ViolationTypeTemplateLeftover
	default:
		return models.ViolationTypeUnlockMarker
	}
}

type Candidate struct {
	Kind        CandidateKind
	Path        string
	Line        int
	Description string
	Evidence    []string
	Confidence  float64
	Severity    models.Severity
}

type Config struct {
	SourceExtensions    []string
	AllowedNameChars    string
	LeadingPattern      string
	MaxNameLength       int
	ForbiddenConstructs []string
	// EntryPoints maps an extension, with or without the dot, to the accepted
	// entry point signatures.
	EntryPoints     map[string][]string
	TemplateMarkers []string
	UnlockMarkers   []string
	// MaxLineLength bounds a single line read during the content pass.
	MaxLineLength int
}

type RuleViolationScanner interface {
	// Scan walks root, which may be a folder or a single file, and returns
	// naming candidates followed by content candidates in walk order.
	Scan(ctx context.Context, root string) ([]Candidate, error)
}

type namingRule struct {
	name  string
	check func(name string) bool
}

type ruleScanner struct {
	namingRules     []namingRule
	sourceExt       map[string]bool
	forbidden       []string
	entryPoints     map[string][]string
	templateMarkers []string
	unlockMarkers   []string
	maxLine         int
	logger          zerolog.Logger
}

var (
	spaceRun     = regexp.MustCompile(`\s+`)
	spaceBeforeP = regexp.MustCompile(`\s+\(`)
)

func NewRuleViolationScanner(cfg Config, logger zerolog.Logger) (RuleViolationScanner, error) {
	s := &ruleScanner{
		sourceExt:       make(map[string]bool),
		entryPoints:     make(map[string][]string),
		forbidden:       lowerAll(cfg.ForbiddenConstructs),
		templateMarkers: lowerAll(cfg.TemplateMarkers),
		unlockMarkers:   lowerAll(cfg.UnlockMarkers),
		maxLine:         cfg.MaxLineLength,
		logger:          logger,
	}
	if s.maxLine <= 0 {
		s.maxLine = 1 << 20
	}

	if cfg.AllowedNameChars != "" {
		re, err := regexp.Compile(cfg.AllowedNameChars)
		if err != nil {
			return nil, fmt.Errorf("invalid allowed_name_chars: %w", err)
		}
		s.namingRules = append(s.namingRules, namingRule{
			name:  "contains characters outside " + cfg.AllowedNameChars,
			check: re.MatchString,
		})
	}

	if cfg.LeadingPattern != "" {
		re, err := regexp.Compile(cfg.LeadingPattern)
		if err != nil {
			return nil, fmt.Errorf("invalid leading_pattern: %w", err)
		}
		s.namingRules = append(s.namingRules, namingRule{
			name:  "does not start with " + cfg.LeadingPattern,
			check: re.MatchString,
		})
	}

	if cfg.MaxNameLength > 0 {
		limit := cfg.MaxNameLength
		s.namingRules = append(s.namingRules, namingRule{
			name:  fmt.Sprintf("is longer than %d characters", limit),
			check: func(name string) bool { return len([]rune(name)) <= limit },
		})
	}

	for _, ext := range cfg.SourceExtensions {
		s.sourceExt[normalizeExt(ext)] = true
	}

	for ext, sigs := range cfg.EntryPoints {
		normalized := make([]string, 0, len(sigs))
		for _, sig := range sigs {
			normalized = append(normalized, normalizeCode(sig))
		}
		s.entryPoints[normalizeExt(ext)] = normalized
	}

	return s, nil
}

func (s *ruleScanner) Scan(ctx context.Context, root string) ([]Candidate, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to stat scan root: %w", err)
	}

	base := root
	if !info.IsDir() {
		base = filepath.Dir(root)
	}

	var files []string
	var candidates []Candidate

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path == root && d.IsDir() {
			return nil
		}

		rel, _ := filepath.Rel(base, path)
		rel = filepath.ToSlash(rel)

		if c, ok := s.checkName(rel, d.Name()); ok {
			candidates = append(candidates, c)
		}

		if !d.IsDir() && d.Type().IsRegular() && s.sourceExt[normalizeExt(filepath.Ext(path))] {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rel, _ := filepath.Rel(base, path)
		found, err := s.scanContent(path, filepath.ToSlash(rel))
		if err != nil {
			s.logger.Warn().Err(err).Str("file", rel).Msg("Failed to scan file content")
			continue
		}
		candidates = append(candidates, found...)
	}

	return candidates, nil
}

func (s *ruleScanner) checkName(rel, name string) (Candidate, bool) {
	for _, rule := range s.namingRules {
		if rule.check(name) {
			continue
		}
		return Candidate{
			Kind:        KindNaming,
			Path:        rel,
			Description: fmt.Sprintf("Name %q %s", name, rule.name),
			Evidence:    []string{rel},
			Confidence:  1.0,
			Severity:    models.SeverityLow,
		}, true
	}
	return Candidate{}, false
}

func (s *ruleScanner) scanContent(path, rel string) ([]Candidate, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var (
		forbidden []Candidate
		templates []Candidate
		unlocks   []Candidate
		body      strings.Builder
	)

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), s.maxLine)

	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		lower := strings.ToLower(line)
		body.WriteString(lower)
		body.WriteByte('\n')

		for _, construct := range s.forbidden {
			for i := 0; i < strings.Count(lower, construct); i++ {
				forbidden = append(forbidden, Candidate{
					Kind:        KindForbiddenConstruct,
					Path:        rel,
					Line:        lineNo,
					Description: fmt.Sprintf("Forbidden construct %q at %s:%d", construct, rel, lineNo),
					Evidence:    []string{strings.TrimSpace(line)},
					Confidence:  0.95,
					Severity:    models.SeverityHigh,
				})
			}
		}

		for _, marker := range s.templateMarkers {
			if strings.Contains(lower, marker) {
				templates = append(templates, Candidate{
					Kind:        KindTemplateLeftover,
					Path:        rel,
					Line:        lineNo,
					Description: fmt.Sprintf("Template marker %q left at %s:%d", marker, rel, lineNo),
					Evidence:    []string{strings.TrimSpace(line)},
					Confidence:  0.5,
					Severity:    models.SeverityLow,
				})
			}
		}

		for _, marker := range s.unlockMarkers {
			if strings.Contains(lower, marker) {
				unlocks = append(unlocks, Candidate{
					Kind:        KindUnlockMarker,
					Path:        rel,
					Line:        lineNo,
					Description: fmt.Sprintf("Suspicious marker %q at %s:%d", marker, rel, lineNo),
					Evidence:    []string{strings.TrimSpace(line)},
					Confidence:  0.4,
					Severity:    models.SeverityMedium,
				})
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", rel, err)
	}

	out := forbidden

	if sigs, ok := s.entryPoints[normalizeExt(filepath.Ext(path))]; ok && len(sigs) > 0 {
		code := normalizeCode(body.String())
		found := false
		for _, sig := range sigs {
			if strings.Contains(code, sig) {
				found = true
				break
			}
		}
		if !found {
			out = append(out, Candidate{
				Kind:        KindMissingFunction,
				Path:        rel,
				Description: fmt.Sprintf("No entry point found in %s (expected one of %s)", rel, strings.Join(sigs, ", ")),
				Evidence:    []string{rel},
				Confidence:  0.8,
				Severity:    models.SeverityMedium,
			})
		}
	}

	out = append(out, templates...)
	out = append(out, unlocks...)
	return out, nil
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

func normalizeCode(s string) string {
	s = strings.ToLower(s)
	s = spaceRun.ReplaceAllString(s, " ")
	return spaceBeforeP.ReplaceAllString(s, "(")
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v = strings.ToLower(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
