package analyzer

import (
	"fmt"
	"regexp"
	"strings"
)

var sectionHeader = regexp.MustCompile(`^// ==== FILE: (.+) ====$`)

type Section struct {
	Name string
	Text string
}

// SectionHeader is written in front of every inner file when the text of a
// nested archive is flattened into one submission text.
func SectionHeader(name string) string {
	return fmt.Sprintf("// ==== FILE: %s ====", name)
}

// SplitSections undoes the flattening done for nested archives. Text without
// headers becomes a single section named fallback.
func SplitSections(text, fallback string) []Section {
	var (
		sections []Section
		current  = Section{Name: fallback}
		body     strings.Builder
		started  bool
	)

	flush := func() {
		current.Text = body.String()
		if started || strings.TrimSpace(current.Text) != "" {
			sections = append(sections, current)
		}
		body.Reset()
	}

	for _, line := range strings.Split(text, "\n") {
		if m := sectionHeader.FindStringSubmatch(strings.TrimRight(line, "\r")); m != nil {
			flush()
			current = Section{Name: m[1]}
			started = true
			continue
		}
		body.WriteString(line)
		body.WriteByte('\n')
	}
	flush()

	if len(sections) == 0 {
		sections = append(sections, Section{Name: fallback, Text: text})
	}
	return sections
}
