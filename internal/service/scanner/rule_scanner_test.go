package scanner

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/RubachokBoss/exam-grading/import-service/internal/config"
	"github.com/rs/zerolog"
)

func defaultScanner(t *testing.T) RuleViolationScanner {
	t.Helper()

	sc := config.Default().Scanner
	s, err := NewRuleViolationScanner(Config{
		SourceExtensions:    sc.SourceExtensions,
		AllowedNameChars:    sc.AllowedNameChars,
		LeadingPattern:      sc.LeadingPattern,
		MaxNameLength:       sc.MaxNameLength,
		ForbiddenConstructs: sc.ForbiddenConstructs,
		EntryPoints:         sc.EntryPoints,
		TemplateMarkers:     sc.TemplateMarkers,
		UnlockMarkers:       sc.UnlockMarkers,
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewRuleViolationScanner: %v", err)
	}
	return s
}

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, body := range files {
		path := filepath.Join(root, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestScanOrdering(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"Main.c":     "#include <stdio.h>\nint helper() {\n  system(\"PAUSE\"); system(\"pause\");\n  return 0;\n}\n",
		"_hidden.py": "# TODO: implement\nprint('enter license key')\n",
		"bad name.c": "int main (void) { goto end; end: return 0; }\n",
	})

	got, err := defaultScanner(t).Scan(context.Background(), root)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	want := []struct {
		kind CandidateKind
		path string
		line int
	}{
		{KindNaming, "_hidden.py", 0},
		{KindNaming, "bad name.c", 0},
		{KindForbiddenConstruct, "Main.c", 3},
		{KindForbiddenConstruct, "Main.c", 3},
		{KindMissingFunction, "Main.c", 0},
		{KindTemplateLeftover, "_hidden.py", 1},
		{KindUnlockMarker, "_hidden.py", 2},
		{KindForbiddenConstruct, "bad name.c", 1},
	}

	if len(got) != len(want) {
		for _, c := range got {
			t.Logf("%s %s:%d %s", c.Kind, c.Path, c.Line, c.Description)
		}
		t.Fatalf("expected %d candidates, got %d", len(want), len(got))
	}

	for i, w := range want {
		c := got[i]
		if c.Kind != w.kind || c.Path != w.path || c.Line != w.line {
			t.Errorf("candidate %d = %s %s:%d, want %s %s:%d", i, c.Kind, c.Path, c.Line, w.kind, w.path, w.line)
		}
	}

	again, err := defaultScanner(t).Scan(context.Background(), root)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, again) {
		t.Error("scan output is not stable across runs")
	}
}

func TestScanOneNamingViolationPerEntry(t *testing.T) {
	root := t.TempDir()
	long := "9 "
	for len(long) < 120 {
		long += "x"
	}
	writeFiles(t, root, map[string]string{long + ".txt": "notes"})

	got, err := defaultScanner(t).Scan(context.Background(), root)
	if err != nil {
		t.Fatal(err)
	}

	if len(got) != 1 {
		t.Fatalf("expected exactly one naming candidate, got %d", len(got))
	}
	if got[0].Kind != KindNaming {
		t.Errorf("unexpected kind %s", got[0].Kind)
	}
}

func TestScanWalksFoldersRecursively(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"Good/Main.java": "public class Main { public static void main(String[] args) {} }",
		"1bad/Ok.java":   "class Ok {}",
	})

	got, err := defaultScanner(t).Scan(context.Background(), root)
	if err != nil {
		t.Fatal(err)
	}

	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %d: %+v", len(got), got)
	}
	if got[0].Kind != KindNaming || got[0].Path != "1bad" {
		t.Errorf("expected naming violation for folder, got %+v", got[0])
	}
	if got[1].Kind != KindMissingFunction || got[1].Path != "1bad/Ok.java" {
		t.Errorf("expected missing function for Ok.java, got %+v", got[1])
	}
}

func TestScanSingleFile(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"StudentASE100001.cpp": "#include <conio.h>\nINT   MAIN ( ) { return 0; }\n",
	})

	got, err := defaultScanner(t).Scan(context.Background(), filepath.Join(root, "StudentASE100001.cpp"))
	if err != nil {
		t.Fatal(err)
	}

	if len(got) != 1 {
		t.Fatalf("expected 1 candidate, got %d: %+v", len(got), got)
	}
	if got[0].Kind != KindForbiddenConstruct || got[0].Path != "StudentASE100001.cpp" {
		t.Errorf("unexpected candidate %+v", got[0])
	}
	if got[0].Confidence < 0.9 {
		t.Errorf("forbidden construct should be high confidence, got %v", got[0].Confidence)
	}
}

func TestNonSourceFilesSkipContentPass(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{"readme.txt": "system(\"pause\") TODO: implement"})

	got, err := defaultScanner(t).Scan(context.Background(), root)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("expected no candidates for non-source file, got %+v", got)
	}
}

func TestCandidateKindViolationType(t *testing.T) {
	if KindNaming.ViolationType() != "FilenameViolation" {
		t.Errorf("naming should map to FilenameViolation, got %s", KindNaming.ViolationType())
	}
	if KindMissingFunction.ViolationType() != "MissingFunction" {
		t.Errorf("unexpected mapping %s", KindMissingFunction.ViolationType())
	}
}
