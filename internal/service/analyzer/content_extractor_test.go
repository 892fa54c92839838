package analyzer

import (
	"archive/zip"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func writeZipFile(t *testing.T, path string, files map[string]string, order []string) {
	t.Helper()

	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	for _, name := range order {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(files[name])); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestExtractPlainSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "StudentASE100001.py")
	if err := os.WriteFile(path, []byte("print('hi')\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	ex := NewContentExtractor([]string{".py"}, 1<<20, zerolog.Nop())
	c, err := ex.Extract(path)
	if err != nil {
		t.Fatal(err)
	}

	if c.Text != "print('hi')\n" || c.Kind != "text" {
		t.Errorf("unexpected content %+v", c)
	}
	if len(c.Hash) != 64 {
		t.Errorf("expected sha256 hex digest, got %q", c.Hash)
	}
	if c.Size != int64(len("print('hi')\n")) {
		t.Errorf("unexpected size %d", c.Size)
	}
}

func TestExtractDocx(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.docx")

	doc := `<?xml version="1.0" encoding="UTF-8"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
<w:body>
<w:p><w:r><w:t>Hello</w:t></w:r><w:r><w:t xml:space="preserve"> world</w:t></w:r></w:p>
<w:p><w:r><w:t>Second paragraph</w:t></w:r></w:p>
</w:body>
</w:document>`
	writeZipFile(t, path, map[string]string{
		"[Content_Types].xml": "<Types/>",
		"word/document.xml":   doc,
	}, []string{"[Content_Types].xml", "word/document.xml"})

	ex := NewContentExtractor(nil, 1<<20, zerolog.Nop())
	c, err := ex.Extract(path)
	if err != nil {
		t.Fatal(err)
	}

	if c.Kind != "docx" {
		t.Errorf("kind = %q", c.Kind)
	}
	if c.Text != "Hello world\nSecond paragraph\n" {
		t.Errorf("unexpected docx text %q", c.Text)
	}
}

func TestExtractNestedZipWritesSections(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "NguyenVanASE123456.zip")
	writeZipFile(t, path, map[string]string{
		"src/main.c":  "int main() { return 0; }",
		"src/util.c":  "int helper() { return 1; }\n",
		"bin/app.exe": "MZ\x00\x00",
	}, []string{"src/main.c", "bin/app.exe", "src/util.c"})

	ex := NewContentExtractor([]string{".c"}, 1<<20, zerolog.Nop())
	c, err := ex.Extract(path)
	if err != nil {
		t.Fatal(err)
	}

	sections := SplitSections(c.Text, "NguyenVanASE123456.zip")
	if len(sections) != 2 {
		t.Fatalf("expected 2 sections, got %d: %q", len(sections), c.Text)
	}
	if sections[0].Name != "src/main.c" || sections[1].Name != "src/util.c" {
		t.Errorf("unexpected sections %+v", sections)
	}
	if !strings.Contains(sections[1].Text, "helper") {
		t.Errorf("unexpected section text %q", sections[1].Text)
	}
}

func TestExtractBinaryYieldsEmptyText(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "StudentASE100001.exe")
	if err := os.WriteFile(path, []byte{0x4d, 0x5a, 0x00, 0x01}, 0o644); err != nil {
		t.Fatal(err)
	}

	ex := NewContentExtractor([]string{".c"}, 1<<20, zerolog.Nop())
	c, err := ex.Extract(path)
	if err != nil {
		t.Fatalf("binary file should not fail: %v", err)
	}
	if c.Text != "" || c.Hash == "" {
		t.Errorf("unexpected content %+v", c)
	}
}

func TestExtractCorruptDocxIsBestEffort(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.docx")
	if err := os.WriteFile(path, []byte("not a zip"), 0o644); err != nil {
		t.Fatal(err)
	}

	ex := NewContentExtractor(nil, 1<<20, zerolog.Nop())
	c, err := ex.Extract(path)
	if err != nil {
		t.Fatalf("corrupt docx should not fail: %v", err)
	}
	if c.Text != "" {
		t.Errorf("expected empty text, got %q", c.Text)
	}
}

func TestExtractMissingFileFails(t *testing.T) {
	ex := NewContentExtractor(nil, 0, zerolog.Nop())
	if _, err := ex.Extract(filepath.Join(t.TempDir(), "missing.py")); err == nil {
		t.Error("expected error for missing file")
	}
}
