package extractor

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

type entry struct {
	name string
	body string
}

func writeZip(t *testing.T, path string, entries []entry) {
	t.Helper()

	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	for _, e := range entries {
		w, err := zw.Create(e.name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(e.body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
}

func writeTarGz(t *testing.T, path string, entries []entry) {
	t.Helper()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for _, e := range entries {
		hdr := &tar.Header{
			Name:     e.name,
			Mode:     0o644,
			Size:     int64(len(e.body)),
			Typeflag: tar.TypeReg,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(e.body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestExtractZipSkipsTraversalEntries(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "work")
	archive := filepath.Join(dir, "batch.zip")

	writeZip(t, archive, []entry{
		{name: "NguyenVanASE123456/main.c", body: "int main() { return 0; }"},
		{name: "../evil.txt", body: "pwned"},
		{name: "ok/../../../evil2.txt", body: "pwned"},
		{name: "/abs.txt", body: "pwned"},
	})

	ext := NewArchiveExtractor(root, zerolog.Nop())
	res, err := ext.Extract(context.Background(), archive, "job1")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	if len(res.Files) != 1 {
		t.Fatalf("expected 1 extracted file, got %d", len(res.Files))
	}
	if len(res.Skipped) != 3 {
		t.Errorf("expected 3 skipped entries, got %v", res.Skipped)
	}

	for _, p := range []string{
		filepath.Join(dir, "evil.txt"),
		filepath.Join(root, "evil.txt"),
		filepath.Join(root, "imports", "evil.txt"),
		filepath.Join(root, "imports", "evil2.txt"),
		filepath.Join(dir, "evil2.txt"),
	} {
		if _, err := os.Stat(p); err == nil {
			t.Errorf("traversal entry written to %s", p)
		}
	}

	f := res.Files[0]
	if f.FileName != "main.c" || f.FolderName != "NguyenVanASE123456" {
		t.Errorf("unexpected file info: %+v", f)
	}
	if f.RelativePath != "NguyenVanASE123456/main.c" {
		t.Errorf("unexpected relative path %q", f.RelativePath)
	}
	if f.Size != int64(len("int main() { return 0; }")) {
		t.Errorf("unexpected size %d", f.Size)
	}

	rel, err := filepath.Rel(res.FolderPath, f.FullPath)
	if err != nil || rel != filepath.Join("NguyenVanASE123456", "main.c") {
		t.Errorf("file not under working folder: %s", f.FullPath)
	}
}

func TestExtractCreatesUniqueFolders(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "a.zip")
	writeZip(t, archive, []entry{{name: "a.py", body: "print(1)"}})

	ext := NewArchiveExtractor(filepath.Join(dir, "work"), zerolog.Nop())
	first, err := ext.Extract(context.Background(), archive, "job")
	if err != nil {
		t.Fatal(err)
	}
	second, err := ext.Extract(context.Background(), archive, "job")
	if err != nil {
		t.Fatal(err)
	}

	if first.FolderPath == second.FolderPath {
		t.Fatalf("expected distinct working folders, got %s twice", first.FolderPath)
	}
}

func TestExtractTarGz(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "batch.tgz")
	writeTarGz(t, archive, []entry{
		{name: "a/StudentASE100001.py", body: "print('a')"},
		{name: "b/StudentBSE100002.py", body: "print('b')"},
		{name: "../../escape.py", body: "x"},
	})

	ext := NewArchiveExtractor(filepath.Join(dir, "work"), zerolog.Nop())
	res, err := ext.Extract(context.Background(), archive, "job")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	if res.Format != FormatTarGz {
		t.Errorf("expected tar.gz, got %s", res.Format)
	}
	if len(res.Files) != 2 {
		t.Fatalf("expected 2 files, got %d", len(res.Files))
	}
	if len(res.Skipped) != 1 {
		t.Errorf("expected traversal entry to be skipped, got %v", res.Skipped)
	}
}

func TestExtractCorruptArchiveCleansUp(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "work")
	archive := filepath.Join(dir, "broken.zip")
	if err := os.WriteFile(archive, []byte("this is not a zip file"), 0o644); err != nil {
		t.Fatal(err)
	}

	ext := NewArchiveExtractor(root, zerolog.Nop())
	if _, err := ext.Extract(context.Background(), archive, "job"); err == nil {
		t.Fatal("expected error for corrupt archive")
	}

	entries, err := os.ReadDir(filepath.Join(root, "imports"))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("expected partial folder to be removed, found %d entries", len(entries))
	}
}

func TestExtractUnsupportedFormat(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(archive, []byte("plain text"), 0o644); err != nil {
		t.Fatal(err)
	}

	ext := NewArchiveExtractor(filepath.Join(dir, "work"), zerolog.Nop())
	_, err := ext.Extract(context.Background(), archive, "job")
	if !errors.Is(err, ErrUnsupportedArchive) {
		t.Fatalf("expected ErrUnsupportedArchive, got %v", err)
	}
}

func TestExtractHonoursCancellation(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "batch.zip")
	writeZip(t, archive, []entry{{name: "a.py", body: "a"}, {name: "b.py", body: "b"}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ext := NewArchiveExtractor(filepath.Join(dir, "work"), zerolog.Nop())
	if _, err := ext.Extract(ctx, archive, "job"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestExtractReaderSpoolsNonSeekableInput(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "src.zip")
	writeZip(t, archive, []entry{{name: "x/StudentASE100001.py", body: "print(1)"}})

	data, err := os.ReadFile(archive)
	if err != nil {
		t.Fatal(err)
	}

	root := filepath.Join(dir, "work")
	ext := NewArchiveExtractor(root, zerolog.Nop())
	res, err := ext.ExtractReader(context.Background(), bytes.NewBuffer(data), "upload.zip", "job")
	if err != nil {
		t.Fatalf("ExtractReader: %v", err)
	}
	if len(res.Files) != 1 {
		t.Fatalf("expected 1 file, got %d", len(res.Files))
	}

	leftovers, _ := os.ReadDir(filepath.Join(root, "uploads"))
	if len(leftovers) != 0 {
		t.Errorf("expected spooled archive to be removed, found %d files", len(leftovers))
	}
}

func TestDetectFormatByMagic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "upload.bin")
	writeZip(t, path, []entry{{name: "a.txt", body: "a"}})

	format, err := DetectFormat(path)
	if err != nil {
		t.Fatal(err)
	}
	if format != FormatZip {
		t.Errorf("expected zip, got %q", format)
	}
}

func TestSafeJoin(t *testing.T) {
	root := filepath.Join(t.TempDir(), "root")

	tests := []struct {
		name string
		ok   bool
	}{
		{"a/b.txt", true},
		{"./a.txt", true},
		{"a/../b.txt", true},
		{"../a.txt", false},
		{"a/../../b.txt", false},
		{"..\\..\\win.txt", false},
		{"/etc/passwd", false},
		{"..", false},
		{".", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := SafeJoin(root, tt.name)
			if tt.ok && err != nil {
				t.Errorf("expected %q to be accepted, got %v", tt.name, err)
			}
			if !tt.ok && !errors.Is(err, ErrUnsafePath) {
				t.Errorf("expected %q to be rejected, got %v", tt.name, err)
			}
		})
	}
}
