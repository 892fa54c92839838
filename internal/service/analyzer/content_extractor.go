package analyzer

import (
	"archive/zip"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/RubachokBoss/exam-grading/import-service/pkg/hash"
	"github.com/rs/zerolog"
)

type Content struct {
	Text string
	Hash string
	Size int64
	// Kind is "text", "docx", "archive" or "binary".
	Kind string
}

type ContentExtractor interface {
	// Extract hashes the raw bytes and pulls best-effort text out of the file.
	// Formats without a text representation yield empty text and no error.
	Extract(path string) (*Content, error)
}

var defaultTextExtensions = []string{".txt", ".md", ".csv", ".json", ".xml", ".html"}

type contentExtractor struct {
	textExt  map[string]bool
	maxBytes int64
	hasher   *hash.Hasher
	logger   zerolog.Logger
}

func NewContentExtractor(sourceExtensions []string, maxBytes int64, logger zerolog.Logger) ContentExtractor {
	textExt := make(map[string]bool)
	for _, ext := range append(append([]string{}, defaultTextExtensions...), sourceExtensions...) {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext != "" && !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		textExt[ext] = true
	}

	return &contentExtractor{
		textExt:  textExt,
		maxBytes: maxBytes,
		hasher:   hash.NewHasher(hash.SHA256),
		logger:   logger,
	}
}

func (e *contentExtractor) Extract(path string) (*Content, error) {
	sum, err := e.hasher.CalculateFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to hash %s: %w", filepath.Base(path), err)
	}

	c := &Content{Hash: sum.Hash, Size: sum.FileSize, Kind: "binary"}
	ext := strings.ToLower(filepath.Ext(path))

	switch {
	case e.textExt[ext]:
		c.Kind = "text"
		text, err := e.readText(path)
		if err != nil {
			return nil, err
		}
		c.Text = text
	case ext == ".docx":
		c.Kind = "docx"
		text, err := e.readDocx(path)
		if err != nil {
			e.logger.Warn().Err(err).Str("file", filepath.Base(path)).Msg("Failed to read docx text")
			break
		}
		c.Text = text
	case ext == ".zip":
		c.Kind = "archive"
		text, err := e.readNestedZip(path)
		if err != nil {
			e.logger.Warn().Err(err).Str("file", filepath.Base(path)).Msg("Failed to read nested archive")
			break
		}
		c.Text = text
	}

	return c, nil
}

func (e *contentExtractor) limit(r io.Reader) io.Reader {
	if e.maxBytes <= 0 {
		return r
	}
	return io.LimitReader(r, e.maxBytes)
}

func (e *contentExtractor) readText(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	data, err := io.ReadAll(e.limit(f))
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}
	return strings.ToValidUTF8(string(data), ""), nil
}

func (e *contentExtractor) readDocx(path string) (string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		return "", fmt.Errorf("failed to open docx: %w", err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("failed to open document.xml: %w", err)
		}
		defer rc.Close()
		return docxText(e.limit(rc))
	}

	return "", errors.New("word/document.xml not found")
}

// docxText collects the w:t runs of a WordprocessingML body, one line per
// paragraph.
func docxText(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	var (
		b      strings.Builder
		inText bool
	)

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return b.String(), fmt.Errorf("failed to parse document.xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				b.WriteByte('\t')
			case "br":
				b.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				b.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				b.Write(t)
			}
		}
	}

	return b.String(), nil
}

func (e *contentExtractor) readNestedZip(path string) (string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		return "", fmt.Errorf("failed to open nested zip: %w", err)
	}
	defer zr.Close()

	var (
		b     strings.Builder
		total int64
	)

	for _, f := range zr.File {
		if f.FileInfo().IsDir() || !e.textExt[strings.ToLower(filepath.Ext(f.Name))] {
			continue
		}
		if e.maxBytes > 0 && total >= e.maxBytes {
			break
		}

		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("failed to open %s: %w", f.Name, err)
		}
		data, err := io.ReadAll(e.limit(rc))
		rc.Close()
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", f.Name, err)
		}
		total += int64(len(data))

		b.WriteString(SectionHeader(filepath.ToSlash(f.Name)))
		b.WriteByte('\n')
		b.WriteString(strings.ToValidUTF8(string(data), ""))
		if len(data) > 0 && data[len(data)-1] != '\n' {
			b.WriteByte('\n')
		}
	}

	return b.String(), nil
}
