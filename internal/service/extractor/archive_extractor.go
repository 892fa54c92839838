package extractor

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/RubachokBoss/exam-grading/import-service/internal/models"
	"github.com/bodgit/sevenzip"
	"github.com/nwaples/rardecode/v2"
	"github.com/rs/zerolog"
)

var (
	ErrUnsupportedArchive = errors.New("unsupported archive format")
	ErrUnsafePath         = errors.New("archive entry escapes destination root")
)

type Format string

const (
	FormatZip      Format = "zip"
	FormatTar      Format = "tar"
	FormatTarGz    Format = "tar.gz"
	FormatRar      Format = "rar"
	FormatSevenZip Format = "7z"
	FormatUnknown  Format = ""
)

type Result struct {
	FolderPath string
	Format     Format
	Files      []models.ExtractedFileInfo
	Skipped    []string
}

type ArchiveExtractor interface {
	// Extract expands the archive at archivePath into a fresh folder under
	// the working root. The folder is removed again if extraction fails.
	Extract(ctx context.Context, archivePath, jobID string) (*Result, error)
	// ExtractReader accepts any reader. Non-seekable input is spooled to a
	// temporary file first.
	ExtractReader(ctx context.Context, r io.Reader, archiveName, jobID string) (*Result, error)
}

type archiveExtractor struct {
	workRoot string
	logger   zerolog.Logger
}

func NewArchiveExtractor(workRoot string, logger zerolog.Logger) ArchiveExtractor {
	return &archiveExtractor{
		workRoot: workRoot,
		logger:   logger,
	}
}

func (e *archiveExtractor) Extract(ctx context.Context, archivePath, jobID string) (*Result, error) {
	format, err := DetectFormat(archivePath)
	if err != nil {
		return nil, err
	}

	base := filepath.Join(e.workRoot, "imports")
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create imports folder: %w", err)
	}

	folder, err := os.MkdirTemp(base, jobID+"-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create working folder: %w", err)
	}

	res := &Result{FolderPath: folder, Format: format}

	switch format {
	case FormatZip:
		err = e.extractZip(ctx, archivePath, res)
	case FormatTar:
		err = e.extractTarFile(ctx, archivePath, false, res)
	case FormatTarGz:
		err = e.extractTarFile(ctx, archivePath, true, res)
	case FormatRar:
		err = e.extractRar(ctx, archivePath, res)
	case FormatSevenZip:
		err = e.extract7z(ctx, archivePath, res)
	default:
		err = ErrUnsupportedArchive
	}

	if err != nil {
		if rmErr := os.RemoveAll(folder); rmErr != nil {
			e.logger.Warn().Err(rmErr).Str("folder", folder).Msg("Failed to remove partial extraction folder")
		}
		return nil, err
	}

	e.logger.Info().
		Str("job_id", jobID).
		Str("format", string(format)).
		Str("folder", folder).
		Int("files", len(res.Files)).
		Int("skipped", len(res.Skipped)).
		Msg("Archive extracted")

	return res, nil
}

func (e *archiveExtractor) ExtractReader(ctx context.Context, r io.Reader, archiveName, jobID string) (*Result, error) {
	if f, ok := r.(*os.File); ok {
		return e.Extract(ctx, f.Name(), jobID)
	}

	spoolDir := filepath.Join(e.workRoot, "uploads")
	path, _, err := SpoolToFile(r, spoolDir, archiveName)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			e.logger.Warn().Err(err).Str("path", path).Msg("Failed to remove spooled archive")
		}
	}()

	return e.Extract(ctx, path, jobID)
}

// SpoolToFile copies r into a new file inside dir, keeping the extension of
// name so that the format can still be detected. It returns the file path
// and the number of bytes written.
func SpoolToFile(r io.Reader, dir, name string) (string, int64, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", 0, fmt.Errorf("failed to create upload folder: %w", err)
	}

	f, err := os.CreateTemp(dir, "upload-*"+archiveExt(name))
	if err != nil {
		return "", 0, fmt.Errorf("failed to create temp file: %w", err)
	}

	n, err := io.Copy(f, r)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(f.Name())
		return "", 0, fmt.Errorf("failed to spool archive: %w", err)
	}

	return f.Name(), n, nil
}

// DetectFormat uses the file extension and falls back to magic bytes.
func DetectFormat(path string) (Format, error) {
	switch archiveExt(path) {
	case ".zip":
		return FormatZip, nil
	case ".tar":
		return FormatTar, nil
	case ".tar.gz", ".tgz":
		return FormatTarGz, nil
	case ".rar":
		return FormatRar, nil
	case ".7z":
		return FormatSevenZip, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return FormatUnknown, fmt.Errorf("failed to open archive: %w", err)
	}
	defer f.Close()

	header := make([]byte, 512)
	n, _ := io.ReadFull(f, header)
	header = header[:n]

	switch {
	case bytes.HasPrefix(header, []byte("PK\x03\x04")), bytes.HasPrefix(header, []byte("PK\x05\x06")):
		return FormatZip, nil
	case bytes.HasPrefix(header, []byte("Rar!\x1a\x07")):
		return FormatRar, nil
	case bytes.HasPrefix(header, []byte{'7', 'z', 0xBC, 0xAF, 0x27, 0x1C}):
		return FormatSevenZip, nil
	case bytes.HasPrefix(header, []byte{0x1f, 0x8b}):
		return FormatTarGz, nil
	case len(header) >= 262 && string(header[257:262]) == "ustar":
		return FormatTar, nil
	}

	return FormatUnknown, fmt.Errorf("%w: %s", ErrUnsupportedArchive, filepath.Base(path))
}

func archiveExt(name string) string {
	lower := strings.ToLower(name)
	if strings.HasSuffix(lower, ".tar.gz") {
		return ".tar.gz"
	}
	return filepath.Ext(lower)
}

func (e *archiveExtractor) extractZip(ctx context.Context, archivePath string, res *Result) error {
	zr, err := zip.OpenReader(archivePath)
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		return fmt.Errorf("failed to open zip archive: %w", err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		if err := ctx.Err(); err != nil {
			return err
		}
		if f.FileInfo().IsDir() {
			continue
		}
		if f.Mode()&os.ModeSymlink != 0 {
			e.skip(res, f.Name, "symlink entry")
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("failed to open zip entry %s: %w", f.Name, err)
		}
		err = e.writeEntry(res, f.Name, rc)
		rc.Close()
		if err != nil {
			return err
		}
	}

	return nil
}

func (e *archiveExtractor) extractTarFile(ctx context.Context, archivePath string, gzipped bool, res *Result) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open tar archive: %w", err)
	}
	defer f.Close()

	var src io.Reader = f
	if gzipped {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("failed to open gzip stream: %w", err)
		}
		defer gz.Close()
		src = gz
	}

	tr := tar.NewReader(src)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil && !errors.Is(err, tar.ErrInsecurePath) {
			return fmt.Errorf("failed to read tar entry: %w", err)
		}

		switch hdr.Typeflag {
		case tar.TypeReg:
			if err := e.writeEntry(res, hdr.Name, tr); err != nil {
				return err
			}
		case tar.TypeDir:
			continue
		case tar.TypeSymlink, tar.TypeLink:
			e.skip(res, hdr.Name, "link entry")
		default:
			continue
		}
	}
}

func (e *archiveExtractor) extractRar(ctx context.Context, archivePath string, res *Result) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open rar archive: %w", err)
	}
	defer f.Close()

	rr, err := rardecode.NewReader(f)
	if err != nil {
		return fmt.Errorf("failed to open rar archive: %w", err)
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		hdr, err := rr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read rar entry: %w", err)
		}
		if hdr.IsDir {
			continue
		}

		if err := e.writeEntry(res, hdr.Name, rr); err != nil {
			return err
		}
	}
}

func (e *archiveExtractor) extract7z(ctx context.Context, archivePath string, res *Result) error {
	zr, err := sevenzip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open 7z archive: %w", err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		if err := ctx.Err(); err != nil {
			return err
		}
		if f.FileInfo().IsDir() {
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("failed to open 7z entry %s: %w", f.Name, err)
		}
		err = e.writeEntry(res, f.Name, rc)
		rc.Close()
		if err != nil {
			return err
		}
	}

	return nil
}

// writeEntry streams one archive entry to disk. Unsafe or repeated entries are
// recorded as skipped and do not fail the extraction.
func (e *archiveExtractor) writeEntry(res *Result, name string, src io.Reader) error {
	target, rel, err := SafeJoin(res.FolderPath, name)
	if err != nil {
		e.skip(res, name, err.Error())
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("failed to create folder for %s: %w", rel, err)
	}

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			e.skip(res, name, "duplicate entry")
			return nil
		}
		return fmt.Errorf("failed to create %s: %w", rel, err)
	}

	n, err := io.Copy(out, src)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", rel, err)
	}

	folder := filepath.Base(filepath.Dir(rel))
	if folder == "." {
		folder = ""
	}

	res.Files = append(res.Files, models.ExtractedFileInfo{
		FileName:     filepath.Base(rel),
		FullPath:     target,
		RelativePath: filepath.ToSlash(rel),
		Size:         n,
		FolderName:   folder,
	})

	return nil
}

func (e *archiveExtractor) skip(res *Result, name, reason string) {
	res.Skipped = append(res.Skipped, name)
	e.logger.Warn().Str("entry", name).Str("reason", reason).Msg("Skipping archive entry")
}

// SafeJoin resolves an archive entry name under root. It returns the absolute
// target and the cleaned relative path, or ErrUnsafePath when the entry would
// land outside root.
func SafeJoin(root, name string) (string, string, error) {
	clean := filepath.Clean(filepath.FromSlash(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/")))
	if clean == "." || clean == "" {
		return "", "", ErrUnsafePath
	}
	if filepath.IsAbs(clean) || filepath.VolumeName(clean) != "" {
		return "", "", ErrUnsafePath
	}
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", "", ErrUnsafePath
	}

	target := filepath.Join(root, clean)
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return "", "", ErrUnsafePath
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", "", ErrUnsafePath
	}

	return target, rel, nil
}
