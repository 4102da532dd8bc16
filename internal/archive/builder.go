package archive

import (
	"archive/zip"
	"compress/flate"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/nexio-platform/nexio/internal/directory"
)

// Builder writes zip artefacts to the archive storage directory. One archive
// lives under <storageDir>/<archiveID>/archive.zip so the sweeper can remove
// the whole directory at once.
type Builder struct {
	storageDir string
	logger     *slog.Logger
}

// NewBuilder constructs a Builder instance.
func NewBuilder(storageDir string, logger *slog.Logger) *Builder {
	return &Builder{storageDir: storageDir, logger: logger}
}

// manifestEntry describes one packaged file inside manifest.json.
type manifestEntry struct {
	DocumentID int64  `json:"document_id"`
	Path       string `json:"path"`
	Size       int64  `json:"size"`
}

// Build packages the files into a zip and returns the artefact path and size.
// Any read or write error aborts the build; the partial directory is removed
// before returning. The progress callback receives the count of finished
// files.
func (b *Builder) Build(ctx context.Context, archiveID string, files []directory.File, opts Options, progress func(done int)) (string, int64, error) {
	dir := filepath.Join(b.dir(), archiveID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", 0, err
	}
	target := filepath.Join(dir, "archive.zip")

	out, err := os.Create(target)
	if err != nil {
		return "", 0, err
	}
	cleanup := func() {
		out.Close()
		if rmErr := os.RemoveAll(dir); rmErr != nil && b.logger != nil {
			b.logger.Warn("remove partial archive", slog.String("archive_id", archiveID), slog.Any("error", rmErr))
		}
	}

	zw := zip.NewWriter(out)
	level := opts.CompressionLevel
	if level > 0 {
		zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
			return flate.NewWriter(w, level)
		})
	}
	method := zip.Deflate
	if level == 0 {
		method = zip.Store
	}

	names := make(map[string]int, len(files))
	manifest := make([]manifestEntry, 0, len(files))
	for i, file := range files {
		if err := ctx.Err(); err != nil {
			cleanup()
			return "", 0, err
		}
		name := uniqueName(names, entryName(file))
		if err := b.addFile(zw, name, file, method); err != nil {
			cleanup()
			return "", 0, err
		}
		manifest = append(manifest, manifestEntry{DocumentID: file.DocumentID, Path: name, Size: file.Size})
		if progress != nil {
			progress(i + 1)
		}
	}

	if opts.IncludeMetadata {
		if err := writeManifest(zw, manifest); err != nil {
			cleanup()
			return "", 0, err
		}
	}
	if err := zw.Close(); err != nil {
		cleanup()
		return "", 0, err
	}
	if err := out.Close(); err != nil {
		cleanup()
		return "", 0, err
	}
	info, err := os.Stat(target)
	if err != nil {
		return "", 0, err
	}
	return target, info.Size(), nil
}

// Remove deletes an archive's directory from disk. A missing directory is not
// an error.
func (b *Builder) Remove(archiveID string) error {
	if strings.TrimSpace(archiveID) == "" {
		return fmt.Errorf("archive: empty archive id")
	}
	return os.RemoveAll(filepath.Join(b.dir(), archiveID))
}

func (b *Builder) dir() string {
	if strings.TrimSpace(b.storageDir) != "" {
		return b.storageDir
	}
	return filepath.Join(os.TempDir(), "nexio-archives")
}

func (b *Builder) addFile(zw *zip.Writer, name string, file directory.File, method uint16) error {
	src, err := os.Open(file.DiskPath)
	if err != nil {
		return fmt.Errorf("archive: open %q: %w", file.DiskPath, err)
	}
	defer src.Close()

	header := &zip.FileHeader{
		Name:     name,
		Method:   method,
		Modified: time.Now(),
	}
	w, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, src); err != nil {
		return fmt.Errorf("archive: write %q: %w", name, err)
	}
	return nil
}

// entryName builds the zip entry path for a file. Names are normalised to NFC
// so the same document produces byte-identical entries regardless of how the
// uploader's filesystem encoded accents.
func entryName(file directory.File) string {
	name := norm.NFC.String(file.Name)
	dir := norm.NFC.String(file.RelativeDir)
	full := path.Join(dir, name)
	full = strings.TrimPrefix(path.Clean("/"+full), "/")
	if full == "" || full == "." {
		full = "file"
	}
	return full
}

// uniqueName suffixes duplicates: "a.pdf", "a (2).pdf", "a (3).pdf".
func uniqueName(seen map[string]int, name string) string {
	n := seen[name]
	seen[name] = n + 1
	if n == 0 {
		return name
	}
	ext := path.Ext(name)
	base := strings.TrimSuffix(name, ext)
	return fmt.Sprintf("%s (%d)%s", base, n+1, ext)
}

func writeManifest(zw *zip.Writer, entries []manifestEntry) error {
	payload, err := json.MarshalIndent(map[string]any{
		"generated_at": time.Now().UTC().Format(time.RFC3339),
		"file_count":   len(entries),
		"files":        entries,
	}, "", "  ")
	if err != nil {
		return err
	}
	w, err := zw.CreateHeader(&zip.FileHeader{Name: "manifest.json", Method: zip.Deflate, Modified: time.Now()})
	if err != nil {
		return err
	}
	_, err = w.Write(payload)
	return err
}
