package archive

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/dualforge/tagger/internal/apperr"
	"github.com/dualforge/tagger/internal/models"
)

// MaxEntrySize caps how much a single archive entry may expand to
const MaxEntrySize = 64 * 1024 * 1024

var imageName = regexp.MustCompile(`(?i)\.(jpe?g|png|webp)$`)

// Entry is one file read out of an archive
type Entry struct {
	Name string
	Data []byte
}

// Decode unpacks every regular file in a ZIP archive, in archive order
func Decode(data []byte) ([]Entry, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, apperr.Decode("failed to read archive", err)
	}

	entries := make([]Entry, 0, len(zr.File))
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if f.UncompressedSize64 > MaxEntrySize {
			return nil, apperr.Validation(fmt.Sprintf("archive entry %s is too large", f.Name), nil)
		}

		content, err := readEntry(f)
		if err != nil {
			return nil, apperr.Decode(fmt.Sprintf("failed to read archive entry %s", f.Name), err)
		}
		entries = append(entries, Entry{Name: f.Name, Data: content})
	}

	return entries, nil
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	content, err := io.ReadAll(io.LimitReader(rc, MaxEntrySize+1))
	if err != nil {
		return nil, err
	}
	if len(content) > MaxEntrySize {
		return nil, fmt.Errorf("entry expands beyond %d bytes", MaxEntrySize)
	}
	return content, nil
}

// IsImageName reports whether name carries a recognized image extension
func IsImageName(name string) bool {
	return imageName.MatchString(name)
}

// FilterImages keeps entries with a recognized image extension, skipping
// macOS resource forks
func FilterImages(entries []Entry) []Entry {
	images := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if strings.HasPrefix(e.Name, "__MACOSX/") || strings.HasPrefix(path.Base(e.Name), "._") {
			continue
		}
		if IsImageName(e.Name) {
			images = append(images, e)
		}
	}
	return images
}

// Encode writes the files into a new ZIP archive, sorted by name
func Encode(files models.OutputArchive) ([]byte, error) {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range names {
		w, err := zw.Create(name)
		if err != nil {
			return nil, fmt.Errorf("failed to create archive entry %s: %w", name, err)
		}
		if _, err := io.WriteString(w, files[name]); err != nil {
			return nil, fmt.Errorf("failed to write archive entry %s: %w", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize archive: %w", err)
	}

	return buf.Bytes(), nil
}

// DecodeText unpacks an archive produced by Encode back into name -> text
func DecodeText(data []byte) (models.OutputArchive, error) {
	entries, err := Decode(data)
	if err != nil {
		return nil, err
	}
	files := make(models.OutputArchive, len(entries))
	for _, e := range entries {
		files[e.Name] = string(e.Data)
	}
	return files, nil
}

// DownloadName derives the result archive's filename from the uploaded one
func DownloadName(archiveName string) string {
	base := path.Base(strings.ReplaceAll(archiveName, "\\", "/"))
	if base == "." || base == "/" || base == "" {
		base = "images"
	}
	if strings.EqualFold(path.Ext(base), ".zip") {
		base = base[:len(base)-len(".zip")]
	}
	return base + "-tags.zip"
}
