package archive

import (
	"archive/zip"
	"bytes"
	"testing"

	"github.com/dualforge/tagger/internal/apperr"
	"github.com/dualforge/tagger/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildZip(t *testing.T, files map[string]string, dirs ...string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, d := range dirs {
		_, err := zw.Create(d)
		require.NoError(t, err)
	}
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func entryNames(entries []Entry) []string {
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name)
	}
	return names
}

func TestDecodeFiltersImages(t *testing.T) {
	data := buildZip(t, map[string]string{
		"a.jpg":     "A",
		"b.png":     "B",
		"notes.txt": "ignore me",
	}, "folder/")

	entries, err := Decode(data)
	require.NoError(t, err)
	assert.Len(t, entries, 3)

	images := FilterImages(entries)
	assert.ElementsMatch(t, []string{"a.jpg", "b.png"}, entryNames(images))
}

func TestFilterImagesExtensions(t *testing.T) {
	entries := []Entry{
		{Name: "x.JPG"}, {Name: "y.jpeg"}, {Name: "z.WebP"}, {Name: "w.gif"},
		{Name: "noext"}, {Name: "__MACOSX/._x.jpg"}, {Name: "dir/._y.png"}, {Name: "dir/ok.png"},
	}
	assert.Equal(t, []string{"x.JPG", "y.jpeg", "z.WebP", "dir/ok.png"}, entryNames(FilterImages(entries)))
}

func TestDecodeMalformed(t *testing.T) {
	_, err := Decode([]byte("definitely not a zip"))
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindDecode))
}

func TestEncodeRoundTrip(t *testing.T) {
	files := models.OutputArchive{
		"a.txt":     "a girl with flowing silver hair",
		"set/b.txt": "1girl, long hair, smile",
		"empty.txt": "",
	}

	data, err := Encode(files)
	require.NoError(t, err)

	got, err := DecodeText(data)
	require.NoError(t, err)
	assert.Equal(t, files, got)
}

func TestEncodeIsDeterministic(t *testing.T) {
	files := models.OutputArchive{"b.txt": "b", "a.txt": "a", "c.txt": "c"}

	first, err := Encode(files)
	require.NoError(t, err)
	entries, err := Decode(first)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "b.txt", "c.txt"}, entryNames(entries))
}

func TestDownloadName(t *testing.T) {
	assert.Equal(t, "photos-tags.zip", DownloadName("photos.zip"))
	assert.Equal(t, "photos-tags.zip", DownloadName("C:\\Users\\me\\photos.ZIP"))
	assert.Equal(t, "set.v2-tags.zip", DownloadName("/tmp/set.v2.zip"))
	assert.Equal(t, "images-tags.zip", DownloadName(""))
}
