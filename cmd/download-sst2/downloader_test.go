package main

import (
	"archive/zip"
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognicore/harmonica/pkg/harmonica/dataset"
)

func buildArchive(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestDownloadAndExtract(t *testing.T) {
	archive := buildArchive(t, map[string]string{
		"SST-2/train.tsv": "sentence\tlabel\nhide new secretions from the parental units \t0\n",
		"SST-2/dev.tsv":   "sentence\tlabel\nit 's a charming and often affecting journey . \t1\n",
		"SST-2/test.tsv":  "index\tsentence\n0\tuneasy mishmash of styles\n",
	})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(archive)
	}))
	defer srv.Close()

	data, err := download(srv.Client(), srv.URL, 1<<20)
	require.NoError(t, err)

	dir := t.TempDir()
	written, err := extract(data, dir, splits)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "train.tsv"), filepath.Join(dir, "dev.tsv")}, written)

	n, err := convertJSONL(written[1])
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	records, err := dataset.LoadJSONL(filepath.Join(dir, "dev.jsonl"))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 1, records[0].Label)
}

func TestDownloadErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Write(bytes.Repeat([]byte("x"), 2048))
	}))
	defer srv.Close()

	_, err := download(srv.Client(), srv.URL+"/missing", 1<<20)
	assert.ErrorContains(t, err, "HTTP 404")

	_, err = download(srv.Client(), srv.URL, 1024)
	assert.ErrorContains(t, err, "larger than")
}

func TestExtractMissingMember(t *testing.T) {
	archive := buildArchive(t, map[string]string{"SST-2/dev.tsv": "sentence\tlabel\n"})
	_, err := extract(archive, t.TempDir(), splits)
	assert.ErrorContains(t, err, "train.tsv")

	_, err = extract([]byte("not a zip"), t.TempDir(), splits)
	assert.Error(t, err)

	_, statErr := os.Stat(filepath.Join(t.TempDir(), "train.tsv"))
	assert.True(t, os.IsNotExist(statErr))
}
