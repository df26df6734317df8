package acquire

import (
	"archive/zip"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mhrisk/pkg/logger"
)

func zipBytes(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, body := range entries {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	return buf.Bytes()
}

func serve(t *testing.T, status int, body []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)

	return srv
}

func TestDownload(t *testing.T) {
	t.Parallel()

	payload := zipBytes(t, map[string]string{
		"Maternal Health Risk Data Set.csv": "Age,SystolicBP\n25,130\n",
		"docs/readme.txt":                   "hello",
	})
	srv := serve(t, http.StatusOK, payload)
	dir := filepath.Join(t.TempDir(), "raw")

	files, err := NewDownloader(logger.Test(t)).Download(context.Background(), srv.URL+"/static/maternal+health+risk.zip", dir)
	require.NoError(t, err)
	assert.Len(t, files, 2)
	assert.FileExists(t, filepath.Join(dir, "maternal+health+risk.zip"))

	b, err := os.ReadFile(filepath.Join(dir, "Maternal Health Risk Data Set.csv"))
	require.NoError(t, err)
	assert.Equal(t, "Age,SystolicBP\n25,130\n", string(b))
	assert.FileExists(t, filepath.Join(dir, "docs", "readme.txt"))
}

func TestDownload_Errors(t *testing.T) {
	t.Parallel()

	d := NewDownloader(logger.Test(t))
	ctx := context.Background()

	tests := []struct {
		name string
		url  func() string
	}{
		{"not found", func() string { return serve(t, http.StatusNotFound, nil).URL + "/data.zip" }},
		{"not a zip", func() string { return serve(t, http.StatusOK, []byte("plain text")).URL + "/data.zip" }},
		{"invalid url", func() string { return "::not a url" }},
		{"no file name", func() string { return serve(t, http.StatusOK, nil).URL + "/" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := d.Download(ctx, tc.url(), t.TempDir())
			require.ErrorIs(t, err, ErrAcquisition)
		})
	}
}

func TestDownload_Cancelled(t *testing.T) {
	t.Parallel()

	srv := serve(t, http.StatusOK, zipBytes(t, map[string]string{"a.csv": "x"}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewDownloader(logger.Test(t)).WithClient(srv.Client()).Download(ctx, srv.URL+"/a.zip", t.TempDir())
	require.ErrorIs(t, err, ErrAcquisition)
	require.ErrorIs(t, err, context.Canceled)
}

func TestExtract_RejectsEscapingEntries(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	archive := filepath.Join(dir, "evil.zip")
	require.NoError(t, os.WriteFile(archive, zipBytes(t, map[string]string{"../evil.txt": "x"}), 0o600))

	_, err := Extract(archive, filepath.Join(dir, "out"))
	require.ErrorIs(t, err, ErrAcquisition)
	assert.Contains(t, err.Error(), "escapes")
	assert.NoFileExists(t, filepath.Join(dir, "evil.txt"))
}
