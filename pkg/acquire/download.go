package acquire

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"mhrisk/pkg/logger"
)

// ErrAcquisition wraps every failure to fetch or unpack the dataset archive.
var ErrAcquisition = errors.New("data acquisition failed")

// Downloader fetches a zip archive and extracts it into a directory.
type Downloader struct {
	httpClient *http.Client
	lggr       logger.Logger
}

// NewDownloader returns a downloader with a 60s request timeout.
func NewDownloader(lggr logger.Logger) *Downloader {
	return &Downloader{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		lggr:       lggr,
	}
}

// WithClient replaces the HTTP client.
func (d *Downloader) WithClient(c *http.Client) *Downloader {
	d.httpClient = c
	return d
}

// Download fetches rawURL into dir and extracts every archive entry next to it. It
// returns the paths of the extracted files. Failures are not retried.
func (d *Downloader) Download(ctx context.Context, rawURL, dir string) ([]string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: invalid url %q", ErrAcquisition, rawURL)
	}
	name, err := url.PathUnescape(path.Base(u.Path))
	if err != nil || name == "/" || name == "." {
		return nil, fmt.Errorf("%w: cannot derive a file name from %q", ErrAcquisition, rawURL)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAcquisition, err)
	}

	archive := filepath.Join(dir, name)
	if err := d.fetch(ctx, u.String(), archive); err != nil {
		return nil, err
	}
	d.lggr.Infow("archive downloaded", "url", rawURL, "path", archive)

	files, err := Extract(archive, dir)
	if err != nil {
		return nil, err
	}
	d.lggr.Infow("archive extracted", "files", files)
	return files, nil
}

func (d *Downloader) fetch(ctx context.Context, rawURL, dst string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to create request: %w", ErrAcquisition, err)
	}
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: failed to execute request: %w", ErrAcquisition, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %s returned status %d", ErrAcquisition, rawURL, resp.StatusCode)
	}

	f, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAcquisition, err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		return fmt.Errorf("%w: failed to read response body: %w", ErrAcquisition, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: %w", ErrAcquisition, err)
	}
	return nil
}

// Extract unpacks the zip at archive into dir. Entries that would land outside dir are
// rejected.
func Extract(archive, dir string) ([]string, error) {
	r, err := zip.OpenReader(archive)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrAcquisition, archive, err)
	}
	defer r.Close()

	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAcquisition, err)
	}
	var files []string
	for _, zf := range r.File {
		target := filepath.Join(root, filepath.FromSlash(zf.Name))
		if target != root && !strings.HasPrefix(target, root+string(os.PathSeparator)) {
			return nil, fmt.Errorf("%w: entry %q escapes %s", ErrAcquisition, zf.Name, dir)
		}
		if zf.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return nil, fmt.Errorf("%w: %w", ErrAcquisition, err)
			}
			continue
		}
		if err := extractFile(zf, target); err != nil {
			return nil, fmt.Errorf("%w: extract %s: %w", ErrAcquisition, zf.Name, err)
		}
		files = append(files, target)
	}
	return files, nil
}

func extractFile(zf *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	src, err := zf.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(target)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}
