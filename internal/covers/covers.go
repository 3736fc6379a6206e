// Package covers downloads remote cover images, validates that they decode
// as real images, and stores them under a local covers directory. The merger
// treats anything other than a returned local reference as failure; it never
// falls back to persisting the remote URL once a download was attempted.
package covers

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/disintegration/imaging"

	"github.com/mybibliotheca/libris/internal/config"
)

// maxCoverBytes bounds the download size. Real covers are well under this.
const maxCoverBytes = 10 << 20

// Downloader fetches and stores cover images.
type Downloader struct {
	dir string

	clientOnce sync.Once
	client     *http.Client
}

// NewDownloader creates a downloader storing covers under dir.
func NewDownloader(dir string) *Downloader {
	return &Downloader{dir: dir}
}

func (d *Downloader) httpClient() *http.Client {
	d.clientOnce.Do(func() {
		timeout := config.ProviderTimeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		d.client = &http.Client{Timeout: timeout}
	})
	return d.client
}

// Download fetches the image at coverURL, validates it decodes, and stores it
// as <bookID>.jpg. Returns the local file path. Any failure returns an error
// and leaves no partial file behind.
func (d *Downloader) Download(ctx context.Context, coverURL, bookID string) (string, error) {
	if strings.TrimSpace(coverURL) == "" {
		return "", fmt.Errorf("no cover URL given")
	}
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return "", fmt.Errorf("create covers directory: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, coverURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := d.httpClient().Do(req)
	if err != nil {
		return "", fmt.Errorf("download cover: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("cover download returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxCoverBytes))
	if err != nil {
		return "", fmt.Errorf("read cover body: %w", err)
	}

	// Decode to prove this is a real image, then re-encode as JPEG so every
	// stored cover has one format regardless of source.
	img, err := imaging.Decode(strings.NewReader(string(data)))
	if err != nil {
		return "", fmt.Errorf("cover at %s is not a decodable image: %w", coverURL, err)
	}

	localPath := filepath.Join(d.dir, sanitizeID(bookID)+".jpg")
	if err := imaging.Save(img, localPath, imaging.JPEGQuality(90)); err != nil {
		os.Remove(localPath)
		return "", fmt.Errorf("store cover: %w", err)
	}

	slog.Info("cover stored", "book", bookID, "path", localPath, "source", coverURL)
	return localPath, nil
}

var unsafeIDChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

func sanitizeID(id string) string {
	id = unsafeIDChars.ReplaceAllString(id, "_")
	if id == "" {
		id = "cover"
	}
	return id
}
