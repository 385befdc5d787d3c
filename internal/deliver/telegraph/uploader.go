// Package telegraph uploads artifacts to the telegra.ph file host and
// returns public links.
package telegraph

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

const defaultBaseURL = "https://telegra.ph"

// Config controls the uploader endpoint and timeout.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Uploader implements the link-sharing interface against telegra.ph.
type Uploader struct {
	baseURL string
	client  *http.Client
}

// New constructs an Uploader.
func New(cfg Config) *Uploader {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Uploader{
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

type uploadItem struct {
	Src   string `json:"src"`
	Error string `json:"error,omitempty"`
}

// Upload posts the file to /upload and returns the public URL of the
// stored copy.
func (u *Uploader) Upload(ctx context.Context, path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open artifact: %w", err)
	}
	defer file.Close()

	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)
	go func() {
		part, err := writer.CreateFormFile("file", filepath.Base(path))
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, file); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(writer.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.baseURL+"/upload", pr)
	if err != nil {
		return "", fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := u.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("upload: unexpected status %d: %s", resp.StatusCode, body)
	}

	var items []uploadItem
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}
	if len(items) == 0 {
		return "", fmt.Errorf("upload response contained no items")
	}
	if items[0].Error != "" {
		return "", fmt.Errorf("upload rejected: %s", items[0].Error)
	}
	return u.baseURL + items[0].Src, nil
}
