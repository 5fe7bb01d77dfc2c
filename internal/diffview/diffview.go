// Package diffview uploads full diffs to an external viewer so Telegram
// messages can link them instead of inlining hundreds of lines.
package diffview

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const requestTimeout = 15 * time.Second

// Client posts diffs to the configured viewer service.
type Client struct {
	baseURL string
	httpc   *http.Client
}

// New builds a client. An empty baseURL disables uploads.
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: requestTimeout},
	}
}

// Enabled reports whether a viewer URL is configured.
func (c *Client) Enabled() bool { return c.baseURL != "" }

type uploadRequest struct {
	FilePath string `json:"filePath"`
	Diff     string `json:"diff"`
}

type uploadResponse struct {
	URL string `json:"url"`
}

// Upload publishes one diff and returns the viewer URL. Disabled clients
// return an empty URL without error so callers can degrade to the inline
// preview alone.
func (c *Client) Upload(ctx context.Context, filePath, diff string) (string, error) {
	if !c.Enabled() {
		return "", nil
	}
	body, err := json.Marshal(uploadRequest{FilePath: filePath, Diff: diff})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/diffs", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("diff upload: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("diff upload status %d: %s", resp.StatusCode, msg)
	}

	var out uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("diff upload decode: %w", err)
	}
	return out.URL, nil
}
