package telegram

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"

	"github.com/mymmrac/telego"
)

// maxDownloadBytes caps Telegram file downloads; the Bot API itself stops
// serving files above 20 MB.
const maxDownloadBytes = 20 << 20

// GetFileURL resolves a file id into its direct download URL.
func (c *Client) GetFileURL(ctx context.Context, fileID string) (string, error) {
	file, err := c.bot.GetFile(ctx, &telego.GetFileParams{FileID: fileID})
	if err != nil {
		return "", classify(err)
	}
	if file.FilePath == "" {
		return "", fmt.Errorf("empty file path for file_id %s", fileID)
	}
	return fmt.Sprintf("https://api.telegram.org/file/bot%s/%s", c.token, file.FilePath), nil
}

// DownloadFile fetches a file's bytes by file id.
func (c *Client) DownloadFile(ctx context.Context, fileID string) ([]byte, error) {
	url, err := c.GetFileURL(ctx, fileID)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download failed with status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read file body: %w", err)
	}
	if len(data) > maxDownloadBytes {
		return nil, fmt.Errorf("file exceeds max size: %d bytes", len(data))
	}
	return data, nil
}

// DownloadAsDataURL fetches a file and encodes it as a data: URL with the
// given mime type.
func (c *Client) DownloadAsDataURL(ctx context.Context, fileID, mime string) (string, error) {
	data, err := c.DownloadFile(ctx, fileID)
	if err != nil {
		return "", err
	}
	return EncodeDataURL(data, mime), nil
}

// EncodeDataURL builds a base64 data: URL for raw bytes.
func EncodeDataURL(data []byte, mime string) string {
	if mime == "" {
		mime = "application/octet-stream"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}
