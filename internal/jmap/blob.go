package jmap

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// DownloadBlob fetches a blob via the session's download URL template,
// substituting {accountId}, {blobId}, {name}, and {type}.
func (c *Client) DownloadBlob(ctx context.Context, blobID, name string) ([]byte, error) {
	if c.session == nil {
		return nil, fmt.Errorf("not connected")
	}
	if c.session.DownloadURL == "" {
		return nil, fmt.Errorf("session document provides no downloadUrl")
	}
	if name == "" {
		name = "blob"
	}

	dl := c.session.DownloadURL
	dl = strings.ReplaceAll(dl, "{accountId}", url.PathEscape(c.session.AccountID))
	dl = strings.ReplaceAll(dl, "{blobId}", url.PathEscape(blobID))
	dl = strings.ReplaceAll(dl, "{name}", url.PathEscape(name))
	dl = strings.ReplaceAll(dl, "{type}", url.QueryEscape("application/octet-stream"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, dl, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build download request: %w", err)
	}
	req.SetBasicAuth(c.config.Username, c.config.Password)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("blob download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("blob download returned %s", resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read blob: %w", err)
	}
	return data, nil
}

// UploadBlob POSTs data to the account upload URL and returns the
// server-assigned blob id.
func (c *Client) UploadBlob(ctx context.Context, data []byte, contentType string) (string, error) {
	if c.session == nil {
		return "", fmt.Errorf("not connected")
	}
	if c.session.UploadURL == "" {
		return "", fmt.Errorf("session document provides no uploadUrl")
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	up := strings.ReplaceAll(c.session.UploadURL, "{accountId}", url.PathEscape(c.session.AccountID))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, up, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to build upload request: %w", err)
	}
	req.SetBasicAuth(c.config.Username, c.config.Password)
	req.Header.Set("Content-Type", contentType)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("blob upload failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("blob upload returned %s: %s", resp.Status, string(text))
	}

	var result struct {
		BlobID string `json:"blobId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to parse upload response: %w", err)
	}
	if result.BlobID == "" {
		return "", fmt.Errorf("upload response carries no blobId")
	}
	return result.BlobID, nil
}
