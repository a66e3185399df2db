package restdb

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const storagePath = "/storage/v1/object"

// UploadObject stores raw bytes at bucket/objectPath, overwriting any existing
// object, and returns the public retrieval URL.
func (c *Client) UploadObject(ctx context.Context, bucket, objectPath string, data []byte, contentType string) (string, error) {
	u := c.base + storagePath + "/" + bucket + "/" + objectPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("build upload request: %w", err)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("x-upsert", "true")
	if c.key != "" {
		req.Header.Set("apikey", c.key)
		req.Header.Set("Authorization", "Bearer "+c.key)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload %s/%s: %w", bucket, objectPath, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read upload response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &BackendError{Status: resp.StatusCode, Message: errorMessage(body)}
	}
	return c.PublicObjectURL(bucket, objectPath), nil
}

// PublicObjectURL synthesizes the public retrieval URL for a stored object.
func (c *Client) PublicObjectURL(bucket, objectPath string) string {
	segments := strings.Split(objectPath, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return c.base + storagePath + "/public/" + bucket + "/" + strings.Join(segments, "/")
}
