// Package storage uploads chat media to an external object store and resolves
// public URLs for stored objects.
package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type Client interface {
	// Upload stores the blob at the given path inside the configured bucket
	// and returns the stored path.
	Upload(ctx context.Context, path, contentType string, body io.Reader) (string, error)
	// PublicURL returns the publicly reachable URL for a stored path.
	PublicURL(path string) string
}

// SupabaseClient talks to the Supabase storage HTTP API.
type SupabaseClient struct {
	baseURL    string
	bucket     string
	serviceKey string
	client     *http.Client
}

func NewSupabaseClient(baseURL, bucket, serviceKey string) *SupabaseClient {
	return &SupabaseClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		bucket:     bucket,
		serviceKey: serviceKey,
		client:     &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *SupabaseClient) Upload(ctx context.Context, path, contentType string, body io.Reader) (string, error) {
	url := fmt.Sprintf("%s/storage/v1/object/%s/%s", c.baseURL, c.bucket, path)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.serviceKey)
	req.Header.Set("Content-Type", contentType)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("storage upload: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("storage upload returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	return path, nil
}

func (c *SupabaseClient) PublicURL(path string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", c.baseURL, c.bucket, path)
}
