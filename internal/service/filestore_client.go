package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// FileStore issues pre-signed upload URLs for refund proof photos. The
// client POSTs the binary to the returned URL and receives a storage id.
type FileStore interface {
	GenerateUploadURL(ctx context.Context) (string, error)
}

// HTTPFileStore talks to the object storage service
type HTTPFileStore struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

// NewHTTPFileStore creates a file store client
func NewHTTPFileStore(baseURL, apiKey string) *HTTPFileStore {
	return &HTTPFileStore{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
}

// GenerateUploadURL requests a single-use upload URL
func (f *HTTPFileStore) GenerateUploadURL(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.BaseURL+"/v1/upload_urls", nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+f.APIKey)

	resp, err := f.HTTP.Do(req)
	if err != nil {
		return "", fmt.Errorf("file store request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("file store returned %d", resp.StatusCode)
	}

	var out struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode upload url: %w", err)
	}
	return out.URL, nil
}
