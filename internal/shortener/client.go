package shortener

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Client is an HTTP client for the external URL shortening API
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new shortener client. The timeout bounds the whole
// call; on expiry the rewriter falls back to original content.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type shortenRequest struct {
	URL string `json:"url"`
}

// ShortenResponse is the shortening API response
type ShortenResponse struct {
	Success   bool   `json:"success"`
	ShortURL  string `json:"shortUrl"`
	ShortCode string `json:"shortCode"`
	Error     string `json:"error,omitempty"`
}

// Shorten requests a short URL for the given original URL
func (c *Client) Shorten(ctx context.Context, originalURL string) (*ShortenResponse, error) {
	data, err := json.Marshal(shortenRequest{URL: originalURL})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/shorten", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("shortener API HTTP %d", resp.StatusCode)
	}

	var result ShortenResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if !result.Success || result.ShortURL == "" {
		return nil, fmt.Errorf("shortener API unsuccessful: %s", result.Error)
	}

	return &result, nil
}
