// Package rssapp provisions account feeds through the RSS.app API.
package rssapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"smm_boost/internal/clients"
)

const maxResponseSize = 4 * 1024 * 1024

// Client creates feeds for social profile URLs.
type Client struct {
	http    clients.HTTPClient
	baseURL string
	auth    string
}

// New creates a feed provisioning client.
func New(httpClient clients.HTTPClient, baseURL, apiKey, apiSecret string) *Client {
	return &Client{
		http:    httpClient,
		baseURL: strings.TrimRight(baseURL, "/"),
		auth:    "Bearer " + apiKey + ":" + apiSecret,
	}
}

// CreateFeed asks the service to build a feed from sourceURL.
func (c *Client) CreateFeed(ctx context.Context, sourceURL string) (clients.ProvisionedFeed, error) {
	body, err := json.Marshal(map[string]string{"url": sourceURL})
	if err != nil {
		return clients.ProvisionedFeed{}, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/feeds", bytes.NewReader(body))
	if err != nil {
		return clients.ProvisionedFeed{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.auth)

	resp, err := c.http.Do(req)
	if err != nil {
		return clients.ProvisionedFeed{}, fmt.Errorf("http post: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return clients.ProvisionedFeed{}, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(raw, &e) == nil && e.Message != "" {
			return clients.ProvisionedFeed{}, fmt.Errorf("create feed: status %d: %s", resp.StatusCode, e.Message)
		}
		return clients.ProvisionedFeed{}, fmt.Errorf("create feed: unexpected status %d", resp.StatusCode)
	}

	var out struct {
		ID         string `json:"id"`
		Title      string `json:"title"`
		SourceURL  string `json:"source_url"`
		RSSFeedURL string `json:"rss_feed_url"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return clients.ProvisionedFeed{}, fmt.Errorf("decode response: %w", err)
	}
	if out.RSSFeedURL == "" {
		return clients.ProvisionedFeed{}, fmt.Errorf("create feed: response has no feed url")
	}
	if out.SourceURL == "" {
		out.SourceURL = sourceURL
	}
	return clients.ProvisionedFeed{
		ExternalID: out.ID,
		Title:      out.Title,
		SourceURL:  out.SourceURL,
		URL:        out.RSSFeedURL,
	}, nil
}
