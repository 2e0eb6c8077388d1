// Package snapshot captures page screenshots through a remote browser-profile service.
package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"smm_boost/internal/clients"
)

const maxResponseSize = 32 * 1024 * 1024

// Options controls the viewport of a capture.
type Options struct {
	Width       int
	Height      int
	WaitForLoad bool
	TimeoutMS   int
	FullPage    bool
}

// DefaultOptions captures a 1920x1080 viewport after the page has loaded.
var DefaultOptions = Options{Width: 1920, Height: 1080, WaitForLoad: true, TimeoutMS: 30000}

type captureRequest struct {
	APIKey      string `json:"apiKey"`
	ProfileID   string `json:"profileId"`
	URL         string `json:"url"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	WaitForLoad bool   `json:"waitForLoad"`
	Timeout     int    `json:"timeout"`
	FullPage    bool   `json:"fullPage"`
}

type captureResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Data    struct {
		Screenshot string `json:"screenshot"`
		Dimensions struct {
			Width  int `json:"width"`
			Height int `json:"height"`
		} `json:"dimensions"`
		Timestamp string `json:"timestamp"`
	} `json:"data"`
}

// Client calls the screenshot service.
type Client struct {
	http    clients.HTTPClient
	baseURL string
	apiKey  string
	opts    Options
}

// New creates a screenshot client.
func New(httpClient clients.HTTPClient, baseURL, apiKey string, opts Options) *Client {
	return &Client{
		http:    httpClient,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		opts:    opts,
	}
}

// Capture takes one screenshot of url using the given browser profile.
func (c *Client) Capture(ctx context.Context, url, profileID string) (clients.Shot, error) {
	body, err := json.Marshal(captureRequest{
		APIKey:      c.apiKey,
		ProfileID:   profileID,
		URL:         url,
		Width:       c.opts.Width,
		Height:      c.opts.Height,
		WaitForLoad: c.opts.WaitForLoad,
		Timeout:     c.opts.TimeoutMS,
		FullPage:    c.opts.FullPage,
	})
	if err != nil {
		return clients.Shot{}, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/screenshot", bytes.NewReader(body))
	if err != nil {
		return clients.Shot{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return clients.Shot{}, fmt.Errorf("http post: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return clients.Shot{}, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := string(raw)
		if len(msg) > 200 {
			msg = msg[:200]
		}
		return clients.Shot{}, fmt.Errorf("HTTP %d: %s", resp.StatusCode, msg)
	}

	var out captureResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return clients.Shot{}, fmt.Errorf("decode response: %w", err)
	}
	if !out.Success {
		if out.Error == "" {
			out.Error = "unknown API error"
		}
		return clients.Shot{}, fmt.Errorf("API returned error: %s", out.Error)
	}

	shot := clients.Shot{
		Data:   out.Data.Screenshot,
		Width:  out.Data.Dimensions.Width,
		Height: out.Data.Dimensions.Height,
	}
	if ts, err := time.Parse(time.RFC3339, out.Data.Timestamp); err == nil {
		ts = ts.UTC()
		shot.Timestamp = &ts
	}
	return shot, nil
}
