// Package llm generates comments through a Flowise agent-flow prediction endpoint.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"smm_boost/internal/clients"
)

// ErrNoComments is returned when the flow replied without usable comments.
var ErrNoComments = errors.New("no comments in response")

const maxResponseSize = 1024 * 1024

type stateEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type payload struct {
	Question       string `json:"question"`
	OverrideConfig struct {
		StartState map[string][]stateEntry `json:"startState"`
	} `json:"overrideConfig"`
}

// Client calls one prediction endpoint.
type Client struct {
	http     clients.HTTPClient
	endpoint string
	apiKey   string
}

// New creates a comment generator client. endpoint is the full prediction URL.
func New(httpClient clients.HTTPClient, endpoint, apiKey string) *Client {
	return &Client{http: httpClient, endpoint: endpoint, apiKey: apiKey}
}

// GenerateComments asks the flow for req.Count comments about req.Content.
func (c *Client) GenerateComments(ctx context.Context, req clients.CommentRequest) ([]string, error) {
	var p payload
	p.OverrideConfig.StartState = map[string][]stateEntry{
		"startAgentflow_0": {
			{Key: "caption", Value: req.Content},
			{Key: "comment_count", Value: strconv.Itoa(req.Count)},
			{Key: "custom_input", Value: req.Directives},
			{Key: "use_hashtags", Value: yesNo(req.UseHashtags)},
			{Key: "use_emojis", Value: yesNo(req.UseEmojis)},
		},
	}
	body, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http post: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var out struct {
		Text *string `json:"text"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if out.Text == nil {
		return nil, fmt.Errorf("decode response: missing text field")
	}

	comments := ParseComments(*out.Text)
	if len(comments) == 0 {
		return nil, ErrNoComments
	}
	return comments, nil
}

// ParseComments extracts comments from the flow's text output. It accepts
// {"comments": [...]}, a bare JSON array, or falls back to one comment per line.
func ParseComments(text string) []string {
	var obj struct {
		Comments []any `json:"comments"`
	}
	if err := json.Unmarshal([]byte(text), &obj); err == nil && obj.Comments != nil {
		return clean(obj.Comments)
	}
	var arr []any
	if err := json.Unmarshal([]byte(text), &arr); err == nil {
		return clean(arr)
	}
	if json.Valid([]byte(text)) {
		return nil
	}

	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.ContainsAny(line[:1], "{}[]") {
			continue
		}
		if len(line) >= 2 && strings.HasPrefix(line, `"`) && strings.HasSuffix(line, `"`) {
			line = line[1 : len(line)-1]
		}
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

func clean(items []any) []string {
	var out []string
	for _, it := range items {
		s := strings.TrimSpace(fmt.Sprint(it))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
