// Package smm is a client for SMM panels speaking the common v2 form API
// (key + action form posts, JSON replies).
package smm

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

	"github.com/google/go-querystring/query"

	"smm_boost/internal/clients"
)

// ErrPanel wraps an error message returned by the panel.
var ErrPanel = errors.New("panel error")

const maxResponseSize = 10 * 1024 * 1024

type request struct {
	Key      string `url:"key"`
	Action   string `url:"action"`
	Service  int64  `url:"service,omitempty"`
	Link     string `url:"link,omitempty"`
	Quantity int    `url:"quantity,omitempty"`
	Comments string `url:"comments,omitempty"`
	Order    string `url:"order,omitempty"`
}

// Client talks to one panel endpoint.
type Client struct {
	http   clients.HTTPClient
	url    string
	apiKey string
}

// New creates a panel client.
func New(httpClient clients.HTTPClient, url, apiKey string) *Client {
	return &Client{http: httpClient, url: url, apiKey: apiKey}
}

// CreateOrder places an order and returns the panel's order id.
func (c *Client) CreateOrder(ctx context.Context, o clients.Order) (string, error) {
	req := request{
		Action:   "add",
		Service:  o.ServiceID,
		Link:     o.Link,
		Quantity: o.Quantity,
		Comments: strings.Join(o.Comments, "\n"),
	}
	var resp struct {
		Order flex   `json:"order"`
		Error string `json:"error"`
	}
	if err := c.call(ctx, req, &resp); err != nil {
		return "", fmt.Errorf("create order: %w", err)
	}
	if resp.Error != "" {
		return "", fmt.Errorf("create order: %w: %s", ErrPanel, resp.Error)
	}
	if resp.Order == "" {
		return "", fmt.Errorf("create order: %w: no order id in response", ErrPanel)
	}
	return string(resp.Order), nil
}

// OrderStatus returns the panel's status for an order.
func (c *Client) OrderStatus(ctx context.Context, orderID string) (clients.OrderStatus, error) {
	var resp struct {
		Status     string `json:"status"`
		Charge     flex   `json:"charge"`
		StartCount flex   `json:"start_count"`
		Remains    flex   `json:"remains"`
		Currency   string `json:"currency"`
		Error      string `json:"error"`
	}
	if err := c.call(ctx, request{Action: "status", Order: orderID}, &resp); err != nil {
		return clients.OrderStatus{}, fmt.Errorf("order status: %w", err)
	}
	if resp.Error != "" {
		return clients.OrderStatus{}, fmt.Errorf("order status: %w: %s", ErrPanel, resp.Error)
	}
	st := clients.OrderStatus{
		Status:     resp.Status,
		StartCount: resp.StartCount.Int(),
		Remains:    resp.Remains.Int(),
		Currency:   resp.Currency,
	}
	if resp.Charge != "" {
		charge := resp.Charge.Float()
		st.Charge = &charge
	}
	return st, nil
}

// Services returns the panel's service catalogue.
func (c *Client) Services(ctx context.Context) ([]clients.Service, error) {
	var raw json.RawMessage
	if err := c.call(ctx, request{Action: "services"}, &raw); err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}

	var items []struct {
		Service  flex   `json:"service"`
		Name     string `json:"name"`
		Type     string `json:"type"`
		Category string `json:"category"`
		Rate     flex   `json:"rate"`
		Min      flex   `json:"min"`
		Max      flex   `json:"max"`
	}
	if err := json.Unmarshal(raw, &items); err != nil {
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &e) == nil && e.Error != "" {
			return nil, fmt.Errorf("list services: %w: %s", ErrPanel, e.Error)
		}
		return nil, fmt.Errorf("decode services: %w", err)
	}

	out := make([]clients.Service, 0, len(items))
	for _, it := range items {
		out = append(out, clients.Service{
			ID:       int64(it.Service.Int()),
			Name:     it.Name,
			Type:     it.Type,
			Category: it.Category,
			Rate:     it.Rate.Float(),
			Min:      it.Min.Int(),
			Max:      it.Max.Int(),
		})
	}
	return out, nil
}

func (c *Client) call(ctx context.Context, r request, out any) error {
	r.Key = c.apiKey
	form, err := query.Values(r)
	if err != nil {
		return fmt.Errorf("encode form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(body, 200))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// flex accepts a JSON number or string; panels use both for numeric fields.
type flex string

func (f *flex) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flex(strings.TrimSpace(s))
		return nil
	}
	*f = flex(data)
	return nil
}

func (f flex) Float() float64 {
	v, _ := strconv.ParseFloat(string(f), 64)
	return v
}

func (f flex) Int() int {
	if v, err := strconv.Atoi(string(f)); err == nil {
		return v
	}
	return int(f.Float())
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
