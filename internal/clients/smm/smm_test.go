package smm

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"smm_boost/internal/clients"
)

type panel struct {
	mu    sync.Mutex
	forms []url.Values
	reply map[string]string
	code  int
}

func (p *panel) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	p.mu.Lock()
	p.forms = append(p.forms, r.PostForm)
	p.mu.Unlock()
	if p.code != 0 {
		w.WriteHeader(p.code)
	}
	_, _ = w.Write([]byte(p.reply[r.PostForm.Get("action")]))
}

func newPanel(t *testing.T, p *panel) *Client {
	t.Helper()
	srv := httptest.NewServer(p)
	t.Cleanup(srv.Close)
	return New(srv.Client(), srv.URL, "secret")
}

func TestCreateOrder(t *testing.T) {
	p := &panel{reply: map[string]string{"add": `{"order": 23501}`}}
	c := newPanel(t, p)

	id, err := c.CreateOrder(context.Background(), clients.Order{
		ServiceID: 42,
		Link:      "https://www.instagram.com/p/abc/",
		Quantity:  15,
		Comments:  []string{"nice", "love it"},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if id != "23501" {
		t.Errorf("order id = %q, want 23501", id)
	}

	want := url.Values{
		"key":      {"secret"},
		"action":   {"add"},
		"service":  {"42"},
		"link":     {"https://www.instagram.com/p/abc/"},
		"quantity": {"15"},
		"comments": {"nice\nlove it"},
	}
	if diff := cmp.Diff(want, p.forms[0]); diff != "" {
		t.Errorf("form mismatch (-want +got):\n%s", diff)
	}
}

func TestCreateOrderErrors(t *testing.T) {
	tests := []struct {
		name     string
		p        *panel
		panelErr bool
	}{
		{"panel error", &panel{reply: map[string]string{"add": `{"error": "Not enough funds"}`}}, true},
		{"no order id", &panel{reply: map[string]string{"add": `{}`}}, true},
		{"http status", &panel{code: http.StatusBadGateway, reply: map[string]string{"add": "bad gateway"}}, false},
		{"bad json", &panel{reply: map[string]string{"add": "<html>"}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newPanel(t, tt.p)
			_, err := c.CreateOrder(context.Background(), clients.Order{ServiceID: 1, Link: "x", Quantity: 1})
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if got := errors.Is(err, ErrPanel); got != tt.panelErr {
				t.Errorf("errors.Is(err, ErrPanel) = %v, want %v (%v)", got, tt.panelErr, err)
			}
		})
	}
}

func TestOrderStatus(t *testing.T) {
	p := &panel{reply: map[string]string{
		"status": `{"charge":"0.27819","start_count":"3572","status":"Partial","remains":157,"currency":"USD"}`,
	}}
	c := newPanel(t, p)

	got, err := c.OrderStatus(context.Background(), "23501")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	charge := 0.27819
	want := clients.OrderStatus{Status: "Partial", Charge: &charge, StartCount: 3572, Remains: 157, Currency: "USD"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("status mismatch (-want +got):\n%s", diff)
	}
	if p.forms[0].Get("order") != "23501" {
		t.Errorf("order form value = %q", p.forms[0].Get("order"))
	}
}

func TestServices(t *testing.T) {
	p := &panel{reply: map[string]string{
		"services": `[
			{"service": 1, "name": "Instagram Likes", "type": "Default", "category": "Instagram", "rate": "0.90", "min": "50", "max": "10000"},
			{"service": "2", "name": "TikTok Views", "rate": 0.05, "min": 100, "max": 1000000}
		]`,
	}}
	c := newPanel(t, p)

	got, err := c.Services(context.Background())
	if err != nil {
		t.Fatalf("services: %v", err)
	}
	want := []clients.Service{
		{ID: 1, Name: "Instagram Likes", Type: "Default", Category: "Instagram", Rate: 0.90, Min: 50, Max: 10000},
		{ID: 2, Name: "TikTok Views", Rate: 0.05, Min: 100, Max: 1000000},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("services mismatch (-want +got):\n%s", diff)
	}
}

func TestServicesPanelError(t *testing.T) {
	c := newPanel(t, &panel{reply: map[string]string{"services": `{"error":"Invalid API key"}`}})
	if _, err := c.Services(context.Background()); !errors.Is(err, ErrPanel) {
		t.Fatalf("expected ErrPanel, got %v", err)
	}
}
