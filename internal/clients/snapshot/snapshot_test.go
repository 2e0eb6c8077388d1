package snapshot

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"smm_boost/internal/clients"
)

func TestCapture(t *testing.T) {
	var got captureRequest
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"success": true, "data": {"screenshot": "iVBORw0KGgo=",
			"dimensions": {"width": 1920, "height": 1080}, "timestamp": "2026-03-05T10:00:00Z"}}`))
	}))
	defer srv.Close()

	c := New(srv.Client(), srv.URL+"/", "key", DefaultOptions)
	shot, err := c.Capture(context.Background(), "https://x.com/bird", "profile-x")
	if err != nil {
		t.Fatalf("capture: %v", err)
	}

	ts := time.Date(2026, 3, 5, 10, 0, 0, 0, time.UTC)
	want := clients.Shot{Data: "iVBORw0KGgo=", Width: 1920, Height: 1080, Timestamp: &ts}
	if diff := cmp.Diff(want, shot); diff != "" {
		t.Errorf("shot mismatch (-want +got):\n%s", diff)
	}
	if path != "/screenshot" {
		t.Errorf("path = %q", path)
	}
	wantReq := captureRequest{
		APIKey: "key", ProfileID: "profile-x", URL: "https://x.com/bird",
		Width: 1920, Height: 1080, WaitForLoad: true, Timeout: 30000,
	}
	if diff := cmp.Diff(wantReq, got); diff != "" {
		t.Errorf("request mismatch (-want +got):\n%s", diff)
	}
}

func TestCaptureFailures(t *testing.T) {
	tests := []struct {
		name string
		code int
		body string
	}{
		{"http error", http.StatusServiceUnavailable, "busy"},
		{"api error", http.StatusOK, `{"success": false, "error": "profile locked"}`},
		{"bad json", http.StatusOK, `nope`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.code)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			if _, err := New(srv.Client(), srv.URL, "k", DefaultOptions).Capture(context.Background(), "u", "p"); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}
