package rssapp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"smm_boost/internal/clients"
)

func TestCreateFeed(t *testing.T) {
	var auth, path, sent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		path = r.URL.Path
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		sent = body["url"]
		_, _ = w.Write([]byte(`{"id": "f-1", "title": "studio.daily", "rss_feed_url": "https://rss.app/feeds/f-1.xml"}`))
	}))
	defer srv.Close()

	c := New(srv.Client(), srv.URL, "key", "secret")
	got, err := c.CreateFeed(context.Background(), "https://www.instagram.com/studio.daily")
	if err != nil {
		t.Fatalf("create feed: %v", err)
	}
	want := clients.ProvisionedFeed{
		ExternalID: "f-1",
		Title:      "studio.daily",
		SourceURL:  "https://www.instagram.com/studio.daily",
		URL:        "https://rss.app/feeds/f-1.xml",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("feed mismatch (-want +got):\n%s", diff)
	}
	if auth != "Bearer key:secret" || path != "/v1/feeds" || sent != want.SourceURL {
		t.Errorf("unexpected request: auth=%q path=%q url=%q", auth, path, sent)
	}
}

func TestCreateFeedErrors(t *testing.T) {
	tests := []struct {
		name    string
		code    int
		body    string
		wantMsg string
	}{
		{"api message", http.StatusPaymentRequired, `{"message": "Plan limit reached"}`, "Plan limit reached"},
		{"bare status", http.StatusInternalServerError, `oops`, "unexpected status 500"},
		{"no feed url", http.StatusOK, `{"id": "f-1"}`, "no feed url"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.code)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := New(srv.Client(), srv.URL, "k", "s").CreateFeed(context.Background(), "u")
			if err == nil || !strings.Contains(err.Error(), tt.wantMsg) {
				t.Fatalf("error = %v, want it to contain %q", err, tt.wantMsg)
			}
		})
	}
}
