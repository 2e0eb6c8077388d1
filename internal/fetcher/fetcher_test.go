package fetcher

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/mmcdole/gofeed"
)

type mockTransport struct {
	body       string
	statusCode int
	err        error
}

func (m *mockTransport) Do(_ *http.Request) (*http.Response, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &http.Response{
		StatusCode: m.statusCode,
		Body:       io.NopCloser(bytes.NewBufferString(m.body)),
	}, nil
}

func loadFixture(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path) //nolint:gosec // test-only fixture loading
	if err != nil {
		t.Fatalf("read fixture %s: %v", path, err)
	}
	return string(data)
}

func TestFetch(t *testing.T) {
	xml := loadFixture(t, "../../testdata/sample.xml")

	tests := []struct {
		name      string
		transport *mockTransport
		wantTitle string
		wantItems int
		wantErr   bool
	}{
		{
			name:      "successful fetch",
			transport: &mockTransport{body: xml, statusCode: 200},
			wantTitle: "@studio.daily on Instagram",
			wantItems: 5,
		},
		{
			name:      "http error status",
			transport: &mockTransport{body: "not found", statusCode: 404},
			wantErr:   true,
		},
		{
			name:      "network error",
			transport: &mockTransport{err: io.ErrUnexpectedEOF},
			wantErr:   true,
		},
		{
			name:      "invalid xml",
			transport: &mockTransport{body: "not xml at all", statusCode: 200},
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := New(tt.transport)
			feed, err := f.Fetch(context.Background(), "https://example.com/rss")

			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if diff := cmp.Diff(tt.wantTitle, feed.Title); diff != "" {
				t.Errorf("title mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.wantItems, len(feed.Items)); diff != "" {
				t.Errorf("item count mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestListNewItems(t *testing.T) {
	xml := loadFixture(t, "../../testdata/sample.xml")
	f := New(&mockTransport{body: xml, statusCode: 200})

	tests := []struct {
		name      string
		since     time.Time
		wantGUIDs []string
	}{
		{
			name:  "all dated items after an old watermark, oldest first",
			since: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
			wantGUIDs: []string{
				"ig-C1dddd",
				"https://www.instagram.com/p/C1cccc/",
				"ig-C1bbbb",
				"ig-C1aaaa",
			},
		},
		{
			name:      "watermark equal to an item excludes it",
			since:     time.Date(2026, 3, 4, 18, 30, 0, 0, time.UTC),
			wantGUIDs: []string{"ig-C1aaaa"},
		},
		{
			name:  "nothing newer",
			since: time.Date(2026, 3, 5, 10, 0, 1, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.ListNewItems(context.Background(), "https://example.com/rss", tt.since)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			var guids []string
			for _, p := range got.Items {
				guids = append(guids, p.GUID)
			}
			if diff := cmp.Diff(tt.wantGUIDs, guids); diff != "" {
				t.Errorf("guids mismatch (-want +got):\n%s", diff)
			}
			if got.Total != 5 {
				t.Errorf("total = %d, want 5", got.Total)
			}
		})
	}
}

func TestLatestPublished(t *testing.T) {
	xml := loadFixture(t, "../../testdata/sample.xml")
	f := New(&mockTransport{body: xml, statusCode: 200})

	posts, err := f.ParseFeed(context.Background(), "https://example.com/rss")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	got := LatestPublished(posts)
	want := time.Date(2026, 3, 5, 10, 0, 0, 0, time.UTC)
	if got == nil || !got.Equal(want) {
		t.Errorf("LatestPublished = %v, want %v", got, want)
	}
	if LatestPublished(nil) != nil {
		t.Error("LatestPublished(nil) should be nil")
	}
}

func TestItemGUID(t *testing.T) {
	tests := []struct {
		name     string
		item     *gofeed.Item
		wantGUID string
		hasHash  bool
	}{
		{
			name:     "with guid",
			item:     &gofeed.Item{GUID: "abc-123", Link: "https://example.com/p"},
			wantGUID: "abc-123",
		},
		{
			name:     "link when guid is missing",
			item:     &gofeed.Item{Title: "Post", Link: "https://example.com/post-1"},
			wantGUID: "https://example.com/post-1",
		},
		{
			name:    "hash when guid and link are missing",
			item:    &gofeed.Item{Title: "Post Without GUID"},
			hasHash: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ItemGUID(tt.item)
			if tt.hasHash {
				if !strings.HasPrefix(got, "sha256:") {
					t.Errorf("expected sha256 prefix, got %q", got)
				}
				return
			}
			if diff := cmp.Diff(tt.wantGUID, got); diff != "" {
				t.Errorf("GUID mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPlainText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain   text\n here", "plain text here"},
		{"<p>The <b>spring</b> collection</p>\n<p>is live</p>", "The spring collection is live"},
		{"Fish &amp; chips", "Fish & chips"},
		{"", ""},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, PlainText(tt.in)); diff != "" {
			t.Errorf("PlainText(%q) mismatch (-want +got):\n%s", tt.in, diff)
		}
	}
}
