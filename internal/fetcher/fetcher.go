// Package fetcher downloads account feeds and turns their items into posts.
package fetcher

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"smm_boost/internal/model"
)

const maxFeedSize = 5 * 1024 * 1024

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Listing is the result of ListNewItems.
type Listing struct {
	// Items newer than the watermark, oldest first.
	Items []model.Post
	// Total is the number of items in the feed, dated or not.
	Total int
}

// Fetcher downloads and parses RSS and Atom feeds.
type Fetcher struct {
	client    HTTPClient
	userAgent string
}

// New creates a Fetcher with the given HTTP client.
func New(client HTTPClient) *Fetcher {
	return &Fetcher{
		client:    client,
		userAgent: "SMMBoost/1.0",
	}
}

// Fetch downloads and parses a feed from the given URL.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*gofeed.Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	feed, err := gofeed.NewParser().Parse(io.LimitReader(resp.Body, maxFeedSize))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	return feed, nil
}

// ParseFeed returns every item of the feed as a post, in feed order.
func (f *Fetcher) ParseFeed(ctx context.Context, url string) ([]model.Post, error) {
	feed, err := f.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	posts := make([]model.Post, 0, len(feed.Items))
	for _, item := range feed.Items {
		posts = append(posts, ToPost(item))
	}
	return posts, nil
}

// ListNewItems returns the posts published strictly after since.
// Items without a parseable date are never considered new.
func (f *Fetcher) ListNewItems(ctx context.Context, url string, since time.Time) (Listing, error) {
	feed, err := f.Fetch(ctx, url)
	if err != nil {
		return Listing{}, err
	}

	out := Listing{Total: len(feed.Items)}
	for _, item := range feed.Items {
		p := ToPost(item)
		if p.PublishedAt == nil || !p.PublishedAt.After(since) {
			continue
		}
		out.Items = append(out.Items, p)
	}
	slices.SortStableFunc(out.Items, func(a, b model.Post) int {
		return a.PublishedAt.Compare(*b.PublishedAt)
	})
	return out, nil
}

// ToPost converts a parsed feed item.
func ToPost(item *gofeed.Item) model.Post {
	p := model.Post{
		GUID:        ItemGUID(item),
		Link:        item.Link,
		Title:       item.Title,
		Description: item.Description,
	}
	if p.Description == "" {
		p.Description = item.Content
	}
	switch {
	case item.PublishedParsed != nil:
		t := item.PublishedParsed.UTC()
		p.PublishedAt = &t
	case item.UpdatedParsed != nil:
		t := item.UpdatedParsed.UTC()
		p.PublishedAt = &t
	}
	return p
}

// ItemGUID returns the identity of a feed item: its GUID, else its link,
// else a SHA-256 hash of title+link.
func ItemGUID(item *gofeed.Item) string {
	if item.GUID != "" {
		return item.GUID
	}
	if item.Link != "" {
		return item.Link
	}
	h := sha256.Sum256([]byte(item.Title + "|" + item.Link))
	return fmt.Sprintf("sha256:%x", h[:16])
}

// LatestPublished returns the newest publication time among posts, or nil when none is dated.
func LatestPublished(posts []model.Post) *time.Time {
	var latest *time.Time
	for _, p := range posts {
		if p.PublishedAt != nil && (latest == nil || p.PublishedAt.After(*latest)) {
			latest = p.PublishedAt
		}
	}
	return latest
}

// PlainText strips markup from an HTML fragment and collapses whitespace.
func PlainText(html string) string {
	if !strings.ContainsAny(html, "<&") {
		return strings.Join(strings.Fields(html), " ")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return strings.Join(strings.Fields(html), " ")
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}
