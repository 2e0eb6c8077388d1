// Package clients defines the external collaborators of the engine and a
// Provider that resolves them at call time.
package clients

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"smm_boost/internal/fetcher"
	"smm_boost/internal/model"
)

// ErrNotConfigured is returned when a collaborator is needed but absent.
var ErrNotConfigured = errors.New("collaborator not configured")

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Order is a purchase request sent to the SMM panel.
type Order struct {
	ServiceID int64
	Link      string
	Quantity  int
	Comments  []string
}

// OrderStatus is the panel's view of an order.
type OrderStatus struct {
	Status     string
	Charge     *float64
	StartCount int
	Remains    int
	Currency   string
}

// Service is one entry of the panel's service catalogue.
type Service struct {
	ID       int64
	Name     string
	Type     string
	Category string
	Rate     float64
	Min      int
	Max      int
}

// OrderService places and tracks SMM orders.
type OrderService interface {
	CreateOrder(ctx context.Context, o Order) (string, error)
	OrderStatus(ctx context.Context, orderID string) (OrderStatus, error)
	Services(ctx context.Context) ([]Service, error)
}

// CommentRequest asks for generated comments about a post.
type CommentRequest struct {
	Content     string
	Count       int
	Directives  string
	UseHashtags bool
	UseEmojis   bool
}

// CommentGenerator produces comment text with an LLM.
type CommentGenerator interface {
	GenerateComments(ctx context.Context, req CommentRequest) ([]string, error)
}

// Shot is a captured page image.
type Shot struct {
	Data      string // base64 PNG
	Width     int
	Height    int
	Timestamp *time.Time
}

// Snapshotter captures a page through a logged-in browser profile.
type Snapshotter interface {
	Capture(ctx context.Context, url, profileID string) (Shot, error)
}

// ProvisionedFeed describes a feed created for a profile.
type ProvisionedFeed struct {
	ExternalID string
	Title      string
	SourceURL  string
	URL        string
}

// FeedProvisioner creates a feed for a social profile URL.
type FeedProvisioner interface {
	CreateFeed(ctx context.Context, sourceURL string) (ProvisionedFeed, error)
}

// FeedSource reads account feeds.
type FeedSource interface {
	ParseFeed(ctx context.Context, url string) ([]model.Post, error)
	ListNewItems(ctx context.Context, url string, since time.Time) (fetcher.Listing, error)
}

// Set groups the collaborators. Nil members are not configured.
type Set struct {
	Orders      OrderService
	Comments    CommentGenerator
	Snapshots   Snapshotter
	Feeds       FeedSource
	Provisioner FeedProvisioner
}

// Provider hands out the current collaborators. Reconfigure swaps them for
// subsequent calls without touching calls already in flight.
type Provider struct {
	set atomic.Pointer[Set]
}

// NewProvider creates a Provider holding s.
func NewProvider(s Set) *Provider {
	p := &Provider{}
	p.Reconfigure(s)
	return p
}

// Reconfigure replaces the collaborators.
func (p *Provider) Reconfigure(s Set) {
	p.set.Store(&s)
}

// Current returns a copy of the collaborators.
func (p *Provider) Current() Set {
	if s := p.set.Load(); s != nil {
		return *s
	}
	return Set{}
}

// Orders returns the order service.
func (p *Provider) Orders() (OrderService, error) {
	if o := p.Current().Orders; o != nil {
		return o, nil
	}
	return nil, fmt.Errorf("order service: %w", ErrNotConfigured)
}

// Comments returns the comment generator.
func (p *Provider) Comments() (CommentGenerator, error) {
	if c := p.Current().Comments; c != nil {
		return c, nil
	}
	return nil, fmt.Errorf("comment generator: %w", ErrNotConfigured)
}

// Snapshots returns the snapshotter.
func (p *Provider) Snapshots() (Snapshotter, error) {
	if s := p.Current().Snapshots; s != nil {
		return s, nil
	}
	return nil, fmt.Errorf("snapshotter: %w", ErrNotConfigured)
}

// Feeds returns the feed source.
func (p *Provider) Feeds() (FeedSource, error) {
	if f := p.Current().Feeds; f != nil {
		return f, nil
	}
	return nil, fmt.Errorf("feed source: %w", ErrNotConfigured)
}

// Provisioner returns the feed provisioner.
func (p *Provider) Provisioner() (FeedProvisioner, error) {
	if f := p.Current().Provisioner; f != nil {
		return f, nil
	}
	return nil, fmt.Errorf("feed provisioner: %w", ErrNotConfigured)
}
