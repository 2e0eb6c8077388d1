// Package model defines the domain types used across the application.
package model

import (
	"fmt"
	"strings"
	"time"
)

// Platform identifies a social network.
type Platform string

// Supported platforms.
const (
	PlatformInstagram Platform = "instagram"
	PlatformFacebook  Platform = "facebook"
	PlatformX         Platform = "x"
	PlatformTikTok    Platform = "tiktok"
)

// ParsePlatform normalises a platform name. "twitter" is accepted as an alias of x.
func ParsePlatform(s string) (Platform, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "instagram", "ig":
		return PlatformInstagram, nil
	case "facebook", "fb":
		return PlatformFacebook, nil
	case "x", "twitter":
		return PlatformX, nil
	case "tiktok":
		return PlatformTikTok, nil
	}
	return "", fmt.Errorf("unsupported platform %q", s)
}

// ProfileURL builds the conventional profile URL for a username.
func (p Platform) ProfileURL(username string) string {
	username = strings.TrimPrefix(strings.TrimSpace(username), "@")
	switch p {
	case PlatformInstagram:
		return "https://www.instagram.com/" + username
	case PlatformFacebook:
		return "https://www.facebook.com/" + username
	case PlatformX:
		return "https://x.com/" + username
	case PlatformTikTok:
		return "https://www.tiktok.com/@" + username
	}
	return ""
}

// FeedStatus is the binding state between an account and its upstream feed.
type FeedStatus string

// Feed binding states.
const (
	FeedPending FeedStatus = "pending"
	FeedActive  FeedStatus = "active"
	FeedFailed  FeedStatus = "failed"
)

// Account is a monitored social media account.
type Account struct {
	ID          int64
	Platform    Platform
	Username    string
	DisplayName string
	URL         string
	Enabled     bool
	RSSStatus   FeedStatus
	LastCheckAt *time.Time
	LastPostAt  *time.Time
	CreatedAt   time.Time
}

// Action is a boost purchase attached to an account and fired for every new post.
type Action struct {
	ID          int64
	AccountID   int64
	ActionType  string
	ServiceID   int64
	ServiceName string
	Params      ActionParams
	IsActive    bool
	CreatedAt   time.Time
}

// IsCommentService reports whether the action targets a comment-type service.
func (a *Action) IsCommentService() bool {
	return strings.Contains(strings.ToLower(a.ServiceName), "comment")
}

// Feed is the upstream RSS feed bound to an account.
type Feed struct {
	ID          int64
	AccountID   int64
	ExternalID  string
	Title       string
	SourceURL   string
	URL         string
	IsActive    bool
	LastCheckAt *time.Time
	LastPostAt  *time.Time
	CreatedAt   time.Time
}

// Post is a single item surfaced by a feed.
type Post struct {
	GUID        string
	Link        string
	Title       string
	Description string
	PublishedAt *time.Time
}

// ProcessedPost is a ledger row claiming a feed item.
type ProcessedPost struct {
	FeedID           int64
	PostGUID         string
	PostURL          string
	PostTitle        string
	PublishedAt      *time.Time
	ActionsTriggered int
	ProcessedAt      time.Time
}

// FilterKind defines the type of filter rule.
type FilterKind string

// Supported filter kinds.
const (
	FilterInclude   FilterKind = "include"
	FilterExclude   FilterKind = "exclude"
	FilterIncludeRe FilterKind = "include_re"
	FilterExcludeRe FilterKind = "exclude_re"
)

// FilterScope defines which part of a post a filter matches against.
type FilterScope string

// Supported filter scopes.
const (
	ScopeTitle   FilterScope = "title"
	ScopeContent FilterScope = "content"
	ScopeAll     FilterScope = "all"
)

// Filter restricts which posts fire an action.
type Filter struct {
	ID        int64
	ActionID  int64
	Kind      FilterKind
	Scope     FilterScope
	Value     string
	CreatedAt time.Time
}

// PollStatus is the outcome of one feed in one poll cycle.
type PollStatus string

// Poll outcomes.
const (
	PollSuccess    PollStatus = "success"
	PollNoNewPosts PollStatus = "no_new_posts"
	PollError      PollStatus = "error"
)

// PollLogEntry is the audit record of one feed in one poll cycle.
type PollLogEntry struct {
	ID               int64
	FeedID           int64
	PolledAt         time.Time
	PostsFound       int
	NewPosts         int
	ActionsTriggered int
	Status           PollStatus
	ErrorMessage     string
}

// PollStats aggregates poll log entries over a time window.
type PollStats struct {
	Polls            int
	Errors           int
	NewPosts         int
	ActionsTriggered int
}
