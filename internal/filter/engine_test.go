package filter

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"smm_boost/internal/model"
)

func TestMatch(t *testing.T) {
	tests := []struct {
		name    string
		post    model.Post
		filters []model.Filter
		want    bool
	}{
		{
			name: "no filters passes everything",
			post: model.Post{Title: "anything", Description: "whatever"},
			want: true,
		},
		{
			name: "include word matches case insensitive",
			post: model.Post{Title: "NEW DROP this friday", Description: "sneakers"},
			filters: []model.Filter{
				{Kind: model.FilterInclude, Scope: model.ScopeAll, Value: "drop"},
			},
			want: true,
		},
		{
			name: "include word no match",
			post: model.Post{Title: "Behind the scenes", Description: "studio day"},
			filters: []model.Filter{
				{Kind: model.FilterInclude, Scope: model.ScopeAll, Value: "drop"},
			},
			want: false,
		},
		{
			name: "includes are ored",
			post: model.Post{Title: "Giveaway time"},
			filters: []model.Filter{
				{Kind: model.FilterInclude, Scope: model.ScopeAll, Value: "drop"},
				{Kind: model.FilterInclude, Scope: model.ScopeAll, Value: "giveaway"},
			},
			want: true,
		},
		{
			name: "exclude wins over include",
			post: model.Post{Title: "Drop giveaway"},
			filters: []model.Filter{
				{Kind: model.FilterInclude, Scope: model.ScopeAll, Value: "drop"},
				{Kind: model.FilterExclude, Scope: model.ScopeAll, Value: "giveaway"},
			},
			want: false,
		},
		{
			name: "title scope ignores description",
			post: model.Post{Title: "Morning run", Description: "sponsored"},
			filters: []model.Filter{
				{Kind: model.FilterExclude, Scope: model.ScopeTitle, Value: "sponsored"},
			},
			want: true,
		},
		{
			name: "content scope",
			post: model.Post{Title: "Morning run", Description: "#sponsored post"},
			filters: []model.Filter{
				{Kind: model.FilterExclude, Scope: model.ScopeContent, Value: "sponsored"},
			},
			want: false,
		},
		{
			name: "regex include",
			post: model.Post{Title: "Episode 42 is live"},
			filters: []model.Filter{
				{Kind: model.FilterIncludeRe, Scope: model.ScopeTitle, Value: `episode \d+`},
			},
			want: true,
		},
		{
			name: "invalid regex is ignored",
			post: model.Post{Title: "anything"},
			filters: []model.Filter{
				{Kind: model.FilterExcludeRe, Scope: model.ScopeAll, Value: "[invalid"},
			},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Match(tt.post, tt.filters)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Match mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		filter  model.Filter
		wantErr bool
	}{
		{"valid word", model.Filter{Kind: model.FilterInclude, Scope: model.ScopeAll, Value: "x"}, false},
		{"valid regex", model.Filter{Kind: model.FilterIncludeRe, Scope: model.ScopeTitle, Value: `^\w+$`}, false},
		{"bad regex", model.Filter{Kind: model.FilterIncludeRe, Scope: model.ScopeTitle, Value: "[a-"}, true},
		{"unknown kind", model.Filter{Kind: "maybe", Scope: model.ScopeAll, Value: "x"}, true},
		{"unknown scope", model.Filter{Kind: model.FilterInclude, Scope: "body", Value: "x"}, true},
		{"empty value", model.Filter{Kind: model.FilterInclude, Scope: model.ScopeAll, Value: "  "}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.filter)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidFilter) {
				t.Errorf("expected ErrInvalidFilter, got %v", err)
			}
		})
	}
}

func TestNilSetAllows(t *testing.T) {
	var s *Set
	if !s.Allows(model.Post{Title: "x"}) {
		t.Error("nil set rejected a post")
	}
}
