// Package filter decides whether a feed post should run a given action.
package filter

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"smm_boost/internal/model"
)

// ErrInvalidFilter is returned for filters with an unknown kind, scope or a bad pattern.
var ErrInvalidFilter = errors.New("invalid filter")

type rule struct {
	include bool
	scope   model.FilterScope
	word    string
	re      *regexp.Regexp
}

// Set is the compiled filter list of one action.
type Set struct {
	includes []rule
	excludes []rule
}

// Compile validates filters and prepares them for matching.
func Compile(filters []model.Filter) (*Set, error) {
	s := &Set{}
	for _, f := range filters {
		r, err := compileRule(f)
		if err != nil {
			return nil, err
		}
		if r.include {
			s.includes = append(s.includes, r)
		} else {
			s.excludes = append(s.excludes, r)
		}
	}
	return s, nil
}

func compileRule(f model.Filter) (rule, error) {
	switch f.Scope {
	case model.ScopeTitle, model.ScopeContent, model.ScopeAll:
	default:
		return rule{}, fmt.Errorf("%w: unknown scope %q", ErrInvalidFilter, f.Scope)
	}
	if strings.TrimSpace(f.Value) == "" {
		return rule{}, fmt.Errorf("%w: empty value", ErrInvalidFilter)
	}

	r := rule{scope: f.Scope}
	switch f.Kind {
	case model.FilterInclude, model.FilterExclude:
		r.word = strings.ToLower(f.Value)
	case model.FilterIncludeRe, model.FilterExcludeRe:
		re, err := regexp.Compile("(?i)" + f.Value)
		if err != nil {
			return rule{}, fmt.Errorf("%w: %v", ErrInvalidFilter, err)
		}
		r.re = re
	default:
		return rule{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidFilter, f.Kind)
	}
	r.include = f.Kind == model.FilterInclude || f.Kind == model.FilterIncludeRe
	return r, nil
}

// Allows reports whether post passes the set.
// Include rules use OR logic (at least one must match).
// Exclude rules use AND logic (none must match).
// An empty set allows everything.
func (s *Set) Allows(post model.Post) bool {
	if s == nil {
		return true
	}
	for _, r := range s.excludes {
		if r.matches(post) {
			return false
		}
	}
	if len(s.includes) == 0 {
		return true
	}
	for _, r := range s.includes {
		if r.matches(post) {
			return true
		}
	}
	return false
}

// Match compiles filters and checks post against them. Invalid filters are ignored.
func Match(post model.Post, filters []model.Filter) bool {
	var valid []model.Filter
	for _, f := range filters {
		if _, err := compileRule(f); err == nil {
			valid = append(valid, f)
		}
	}
	s, _ := Compile(valid)
	return s.Allows(post)
}

// Validate checks a single filter before it is stored.
func Validate(f model.Filter) error {
	_, err := compileRule(f)
	return err
}

func (r rule) matches(post model.Post) bool {
	text := textForScope(post, r.scope)
	if r.re != nil {
		return r.re.MatchString(text)
	}
	return strings.Contains(text, r.word)
}

func textForScope(post model.Post, scope model.FilterScope) string {
	switch scope {
	case model.ScopeTitle:
		return strings.ToLower(post.Title)
	case model.ScopeContent:
		return strings.ToLower(post.Description)
	default:
		return strings.ToLower(post.Title + " " + post.Description)
	}
}
