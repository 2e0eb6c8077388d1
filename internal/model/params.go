package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidParams is returned when an action's parameters fail validation.
var ErrInvalidParams = errors.New("invalid action parameters")

// QuantityKind selects how an execution's quantity is resolved.
type QuantityKind string

// Quantity kinds.
const (
	QuantityFixed QuantityKind = "fixed"
	QuantityRange QuantityKind = "range"
)

// Quantity is either a fixed amount or an inclusive range sampled per execution.
type Quantity struct {
	Kind  QuantityKind
	Fixed int
	Min   int
	Max   int
}

// FixedQuantity returns a quantity that always resolves to n.
func FixedQuantity(n int) Quantity {
	return Quantity{Kind: QuantityFixed, Fixed: n}
}

// RangeQuantity returns a quantity drawn uniformly from [lo, hi].
func RangeQuantity(lo, hi int) Quantity {
	return Quantity{Kind: QuantityRange, Min: lo, Max: hi}
}

// Validate checks the quantity bounds.
func (q Quantity) Validate() error {
	switch q.Kind {
	case QuantityFixed:
		if q.Fixed <= 0 {
			return fmt.Errorf("%w: quantity must be positive", ErrInvalidParams)
		}
	case QuantityRange:
		if q.Min <= 0 || q.Max < q.Min {
			return fmt.Errorf("%w: range %d-%d is invalid", ErrInvalidParams, q.Min, q.Max)
		}
	default:
		return fmt.Errorf("%w: unknown quantity kind %q", ErrInvalidParams, q.Kind)
	}
	return nil
}

// Resolve picks the quantity for one execution. intn must return a value in [0, n).
func (q Quantity) Resolve(intn func(n int) int) int {
	if q.Kind == QuantityRange {
		return q.Min + intn(q.Max-q.Min+1)
	}
	return q.Fixed
}

// String renders the quantity for operators.
func (q Quantity) String() string {
	if q.Kind == QuantityRange {
		return fmt.Sprintf("%d-%d", q.Min, q.Max)
	}
	return fmt.Sprintf("%d", q.Fixed)
}

// CommentMode selects where comment text comes from.
type CommentMode string

// Comment modes.
const (
	CommentsNone    CommentMode = "none"
	CommentsLiteral CommentMode = "literal"
	CommentsLLM     CommentMode = "llm"
)

// Comments describes the comment source of an action.
type Comments struct {
	Mode        CommentMode
	Literal     []string
	Directives  string
	UseHashtags bool
	UseEmojis   bool
}

// Validate checks that the selected mode carries what it needs.
func (c Comments) Validate() error {
	switch c.Mode {
	case CommentsNone, "":
	case CommentsLiteral:
		if len(c.Literal) == 0 {
			return fmt.Errorf("%w: literal comments are empty", ErrInvalidParams)
		}
	case CommentsLLM:
		if strings.TrimSpace(c.Directives) == "" {
			return fmt.Errorf("%w: llm comments need directives", ErrInvalidParams)
		}
	default:
		return fmt.Errorf("%w: unknown comment mode %q", ErrInvalidParams, c.Mode)
	}
	return nil
}

// ActionParams is the validated parameter set of an action.
type ActionParams struct {
	Quantity Quantity
	Comments Comments
}

// Validate checks the whole parameter set.
func (p ActionParams) Validate() error {
	if err := p.Quantity.Validate(); err != nil {
		return err
	}
	return p.Comments.Validate()
}

// paramsWire is the flat JSON shape stored in actions.parameters and accepted by the API.
type paramsWire struct {
	Quantity       int    `json:"quantity,omitempty"`
	QuantityMin    int    `json:"quantity_min,omitempty"`
	QuantityMax    int    `json:"quantity_max,omitempty"`
	UseRange       bool   `json:"use_range,omitempty"`
	UseLLM         bool   `json:"use_llm_generation,omitempty"`
	Directives     string `json:"comment_directives,omitempty"`
	UseHashtags    bool   `json:"use_hashtags,omitempty"`
	UseEmojis      bool   `json:"use_emojis,omitempty"`
	CustomComments string `json:"custom_comments,omitempty"`
}

// MarshalJSON encodes the params in the flat wire shape.
func (p ActionParams) MarshalJSON() ([]byte, error) {
	var w paramsWire
	switch p.Quantity.Kind {
	case QuantityRange:
		w.UseRange = true
		w.QuantityMin = p.Quantity.Min
		w.QuantityMax = p.Quantity.Max
	default:
		w.Quantity = p.Quantity.Fixed
	}
	switch p.Comments.Mode {
	case CommentsLLM:
		w.UseLLM = true
		w.Directives = p.Comments.Directives
		w.UseHashtags = p.Comments.UseHashtags
		w.UseEmojis = p.Comments.UseEmojis
	case CommentsLiteral:
		w.CustomComments = strings.Join(p.Comments.Literal, "\n")
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes the flat wire shape and validates it.
// LLM generation supersedes literal comments when it is enabled with non-empty directives.
func (p *ActionParams) UnmarshalJSON(data []byte) error {
	var w paramsWire
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}

	var out ActionParams
	if w.UseRange {
		out.Quantity = RangeQuantity(w.QuantityMin, w.QuantityMax)
	} else {
		out.Quantity = FixedQuantity(w.Quantity)
	}

	literal := splitComments(w.CustomComments)
	switch {
	case w.UseLLM && strings.TrimSpace(w.Directives) != "":
		out.Comments = Comments{
			Mode:        CommentsLLM,
			Directives:  strings.TrimSpace(w.Directives),
			UseHashtags: w.UseHashtags,
			UseEmojis:   w.UseEmojis,
		}
	case len(literal) > 0:
		out.Comments = Comments{Mode: CommentsLiteral, Literal: literal}
	default:
		out.Comments = Comments{Mode: CommentsNone}
	}

	if err := out.Validate(); err != nil {
		return err
	}
	*p = out
	return nil
}

func splitComments(raw string) []string {
	var out []string
	for _, line := range strings.Split(raw, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}
