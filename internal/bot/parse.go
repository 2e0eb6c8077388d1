package bot

import (
	"fmt"
	"strconv"
	"strings"

	"smm_boost/internal/model"
)

// FilterArgs holds the parsed arguments of a filter command.
type FilterArgs struct {
	ActionID int64
	Scope    model.FilterScope
	Value    string
}

// ParseFilterCommand parses arguments for /include, /exclude, etc.
// Format: <action_id> [-s title|content|all] <value...>
func ParseFilterCommand(args string) (FilterArgs, error) {
	parts := strings.Fields(args)
	if len(parts) < 2 {
		return FilterArgs{}, fmt.Errorf("usage: <action_id> [-s title|content|all] <value>")
	}

	actionID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return FilterArgs{}, fmt.Errorf("invalid action ID %q", parts[0])
	}

	scope := model.ScopeAll
	rest := parts[1:]

	if len(rest) >= 2 && rest[0] == "-s" {
		switch rest[1] {
		case "title":
			scope = model.ScopeTitle
		case "content":
			scope = model.ScopeContent
		case "all":
			scope = model.ScopeAll
		default:
			return FilterArgs{}, fmt.Errorf("invalid scope %q, use: title, content, all", rest[1])
		}
		rest = rest[2:]
	}

	if len(rest) == 0 {
		return FilterArgs{}, fmt.Errorf("filter value is required")
	}

	return FilterArgs{
		ActionID: actionID,
		Scope:    scope,
		Value:    strings.Join(rest, " "),
	}, nil
}

// ParseIDArg extracts a numeric ID from a command argument string.
func ParseIDArg(args string) (int64, error) {
	s := strings.TrimSpace(args)
	if s == "" {
		return 0, fmt.Errorf("ID is required")
	}
	id, err := strconv.ParseInt(strings.Fields(s)[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid ID %q", s)
	}
	return id, nil
}

// ParseQuantity parses "50" as a fixed quantity and "50-100" as a range.
func ParseQuantity(s string) (model.Quantity, error) {
	var q model.Quantity
	if a, b, ok := strings.Cut(s, "-"); ok {
		lo, err1 := strconv.Atoi(a)
		hi, err2 := strconv.Atoi(b)
		if err1 != nil || err2 != nil {
			return q, fmt.Errorf("invalid quantity range %q", s)
		}
		q = model.RangeQuantity(lo, hi)
	} else {
		n, err := strconv.Atoi(s)
		if err != nil {
			return q, fmt.Errorf("invalid quantity %q", s)
		}
		q = model.FixedQuantity(n)
	}
	if err := q.Validate(); err != nil {
		return model.Quantity{}, err
	}
	return q, nil
}

// ActionArgs holds the parsed arguments of /addaction.
type ActionArgs struct {
	AccountID   int64
	ServiceID   int64
	Quantity    model.Quantity
	ServiceName string
}

// ParseActionArgs parses <account_id> <service_id> <qty|min-max> [service name...].
func ParseActionArgs(args string) (ActionArgs, error) {
	parts := strings.Fields(args)
	if len(parts) < 3 {
		return ActionArgs{}, fmt.Errorf("usage: /addaction <account_id> <service_id> <qty|min-max> [service name]")
	}
	accountID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return ActionArgs{}, fmt.Errorf("invalid account ID %q", parts[0])
	}
	serviceID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || serviceID <= 0 {
		return ActionArgs{}, fmt.Errorf("invalid service ID %q", parts[1])
	}
	q, err := ParseQuantity(parts[2])
	if err != nil {
		return ActionArgs{}, err
	}
	return ActionArgs{
		AccountID:   accountID,
		ServiceID:   serviceID,
		Quantity:    q,
		ServiceName: strings.Join(parts[3:], " "),
	}, nil
}

// ParseAccountArgs parses <platform> <username> [display name...].
func ParseAccountArgs(args string) (platform, username, displayName string, err error) {
	parts := strings.Fields(args)
	if len(parts) < 2 {
		return "", "", "", fmt.Errorf("usage: /addaccount <platform> <username> [display name]")
	}
	return parts[0], parts[1], strings.Join(parts[2:], " "), nil
}

// ParseLimitArg parses an optional positive count, capped at limit.
func ParseLimitArg(args string, def, limit int) (int, error) {
	s := strings.TrimSpace(args)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid count %q", s)
	}
	return min(n, limit), nil
}
