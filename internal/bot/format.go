package bot

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"smm_boost/internal/accounts"
	"smm_boost/internal/model"
	"smm_boost/internal/scheduler"
)

const (
	statusActive = "active"
	statusPaused = "paused"

	timeFormat = "2006-01-02 15:04 UTC"
)

var titleCaser = cases.Title(language.English)

// PlatformLabel renders a platform for display.
func PlatformLabel(p model.Platform) string {
	if p == model.PlatformX {
		return "X"
	}
	if p == model.PlatformTikTok {
		return "TikTok"
	}
	return titleCaser.String(string(p))
}

func accountStatus(a model.Account) string {
	if a.Enabled {
		return statusActive
	}
	return statusPaused
}

// FormatAccountList formats the monitored accounts for display.
func FormatAccountList(list []model.Account) string {
	if len(list) == 0 {
		return "No accounts yet. Use /addaccount <platform> <username> to add one."
	}
	var b strings.Builder
	b.WriteString("Accounts:\n")
	for _, a := range list {
		fmt.Fprintf(&b, "\n#%d %s @%s [%s]\n", a.ID, PlatformLabel(a.Platform), a.Username, accountStatus(a))
		fmt.Fprintf(&b, "   feed: %s", a.RSSStatus)
		if a.LastCheckAt != nil {
			fmt.Fprintf(&b, ", checked %s", a.LastCheckAt.UTC().Format(timeFormat))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// FormatAccountDetail formats an account with its feed and actions.
func FormatAccountDetail(d *accounts.Detail) string {
	a := d.Account
	var b strings.Builder
	fmt.Fprintf(&b, "#%d %s @%s [%s]\n", a.ID, PlatformLabel(a.Platform), a.Username, accountStatus(a))
	if a.DisplayName != "" {
		fmt.Fprintf(&b, "Name: %s\n", a.DisplayName)
	}
	fmt.Fprintf(&b, "Profile: %s\n", a.URL)
	fmt.Fprintf(&b, "Feed: %s", a.RSSStatus)
	if d.Feed != nil {
		fmt.Fprintf(&b, " (%s)", d.Feed.URL)
	}
	b.WriteString("\n")
	if a.LastPostAt != nil {
		fmt.Fprintf(&b, "Watermark: %s\n", a.LastPostAt.UTC().Format(timeFormat))
	}
	if a.LastCheckAt != nil {
		fmt.Fprintf(&b, "Last check: %s\n", a.LastCheckAt.UTC().Format(timeFormat))
	}

	if len(d.Actions) == 0 {
		fmt.Fprintf(&b, "\nNo actions. Use /addaction %d <service_id> <qty> to add one.", a.ID)
		return b.String()
	}
	b.WriteString("\nActions:\n")
	for _, act := range d.Actions {
		b.WriteString("  ")
		b.WriteString(FormatAction(act))
		b.WriteString("\n")
	}
	return b.String()
}

// FormatAction formats a single action on one line.
func FormatAction(a model.Action) string {
	name := a.ServiceName
	if name == "" {
		name = fmt.Sprintf("service %d", a.ServiceID)
	}
	line := fmt.Sprintf("A%d: %s x%s", a.ID, name, a.Params.Quantity)
	switch a.Params.Comments.Mode {
	case model.CommentsLLM:
		line += " (generated comments)"
	case model.CommentsLiteral:
		line += fmt.Sprintf(" (%d comments)", len(a.Params.Comments.Literal))
	}
	if !a.IsActive {
		line += " [inactive]"
	}
	return line
}

// FormatFilterList formats the filter rules of an action grouped by kind.
func FormatFilterList(actionID int64, filters []model.Filter) string {
	if len(filters) == 0 {
		return fmt.Sprintf("No filters for action A%d, every new post fires it.\nUse /include, /exclude, /include_re, /exclude_re to add filters.", actionID)
	}

	groups := map[string][]model.Filter{
		"Include (word)":  {},
		"Include (regex)": {},
		"Exclude (word)":  {},
		"Exclude (regex)": {},
	}
	for _, f := range filters {
		switch f.Kind {
		case model.FilterInclude:
			groups["Include (word)"] = append(groups["Include (word)"], f)
		case model.FilterIncludeRe:
			groups["Include (regex)"] = append(groups["Include (regex)"], f)
		case model.FilterExclude:
			groups["Exclude (word)"] = append(groups["Exclude (word)"], f)
		case model.FilterExcludeRe:
			groups["Exclude (regex)"] = append(groups["Exclude (regex)"], f)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Filters for action A%d:\n", actionID)

	order := []string{"Include (word)", "Include (regex)", "Exclude (word)", "Exclude (regex)"}
	for _, groupName := range order {
		fs := groups[groupName]
		if len(fs) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n%s:\n", groupName)
		for _, f := range fs {
			fmt.Fprintf(&b, "  F%d: %s (%s)\n", f.ID, f.Value, scopeLabel(f.Scope))
		}
	}
	return b.String()
}

// FormatHistory formats recent executions, newest first.
func FormatHistory(records []model.ExecutionRecord) string {
	if len(records) == 0 {
		return "No executions yet."
	}
	var b strings.Builder
	b.WriteString("Recent executions:\n")
	for _, r := range records {
		fmt.Fprintf(&b, "\nE%d %s [%s]\n", r.ID, r.CreatedAt.UTC().Format(timeFormat), r.Status)
		who := ""
		if r.AccountUsername != "" {
			who = " @" + r.AccountUsername
		}
		fmt.Fprintf(&b, "   %s%s x%d", r.ServiceName, who, r.Quantity)
		if r.Cost != nil {
			fmt.Fprintf(&b, ", $%.4f", *r.Cost)
		}
		fmt.Fprintf(&b, "\n   order %s\n", r.OrderID)
	}
	return b.String()
}

// FormatStatus formats the scheduler state and execution totals.
func FormatStatus(st scheduler.Status, stats model.ExecutionStats) string {
	var b strings.Builder
	if st.Running {
		b.WriteString("Poller: running\n")
	} else {
		b.WriteString("Poller: stopped\n")
	}
	if st.LastRun != nil {
		fmt.Fprintf(&b, "Last run: %s\n", st.LastRun.UTC().Format(timeFormat))
	}
	if st.NextRun != nil {
		fmt.Fprintf(&b, "Next run: in %s\n", time.Until(*st.NextRun).Round(time.Second))
	}
	if st.LastError != "" {
		fmt.Fprintf(&b, "Last error: %s\n", st.LastError)
	}
	if s := st.LastSummary; s != nil {
		fmt.Fprintf(&b, "Last cycle: %d feeds, %d new posts, %d actions\n", s.FeedsProcessed, s.NewPosts, s.ActionsTriggered)
	}

	fmt.Fprintf(&b, "\nExecutions: %d, spent $%.2f\n", stats.Total, stats.TotalCost)
	for _, status := range []model.ExecutionStatus{
		model.StatusPending, model.StatusInProgress, model.StatusCompleted,
		model.StatusPartial, model.StatusCanceled, model.StatusFailed,
	} {
		if n := stats.ByStatus[status]; n > 0 {
			fmt.Fprintf(&b, "  %s: %d\n", status, n)
		}
	}
	return b.String()
}

func scopeLabel(s model.FilterScope) string {
	switch s {
	case model.ScopeTitle:
		return "title only"
	case model.ScopeContent:
		return "content only"
	default:
		return "title+content"
	}
}
