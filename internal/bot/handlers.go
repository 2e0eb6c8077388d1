package bot

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"smm_boost/internal/model"
	"smm_boost/internal/scheduler"
	"smm_boost/internal/storage"
)

const historyLimit = 50

func (b *Bot) handleStart(chatID int64) {
	b.reply(chatID, `Welcome to SMM Boost!

Watch social accounts and boost every new post automatically.

Quick start:
1. /addaccount instagram <username> - monitor an account
2. /addaction <account_id> <service_id> <qty> - buy a service for each new post
3. /poll - check feeds now

Use /help for the full command reference.`)
}

func (b *Bot) handleHelp(chatID int64) {
	b.reply(chatID, `Accounts:
/accounts - show all accounts
/account <id> - account details and actions
/addaccount <platform> <username> [name] - add an account
/pause <id> - stop boosting an account
/resume <id> - resume boosting

Actions:
/addaction <account_id> <service_id> <qty|min-max> [service name]
/rmaction <action_id> - remove an action

Polling and history:
/poll - run a poll cycle now
/status - poller state and totals
/history [n] - recent executions
/refresh <execution_id> - update an order status

Action filters:
/filters <action_id> - show filters
/include <action_id> [-s scope] <word> - whitelist word/phrase
/exclude <action_id> [-s scope] <word> - blacklist word/phrase
/include_re <action_id> [-s scope] <regex> - whitelist regex
/exclude_re <action_id> [-s scope] <regex> - blacklist regex
/rmfilter <filter_id> - remove a filter

Platforms: instagram, facebook, x, tiktok
Scope flag: -s title | content | all (default: all)`)
}

func (b *Bot) handleAccounts(ctx context.Context, chatID int64) {
	list, err := b.deps.Accounts.List(ctx)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, FormatAccountList(list))
}

func (b *Bot) handleAccount(ctx context.Context, chatID int64, args string) {
	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /account <id>")
		return
	}

	d, err := b.deps.Accounts.Get(ctx, id)
	if err != nil {
		b.replyErr(chatID, fmt.Sprintf("Account #%d", id), err)
		return
	}
	b.replyWithKeyboard(chatID, FormatAccountDetail(d), accountKeyboard(d.Account))
}

func accountKeyboard(a model.Account) tgbotapi.InlineKeyboardMarkup {
	toggle := tgbotapi.NewInlineKeyboardButtonData("Pause", fmt.Sprintf("%s:%d", cmdPause, a.ID))
	if !a.Enabled {
		toggle = tgbotapi.NewInlineKeyboardButtonData("Resume", fmt.Sprintf("%s:%d", cmdResume, a.ID))
	}
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			toggle,
			tgbotapi.NewInlineKeyboardButtonData("History", fmt.Sprintf("%s:%d", cmdHistory, a.ID)),
			tgbotapi.NewInlineKeyboardButtonData("Delete", fmt.Sprintf("%s:%d", cbDeleteConfirm, a.ID)),
		),
	)
}

func (b *Bot) handleAddAccount(ctx context.Context, chatID int64, args string) {
	platform, username, name, err := ParseAccountArgs(args)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}

	acc, err := b.deps.Accounts.CreateAccount(ctx, platform, username, name)
	if acc == nil {
		b.reply(chatID, fmt.Sprintf("Failed to add account: %v", err))
		return
	}
	text := fmt.Sprintf("Account #%d %s @%s added.\nProfile: %s", acc.ID, PlatformLabel(acc.Platform), acc.Username, acc.URL)
	if err != nil {
		text += fmt.Sprintf("\nFeed setup failed: %v\nThe account will not be monitored until a feed exists.", err)
	} else {
		text += fmt.Sprintf("\nFeed is ready. Use /addaction %d <service_id> <qty> to start boosting.", acc.ID)
	}
	b.reply(chatID, text)
}

func (b *Bot) handleAddAction(ctx context.Context, chatID int64, args string) {
	parsed, err := ParseActionArgs(args)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}

	action := &model.Action{
		ServiceID:   parsed.ServiceID,
		ServiceName: parsed.ServiceName,
		Params: model.ActionParams{
			Quantity: parsed.Quantity,
			Comments: model.Comments{Mode: model.CommentsNone},
		},
	}
	res, err := b.deps.Accounts.AddAction(ctx, parsed.AccountID, action)
	if res.Action == nil {
		b.replyErr(chatID, fmt.Sprintf("Account #%d", parsed.AccountID), err)
		return
	}

	text := fmt.Sprintf("Action added to #%d: %s", parsed.AccountID, FormatAction(*res.Action))
	switch {
	case err != nil:
		text += fmt.Sprintf("\nBaseline failed: %v\nPosts are not boosted until a baseline succeeds.", err)
	case res.Baseline != nil:
		text += fmt.Sprintf("\nMonitoring started, %d existing posts skipped.", res.Baseline.PostsCount)
	case res.First:
		text += "\nMonitoring starts once the feed is ready."
	}
	b.reply(chatID, text)
}

func (b *Bot) handleRmAction(ctx context.Context, chatID int64, args string) {
	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /rmaction <action_id>")
		return
	}

	last, err := b.deps.Accounts.RemoveAction(ctx, id)
	if err != nil {
		b.replyErr(chatID, fmt.Sprintf("Action A%d", id), err)
		return
	}
	text := fmt.Sprintf("Action A%d removed.", id)
	if last {
		text += " No actions left, the account is paused."
	}
	b.reply(chatID, text)
}

func (b *Bot) handleSetEnabled(ctx context.Context, chatID int64, args string, enabled bool) {
	id, err := ParseIDArg(args)
	if err != nil {
		if enabled {
			b.reply(chatID, "Usage: /resume <id>")
		} else {
			b.reply(chatID, "Usage: /pause <id>")
		}
		return
	}

	if err := b.deps.Accounts.SetEnabled(ctx, id, enabled); err != nil {
		b.replyErr(chatID, fmt.Sprintf("Account #%d", id), err)
		return
	}
	if enabled {
		b.reply(chatID, fmt.Sprintf("Account #%d resumed.", id))
	} else {
		b.reply(chatID, fmt.Sprintf("Account #%d paused.", id))
	}
}

func (b *Bot) handleDeleteAccount(ctx context.Context, chatID int64, id int64) {
	if err := b.deps.Accounts.DeleteAccount(ctx, id); err != nil {
		b.replyErr(chatID, fmt.Sprintf("Account #%d", id), err)
		return
	}
	b.reply(chatID, fmt.Sprintf("Account #%d deleted.", id))
}

func (b *Bot) handlePoll(ctx context.Context, chatID int64) {
	b.reply(chatID, "Polling feeds...")
	sum, err := b.deps.Scheduler.TriggerOnce(ctx)
	b.reply(chatID, scheduler.FormatSummary(sum, err))
}

func (b *Bot) handleStatus(ctx context.Context, chatID int64) {
	stats, err := b.deps.History.Stats(ctx)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Poll now", cmdPoll+":0"),
		),
	)
	b.replyWithKeyboard(chatID, FormatStatus(b.deps.Scheduler.Status(), stats), kb)
}

func (b *Bot) handleHistory(ctx context.Context, chatID int64, args string) {
	n, err := ParseLimitArg(args, 10, historyLimit)
	if err != nil {
		b.reply(chatID, "Usage: /history [count]")
		return
	}
	b.sendHistory(ctx, chatID, model.ExecutionFilter{Limit: n})
}

func (b *Bot) sendHistory(ctx context.Context, chatID int64, f model.ExecutionFilter) {
	records, err := b.deps.History.List(ctx, f)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}

	var rows [][]tgbotapi.InlineKeyboardButton
	for _, r := range records {
		if !r.Refreshable() || len(rows) == 5 {
			continue
		}
		switch r.Status {
		case model.StatusPending, model.StatusInProgress, model.StatusPreparing:
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("Refresh E%d", r.ID), fmt.Sprintf("%s:%d", cmdRefresh, r.ID)),
			))
		}
	}
	if len(rows) == 0 {
		b.reply(chatID, FormatHistory(records))
		return
	}
	b.replyWithKeyboard(chatID, FormatHistory(records), tgbotapi.NewInlineKeyboardMarkup(rows...))
}

func (b *Bot) handleRefresh(ctx context.Context, chatID int64, args string) {
	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /refresh <execution_id>")
		return
	}

	res, err := b.deps.History.Refresh(ctx, id)
	if err != nil {
		b.replyErr(chatID, fmt.Sprintf("Execution E%d", id), err)
		return
	}
	if !res.Changed {
		b.reply(chatID, fmt.Sprintf("Execution E%d is still %s.", id, res.Execution.Status))
		return
	}
	b.reply(chatID, fmt.Sprintf("Execution E%d: %s → %s.", id, res.Previous, res.Execution.Status))
}

func (b *Bot) handleFilters(ctx context.Context, chatID int64, args string) {
	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /filters <action_id>")
		return
	}

	filters, err := b.deps.Accounts.ListFilters(ctx, id)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, FormatFilterList(id, filters))
}

func (b *Bot) handleAddFilter(ctx context.Context, chatID int64, args string, kind model.FilterKind) {
	parsed, err := ParseFilterCommand(args)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}

	f := &model.Filter{
		ActionID: parsed.ActionID,
		Kind:     kind,
		Scope:    parsed.Scope,
		Value:    parsed.Value,
	}
	if err := b.deps.Accounts.AddFilter(ctx, f); err != nil {
		b.replyErr(chatID, fmt.Sprintf("Action A%d", parsed.ActionID), err)
		return
	}

	b.reply(chatID, fmt.Sprintf("Filter F%d added to action A%d: %s %s (%s)",
		f.ID, f.ActionID, kind, parsed.Value, scopeLabel(parsed.Scope)))
}

func (b *Bot) handleRmFilter(ctx context.Context, chatID int64, args string) {
	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /rmfilter <filter_id>")
		return
	}

	f, err := b.deps.Accounts.RemoveFilter(ctx, id)
	if err != nil {
		b.replyErr(chatID, fmt.Sprintf("Filter F%d", id), err)
		return
	}
	b.reply(chatID, fmt.Sprintf("Filter F%d removed from action A%d.", id, f.ActionID))
}

// replyErr reports a failed operation on subject, turning a missing row into "not found".
func (b *Bot) replyErr(chatID int64, subject string, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		b.reply(chatID, subject+" not found.")
		return
	}
	b.reply(chatID, fmt.Sprintf("Error: %v", err))
}
