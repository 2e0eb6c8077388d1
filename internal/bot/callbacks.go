package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"smm_boost/internal/model"
)

const (
	cmdAccount  = "account"
	cmdPause    = "pause"
	cmdResume   = "resume"
	cmdPoll     = "poll"
	cmdHistory  = "history"
	cmdRefresh  = "refresh"
	cmdFilters  = "filters"
	cmdRmFilter = "rmfilter"

	cbDeleteConfirm = "delete_confirm"
	cbDelete        = "delete"
)

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.Message == nil {
		return
	}
	data := cb.Data
	chatID := cb.Message.Chat.ID

	callback := tgbotapi.NewCallback(cb.ID, "")
	if _, err := b.api.Send(callback); err != nil {
		b.log.Error("send callback ack", "error", err)
	}

	action, idStr, ok := strings.Cut(data, ":")
	if !ok {
		return
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return
	}

	b.log.Info("callback",
		"action", action,
		"id", id,
		"chat_id", chatID,
		"user_id", cb.From.ID,
		"username", cb.From.UserName,
	)

	switch action {
	case cmdAccount:
		b.handleAccount(ctx, chatID, idStr)
	case cmdPause:
		b.handleSetEnabled(ctx, chatID, idStr, false)
	case cmdResume:
		b.handleSetEnabled(ctx, chatID, idStr, true)
	case cmdPoll:
		b.handlePoll(ctx, chatID)
	case cmdHistory:
		b.sendHistory(ctx, chatID, model.ExecutionFilter{AccountID: id, Limit: 10})
	case cmdRefresh:
		b.handleRefresh(ctx, chatID, idStr)
	case cmdFilters:
		b.handleFilters(ctx, chatID, idStr)
	case cbDeleteConfirm:
		d, err := b.deps.Accounts.Get(ctx, id)
		if err != nil {
			b.replyErr(chatID, fmt.Sprintf("Account #%d", id), err)
			return
		}
		b.replyWithKeyboard(chatID,
			fmt.Sprintf("Delete #%d @%s with its actions and feed? Execution history is kept.", id, d.Account.Username),
			tgbotapi.NewInlineKeyboardMarkup(
				tgbotapi.NewInlineKeyboardRow(
					tgbotapi.NewInlineKeyboardButtonData("Yes, delete", fmt.Sprintf("%s:%d", cbDelete, id)),
					tgbotapi.NewInlineKeyboardButtonData("Cancel", "noop:0"),
				),
			))
	case cbDelete:
		b.handleDeleteAccount(ctx, chatID, id)
	case cmdRmFilter:
		b.handleRmFilter(ctx, chatID, idStr)
	}
}
