package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"smm_boost/internal/accounts"
	"smm_boost/internal/config"
	"smm_boost/internal/history"
	"smm_boost/internal/model"
	"smm_boost/internal/poller"
	"smm_boost/internal/scheduler"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Accounts manages monitored accounts, their actions and filters.
type Accounts interface {
	List(ctx context.Context) ([]model.Account, error)
	Get(ctx context.Context, id int64) (*accounts.Detail, error)
	CreateAccount(ctx context.Context, platform, username, displayName string) (*model.Account, error)
	SetEnabled(ctx context.Context, id int64, enabled bool) error
	DeleteAccount(ctx context.Context, id int64) error
	AddAction(ctx context.Context, accountID int64, action *model.Action) (accounts.AddActionResult, error)
	RemoveAction(ctx context.Context, id int64) (bool, error)
	AddFilter(ctx context.Context, f *model.Filter) error
	ListFilters(ctx context.Context, actionID int64) ([]model.Filter, error)
	RemoveFilter(ctx context.Context, id int64) (*model.Filter, error)
}

// History reads and refreshes executions.
type History interface {
	List(ctx context.Context, f model.ExecutionFilter) ([]model.ExecutionRecord, error)
	Stats(ctx context.Context) (model.ExecutionStats, error)
	Refresh(ctx context.Context, id int64) (history.RefreshResult, error)
}

// Scheduler runs and reports poll cycles.
type Scheduler interface {
	TriggerOnce(ctx context.Context) (poller.PollSummary, error)
	Status() scheduler.Status
}

// Deps groups the services the bot operates on.
type Deps struct {
	Accounts  Accounts
	History   History
	Scheduler Scheduler
}

// Bot is the Telegram operator console. It also delivers poll summaries.
type Bot struct {
	api  telegramAPI
	deps Deps
	cfg  *config.Config
	log  *slog.Logger
}

// New creates a Bot with the given Telegram token. Deps are attached with
// Bind once the scheduler, which sends through the bot, exists.
func New(token string, cfg *config.Config, log *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	return &Bot{
		api: api,
		cfg: cfg,
		log: log,
	}, nil
}

// Bind attaches the services behind the commands. It must be called before Run.
func (b *Bot) Bind(deps Deps) {
	b.deps = deps
}

// Run starts the bot's long-polling loop, blocking until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update := <-updates:
			b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	if cb := update.CallbackQuery; cb != nil {
		if cb.From == nil || !b.cfg.IsUserAllowed(cb.From.ID) {
			return
		}
		b.handleCallback(ctx, cb)
		return
	}
	msg := update.Message
	if msg == nil || !msg.IsCommand() {
		return
	}
	if msg.From == nil || !b.cfg.IsUserAllowed(msg.From.ID) {
		b.reply(msg.Chat.ID, "Access denied.")
		return
	}
	b.handleCommand(ctx, msg)
}

// SendMessage sends a text message to the given chat.
func (b *Bot) SendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send message", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) reply(chatID int64, text string) {
	b.SendMessage(chatID, text)
}

func (b *Bot) replyWithKeyboard(chatID int64, text string, kb tgbotapi.InlineKeyboardMarkup) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	msg.ReplyMarkup = kb
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send message", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cmd := msg.Command()
	args := strings.TrimSpace(msg.CommandArguments())
	chatID := msg.Chat.ID

	b.log.Debug("command", "cmd", cmd, "args", args, "chat_id", chatID)

	switch cmd {
	case "start":
		b.handleStart(chatID)
	case "help":
		b.handleHelp(chatID)
	case "accounts":
		b.handleAccounts(ctx, chatID)
	case cmdAccount:
		b.handleAccount(ctx, chatID, args)
	case "addaccount":
		b.handleAddAccount(ctx, chatID, args)
	case "addaction":
		b.handleAddAction(ctx, chatID, args)
	case "rmaction":
		b.handleRmAction(ctx, chatID, args)
	case cmdPause:
		b.handleSetEnabled(ctx, chatID, args, false)
	case cmdResume:
		b.handleSetEnabled(ctx, chatID, args, true)
	case cmdPoll:
		b.handlePoll(ctx, chatID)
	case "status":
		b.handleStatus(ctx, chatID)
	case cmdHistory:
		b.handleHistory(ctx, chatID, args)
	case cmdRefresh:
		b.handleRefresh(ctx, chatID, args)
	case cmdFilters:
		b.handleFilters(ctx, chatID, args)
	case "include":
		b.handleAddFilter(ctx, chatID, args, model.FilterInclude)
	case "exclude":
		b.handleAddFilter(ctx, chatID, args, model.FilterExclude)
	case "include_re":
		b.handleAddFilter(ctx, chatID, args, model.FilterIncludeRe)
	case "exclude_re":
		b.handleAddFilter(ctx, chatID, args, model.FilterExcludeRe)
	case cmdRmFilter:
		b.handleRmFilter(ctx, chatID, args)
	default:
		b.reply(chatID, "Unknown command. Use /help for a list of commands.")
	}
}
