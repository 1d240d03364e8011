package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"creatorfeed/internal/config"
	"creatorfeed/internal/model"
	"creatorfeed/internal/session"
	"creatorfeed/internal/storage"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// ChannelDirectory finds channels on the upstream platform.
type ChannelDirectory interface {
	SearchChannels(ctx context.Context, query string) ([]model.Channel, error)
	LookupChannels(ctx context.Context, ids []string) ([]model.Channel, error)
}

// OEmbedLooker resolves Instagram oEmbed data.
type OEmbedLooker interface {
	Lookup(ctx context.Context, postURL string) (model.OEmbed, error)
}

// Services are the upstreams the bot talks to besides Telegram.
type Services struct {
	Runner session.Runner
	// Directory is nil when no YouTube API key is configured.
	Directory ChannelDirectory
	OEmbed    OEmbedLooker
}

// Bot is the Telegram front end: it keeps one feed session per chat.
type Bot struct {
	api   telegramAPI
	store storage.Storage
	cfg   *config.Config
	svc   Services
	log   *slog.Logger
	now   func() time.Time

	mu    sync.Mutex
	chats map[int64]*chat

	wg sync.WaitGroup
}

// New creates a Bot with the given Telegram token, storage, and config.
func New(token string, store storage.Storage, cfg *config.Config, svc Services, log *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	return newBot(api, store, cfg, svc, log), nil
}

func newBot(api telegramAPI, store storage.Storage, cfg *config.Config, svc Services, log *slog.Logger) *Bot {
	return &Bot{
		api:   api,
		store: store,
		cfg:   cfg,
		svc:   svc,
		log:   log,
		now:   time.Now,
		chats: make(map[int64]*chat),
	}
}

// Run starts the bot's long-polling loop, blocking until ctx is cancelled
// and every pending fetch has finished.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	defer b.wg.Wait()

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
		if cb.Message == nil {
			return
		}
		if !b.cfg.IsUserAllowed(cb.From.ID) {
			b.reply(cb.Message.Chat.ID, "Access denied.")
			return
		}
		b.handleCallback(ctx, cb)
		return
	}
	if update.Message == nil || !update.Message.IsCommand() {
		return
	}
	if !b.cfg.IsUserAllowed(update.Message.From.ID) {
		b.reply(update.Message.Chat.ID, "Access denied.")
		return
	}
	b.handleCommand(ctx, update.Message)
}

// SendMessage sends a text message to the given chat.
func (b *Bot) SendMessage(chatID int64, text string) {
	b.send(chatID, text, nil)
}

func (b *Bot) reply(chatID int64, text string) {
	b.SendMessage(chatID, text)
}

func (b *Bot) send(chatID int64, text string, markup *tgbotapi.InlineKeyboardMarkup) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if markup != nil {
		msg.ReplyMarkup = *markup
	}
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send message", "chat_id", chatID, "error", err)
	}
}

// async runs fn in the background; Run waits for it on shutdown.
func (b *Bot) async(fn func()) {
	b.wg.Go(fn)
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
	case "search":
		b.handleSearch(ctx, chatID, args)
	case "add":
		b.handleAdd(ctx, chatID, args)
	case "channels":
		b.handleChannels(ctx, chatID)
	case "remove":
		b.handleRemove(ctx, chatID, args)
	case cmdNiches:
		b.handleNiches(chatID)
	case "feed":
		b.handleFeed(ctx, chatID)
	case cmdMore:
		b.handleMore(ctx, chatID)
	case "refresh":
		b.handleRefresh(ctx, chatID)
	case "embed":
		b.handleEmbed(ctx, chatID, args)
	case "embeds":
		b.handleEmbeds(ctx, chatID)
	case cmdRmEmbed:
		b.handleRmEmbed(ctx, chatID, args)
	case "instagram":
		b.handleInstagram(ctx, chatID, args)
	default:
		b.reply(chatID, "Unknown command. Use /help for a list of commands.")
	}
}
