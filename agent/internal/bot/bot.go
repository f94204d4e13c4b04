package bot

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"mint-sentry/agent/internal/models"
	"mint-sentry/agent/internal/registry"
	"mint-sentry/agent/internal/services"
	"mint-sentry/shared/config"
	"mint-sentry/shared/logger"
	"mint-sentry/shared/notifications"
)

// MetadataProvider validates and decorates mint addresses for the track
// commands.
type MetadataProvider interface {
	ValidateMint(mint string) error
	VerifyMintOnChain(ctx context.Context, mint string) bool
	TokenMetadata(ctx context.Context, mint string) (models.TokenMetadata, error)
}

// StatsProvider serves live floor reads without touching the registry.
type StatsProvider interface {
	CollectionStats(ctx context.Context, symbol string) (services.CollectionStats, error)
}

// SaleNotifier runs a sale check on demand.
type SaleNotifier interface {
	Notify(ctx context.Context, symbol string, chatID int64, limit int) (int, error)
	Limit() int
	Window() time.Duration
}

// CollectionRefresher rebuilds and stores a collection snapshot on demand.
type CollectionRefresher interface {
	Refresh(ctx context.Context, symbol string) (models.CollectionActivity, error)
}

// QuoteProvider yields the current SOL/USD quote.
type QuoteProvider interface {
	SOLPriceUSD(ctx context.Context) (float64, error)
}

// Dependencies carries everything the command surface needs. The composition
// root builds one and hands it to InitializeBot.
type Dependencies struct {
	NFTs        *registry.NFTRegistry
	Collections *registry.CollectionRegistry
	Stats       StatsProvider
	Metadata    MetadataProvider
	Sales       SaleNotifier
	Refresher   CollectionRefresher
	Quotes      QuoteProvider
	Metrics     *services.Metrics
	Config      *config.Config
}

// Bot owns the Telegram command surface.
type Bot struct {
	api         *tgbotapi.BotAPI
	nfts        *registry.NFTRegistry
	collections *registry.CollectionRegistry
	stats       StatsProvider
	metadata    MetadataProvider
	sales       SaleNotifier
	refresher   CollectionRefresher
	quotes      QuoteProvider
	metrics     *services.Metrics
	cfg         *config.Config
	appLogger   *logger.Logger
	startedAt   time.Time
}

func InitializeBot(deps Dependencies, appLogger *logger.Logger) (*Bot, error) {
	if appLogger == nil {
		return nil, fmt.Errorf("logger instance provided to InitializeBot is nil")
	}

	api := notifications.GetBotInstance()
	if api == nil {
		appLogger.Error("Could not retrieve initialized Telegram bot instance from notifications package. Bot may not function.")
		return nil, fmt.Errorf("failed to get tgbotapi bot instance")
	}

	appLogger.Info("Telegram bot interaction services initialized using go-telegram-bot-api/v5.")
	return &Bot{
		api:         api,
		nfts:        deps.NFTs,
		collections: deps.Collections,
		stats:       deps.Stats,
		metadata:    deps.Metadata,
		sales:       deps.Sales,
		refresher:   deps.Refresher,
		quotes:      deps.Quotes,
		metrics:     deps.Metrics,
		cfg:         deps.Config,
		appLogger:   appLogger,
		startedAt:   time.Now(),
	}, nil
}

func (b *Bot) StartListening(ctx context.Context) {
	b.appLogger.Info("Starting bot message/command listener (go-telegram-bot-api/v5)...")

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)
	b.appLogger.Info("Listening for Telegram commands and messages...")

	for {
		select {
		case update, ok := <-updates:
			if !ok {
				b.appLogger.Warn("Telegram updates channel closed")
				return
			}
			go b.handleUpdate(ctx, update)

		case <-ctx.Done():
			b.appLogger.Info("Context cancelled. Stopping Telegram listener.")
			b.api.StopReceivingUpdates()
			return
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.appLogger.Error("Recovered from panic while handling update", "panic", r, "stack", string(debug.Stack()))
		}
	}()

	if update.CallbackQuery != nil {
		b.handleCallback(update.CallbackQuery)
		return
	}
	if update.Message == nil || !update.Message.IsCommand() {
		return
	}
	b.handleCommand(ctx, update.Message)
}

// handleCallback serves the alert buttons attached to /list replies. The
// callback data carries the mint as alert_<mint>.
func (b *Bot) handleCallback(query *tgbotapi.CallbackQuery) {
	if _, err := b.api.Request(tgbotapi.NewCallback(query.ID, "")); err != nil {
		b.appLogger.Warn("Failed to answer callback query", "error", err)
	}
	if query.Message == nil || !strings.HasPrefix(query.Data, "alert_") {
		return
	}

	mint := strings.TrimPrefix(query.Data, "alert_")
	b.SendReply(query.Message.Chat.ID, fmt.Sprintf(
		"To set an alert for `%s`, reply with:\n`/alert %s <price in SOL>`\n\nExample: `/alert %s 2.5`",
		mint, mint, mint,
	))
}

func (b *Bot) SendReply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown

	if _, err := b.api.Send(msg); err != nil {
		b.appLogger.Error("Failed to send reply message", "chatID", chatID, "error", err)
	}
}

func (b *Bot) sendReplyWithKeyboard(chatID int64, text string, keyboard tgbotapi.InlineKeyboardMarkup) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.ReplyMarkup = keyboard

	if _, err := b.api.Send(msg); err != nil {
		b.appLogger.Error("Failed to send reply message", "chatID", chatID, "error", err)
	}
}
