package notifications

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"net/url"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"mint-sentry/shared/env"
	"mint-sentry/shared/timeout"
	"mint-sentry/shared/types"
)

// This package logs through the stdlib logger on purpose: shared/logger
// mirrors warnings into Telegram, and delivery failures must not feed the
// channel that is failing.

var bot *tgbotapi.BotAPI
var isInitialized bool
var telegramLimiter *rate.Limiter

const (
	sendMaxRetries  = 3
	deliveryTimeout = 15 * time.Second
)

// InitTelegramBot creates the shared Bot API client and verifies the token
// with a GetMe round trip. Safe to call twice; the second call is a no-op.
func InitTelegramBot() error {
	if isInitialized && bot != nil {
		log.Println("INFO: Telegram bot already initialized.")
		return nil
	}

	isInitialized = false
	bot = nil
	telegramLimiter = nil

	botToken := env.TelegramBotToken
	if botToken == "" {
		return fmt.Errorf("critical error: TELEGRAM_BOT_TOKEN missing from env configuration")
	}

	log.Println("Initializing Telegram bot API...")
	var err error
	bot, err = tgbotapi.NewBotAPI(botToken)
	if err != nil {
		bot = nil
		return fmt.Errorf("failed to initialize Telegram bot API: %w", err)
	}

	log.Println("Verifying bot token with Telegram API (GetMe)...")
	userInfo, err := bot.GetMe()
	if err != nil {
		bot = nil
		return fmt.Errorf("failed to verify bot token with GetMe API call: %w", err)
	}

	isInitialized = true
	telegramLimiter = rate.NewLimiter(rate.Limit(0.5), 2)
	log.Printf("Telegram bot initialized successfully for @%s", userInfo.UserName)

	if env.TelegramGroupID != 0 {
		startupMsg := fmt.Sprintf("Bot connected successfully \\(@%s\\)\\. Ready\\.", EscapeMarkdownV2(userInfo.UserName))
		if err := sendTextWithRetry(context.Background(), env.TelegramGroupID, startupMsg, true, true); err != nil {
			log.Printf("WARN: startup message to ops group failed: %v", err)
		}
	}
	return nil
}

// GetBotInstance exposes the shared client to the command listener so the
// process holds exactly one Bot API session.
func GetBotInstance() *tgbotapi.BotAPI {
	if !isInitialized || bot == nil {
		log.Println("WARN: GetBotInstance called but bot is not initialized or initialization failed.")
	}
	return bot
}

// NewSink returns the production types.Sink. Delivery preference for photo
// notifications: image-with-caption, then the caption as a message with its
// link preview, then the caption as plain text. The first stage that
// succeeds wins; every stage runs under a delivery timeout whose expiry
// counts as failure of that stage only.
func NewSink() types.Sink {
	return types.SinkFunc(deliver)
}

func deliver(ctx context.Context, n types.Notification) error {
	if bot == nil {
		return fmt.Errorf("telegram bot is not initialized")
	}
	if n.ChatID == 0 {
		return fmt.Errorf("notification has no target chat")
	}

	if n.PhotoURL != "" {
		if _, err := url.ParseRequestURI(n.PhotoURL); err != nil {
			log.Printf("ERROR: Invalid photo URL %q: %v. Falling back to text delivery.", n.PhotoURL, err)
		} else {
			err := timeout.Guard(deliveryTimeout, "photo delivery", func() error {
				return sendPhotoWithRetry(ctx, n.ChatID, n.PhotoURL, n.Text, n.Markdown)
			})
			if err == nil {
				return nil
			}
			log.Printf("INFO: photo delivery failed (%v), falling back to text with preview.", err)
		}

		err := timeout.Guard(deliveryTimeout, "preview delivery", func() error {
			return sendTextWithRetry(ctx, n.ChatID, n.Text, n.Markdown, false)
		})
		if err == nil {
			return nil
		}
		log.Printf("INFO: preview delivery failed (%v), falling back to plain text.", err)

		return timeout.Guard(deliveryTimeout, "plain delivery", func() error {
			return sendTextWithRetry(ctx, n.ChatID, n.Text, false, true)
		})
	}

	return timeout.Guard(deliveryTimeout, "text delivery", func() error {
		return sendTextWithRetry(ctx, n.ChatID, n.Text, n.Markdown, n.DisableWebPagePreview)
	})
}

func sendTextWithRetry(ctx context.Context, chatID int64, text string, markdown, disablePreview bool) error {
	if err := waitLimiter(ctx, chatID, "text"); err != nil {
		return err
	}
	if bot == nil {
		return fmt.Errorf("telegram bot is not initialized")
	}

	msg := tgbotapi.NewMessage(chatID, text)
	if markdown {
		msg.ParseMode = tgbotapi.ModeMarkdownV2
	}
	msg.DisableWebPagePreview = disablePreview

	return sendWithRetry(chatID, "text", func() error {
		_, err := bot.Send(msg)
		return err
	})
}

func sendPhotoWithRetry(ctx context.Context, chatID int64, photoURL, caption string, markdown bool) error {
	if err := waitLimiter(ctx, chatID, "photo"); err != nil {
		return err
	}
	if bot == nil {
		return fmt.Errorf("telegram bot is not initialized")
	}

	photoMsg := tgbotapi.NewPhoto(chatID, tgbotapi.FileURL(photoURL))
	photoMsg.Caption = caption
	if markdown {
		photoMsg.ParseMode = tgbotapi.ModeMarkdownV2
	}

	return sendWithRetry(chatID, "photo", func() error {
		_, err := bot.Send(photoMsg)
		if err != nil {
			if tgErr, ok := err.(*tgbotapi.Error); ok {
				// Telegram could not fetch the image; retrying the same URL
				// will not help, let the caller fall back.
				if strings.Contains(tgErr.Message, "failed to get HTTP URL content") ||
					strings.Contains(tgErr.Message, "wrong file identifier/HTTP URL specified") {
					return &unrecoverableError{err}
				}
			}
		}
		return err
	})
}

type unrecoverableError struct{ err error }

func (e *unrecoverableError) Error() string { return e.err.Error() }
func (e *unrecoverableError) Unwrap() error { return e.err }

func waitLimiter(ctx context.Context, chatID int64, kind string) error {
	if telegramLimiter == nil {
		log.Printf("WARN: Telegram rate limiter not initialized! Sending %s without global limit check.", kind)
		return nil
	}
	if err := telegramLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("telegram rate limiter wait (%s, chat %d): %w", kind, chatID, err)
	}
	return nil
}

func sendWithRetry(chatID int64, kind string, send func() error) error {
	logCtx := fmt.Sprintf("[%s - ChatID: %d]", kind, chatID)

	var lastErr error
	for i := 0; i < sendMaxRetries; i++ {
		err := send()
		if err == nil {
			log.Printf("INFO: %s message sent successfully %s", kind, logCtx)
			return nil
		}
		lastErr = err

		var unrec *unrecoverableError
		if errors.As(err, &unrec) {
			log.Printf("ERROR: unrecoverable %s send error %s: %v", kind, logCtx, unrec.err)
			return unrec.err
		}

		if tgErr, ok := err.(*tgbotapi.Error); ok {
			log.Printf("ERROR: Failed Telegram %s send (Attempt %d/%d): API Err %d - %s %s",
				kind, i+1, sendMaxRetries, tgErr.Code, tgErr.Message, logCtx)
			if tgErr.Code == 429 {
				retryAfter := tgErr.RetryAfter
				if retryAfter <= 0 {
					retryAfter = 1
				}
				log.Printf("INFO: Telegram API rate limit hit (429). Retrying after %d seconds... %s", retryAfter, logCtx)
				time.Sleep(time.Duration(retryAfter) * time.Second)
				continue
			}
		} else {
			log.Printf("ERROR: Failed Telegram %s send (Attempt %d/%d): %v %s",
				kind, i+1, sendMaxRetries, err, logCtx)
		}

		if i < sendMaxRetries-1 {
			waitDuration := time.Duration(math.Pow(2, float64(i))) * time.Second
			log.Printf("INFO: Retrying failed %s send in %v... %s", kind, waitDuration, logCtx)
			time.Sleep(waitDuration)
		}
	}
	return fmt.Errorf("telegram %s send failed after %d attempts: %w", kind, sendMaxRetries, lastErr)
}

// EscapeMarkdownV2 escapes everything Telegram's MarkdownV2 parser treats as
// syntax. Apply to dynamic values only, never to the formatting itself.
func EscapeMarkdownV2(s string) string {
	charsToEscape := []string{"\\", "_", "*", "[", "]", "(", ")", "~", "`", ">", "#", "+", "-", "=", "|", "{", "}", ".", "!"}
	temp := s
	for _, char := range charsToEscape {
		temp = strings.ReplaceAll(temp, char, "\\"+char)
	}
	return temp
}
