package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"mint-sentry/agent/internal/events"
	"mint-sentry/agent/internal/models"
	"mint-sentry/shared/config"
	"mint-sentry/shared/logger"
	"mint-sentry/shared/notifications"
	"mint-sentry/shared/types"
	"mint-sentry/shared/utils"
)

const (
	// saleFetchLimit bounds the activity page fetched per check. Buys share
	// the feed with listings and delistings, so the page must be larger
	// than the notification cap.
	saleFetchLimit = 50

	seenRetention = 10 * time.Minute
)

// ActivitySource yields a collection's newest marketplace activity entries.
type ActivitySource interface {
	CollectionActivities(ctx context.Context, symbol string, limit int) ([]map[string]interface{}, error)
}

// MetadataSource resolves display metadata for a mint.
type MetadataSource interface {
	TokenMetadata(ctx context.Context, mint string) (models.TokenMetadata, error)
}

// SaleWatcher turns recent buy activity into per-sale chat notifications.
// The same routine serves the interactive lastbuy command and the standing
// scheduled watch; a seen cache keyed by chat and signature keeps
// overlapping checks from reporting the same sale twice to one chat.
type SaleWatcher struct {
	market      ActivitySource
	metadata    MetadataSource
	sink        types.Sink
	metrics     *Metrics
	window      time.Duration
	limit       int
	delay       time.Duration
	cronEvery   time.Duration
	watchSymbol string
	watchChatID int64
	appLogger   *logger.Logger

	mu   sync.Mutex
	seen map[string]time.Time
}

func NewSaleWatcher(market ActivitySource, metadata MetadataSource, sink types.Sink, metrics *Metrics, cfg *config.Config, appLogger *logger.Logger) *SaleWatcher {
	return &SaleWatcher{
		market:      market,
		metadata:    metadata,
		sink:        sink,
		metrics:     metrics,
		window:      time.Duration(cfg.Sales.WindowSeconds) * time.Second,
		limit:       cfg.Sales.Limit,
		delay:       time.Duration(cfg.Sales.MessageDelayMS) * time.Millisecond,
		cronEvery:   time.Duration(cfg.Sales.CronIntervalSeconds) * time.Second,
		watchSymbol: cfg.Watch.CollectionSymbol,
		watchChatID: cfg.Watch.ChatID,
		seen:        make(map[string]time.Time),
		appLogger:   appLogger,
	}
}

// Limit is the configured per-check notification cap.
func (sw *SaleWatcher) Limit() int {
	return sw.limit
}

// Window is the configured sale recency window.
func (sw *SaleWatcher) Window() time.Duration {
	return sw.window
}

// Notify fetches recent buys for symbol and pushes one notification per
// qualifying sale to chatID, newest-API-order first, capped at limit. Sales
// older than the recency window or already reported to this chat are
// dropped silently. It returns the number of sales actually notified; a
// failure on one sale is logged and does not abort the rest.
func (sw *SaleWatcher) Notify(ctx context.Context, symbol string, chatID int64, limit int) (int, error) {
	raw, err := sw.market.CollectionActivities(ctx, symbol, saleFetchLimit)
	if err != nil {
		sw.metrics.FetchFailures.WithLabelValues("sale_activities").Inc()
		return 0, err
	}

	cutoff := time.Now().Add(-sw.window).Unix()
	var fresh []models.SaleActivity
	for _, entry := range raw {
		sale, ok := events.ParseBuyActivity(entry)
		if !ok {
			continue
		}
		if sale.BlockTime < cutoff {
			continue
		}
		if sw.alreadySeen(chatID, sale.Signature) {
			continue
		}
		fresh = append(fresh, sale)
		if len(fresh) == limit {
			break
		}
	}

	notified := 0
	for i, sale := range fresh {
		if i > 0 {
			select {
			case <-ctx.Done():
				return notified, ctx.Err()
			case <-time.After(sw.delay):
			}
		}
		if err := sw.notifySale(ctx, symbol, chatID, sale); err != nil {
			sw.appLogger.Warn("Sale notification failed", "collection", symbol, "signature", sale.Signature, "error", err)
			continue
		}
		sw.markSeen(chatID, sale.Signature)
		sw.metrics.SalesNotified.Inc()
		notified++
	}
	return notified, nil
}

// RunScheduled drives the standing sale watch against the configured
// collection and chat. Without both settings the job stays off.
func (sw *SaleWatcher) RunScheduled(ctx context.Context) {
	if sw.watchSymbol == "" || sw.watchChatID == 0 {
		sw.appLogger.Info("Standing sale watch disabled, set WATCH_COLLECTION_SYMBOL and WATCH_CHAT_ID to enable")
		return
	}

	sw.appLogger.Info("Standing sale watch started", "collection", sw.watchSymbol, "chatID", sw.watchChatID, "interval", sw.cronEvery)

	ticker := time.NewTicker(sw.cronEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			sw.appLogger.Info("Standing sale watch stopped")
			return
		case <-ticker.C:
			if _, err := sw.Notify(ctx, sw.watchSymbol, sw.watchChatID, sw.limit); err != nil {
				sw.appLogger.Warn("Scheduled sale watch cycle failed", "collection", sw.watchSymbol, "error", err)
			}
		}
	}
}

func (sw *SaleWatcher) notifySale(ctx context.Context, symbol string, chatID int64, sale models.SaleActivity) error {
	name := ""
	image := sale.Image

	meta, err := sw.metadata.TokenMetadata(ctx, sale.TokenMint)
	if err != nil {
		sw.appLogger.Debug("Sale metadata lookup failed, synthesizing name", "mint", sale.TokenMint, "error", err)
	} else {
		name = meta.Name
		if image == "" {
			image = meta.Image
		}
	}
	if name == "" {
		name = synthesizedName(symbol, sale.TokenMint)
	}

	n := types.Notification{
		ChatID:   chatID,
		Text:     saleCaption(name, symbol, sale),
		PhotoURL: image,
		Markdown: true,
	}
	return sw.sink.Deliver(ctx, n)
}

func (sw *SaleWatcher) alreadySeen(chatID int64, signature string) bool {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	_, ok := sw.seen[seenKey(chatID, signature)]
	return ok
}

func (sw *SaleWatcher) markSeen(chatID int64, signature string) {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	now := time.Now()
	for key, at := range sw.seen {
		if now.Sub(at) > seenRetention {
			delete(sw.seen, key)
		}
	}
	sw.seen[seenKey(chatID, signature)] = now
}

func seenKey(chatID int64, signature string) string {
	return fmt.Sprintf("%d:%s", chatID, signature)
}

func synthesizedName(symbol, mint string) string {
	prefix := mint
	if len(prefix) > 4 {
		prefix = prefix[:4]
	}
	return fmt.Sprintf("%s #%s", strings.ToUpper(symbol), prefix)
}

func saleCaption(name, symbol string, sale models.SaleActivity) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🛒 *Sold: %s*\n\n", notifications.EscapeMarkdownV2(name))
	fmt.Fprintf(&b, "💰 `%s SOL`\n", utils.FormatSOL(sale.PriceSOL))
	if sale.Buyer != "" {
		fmt.Fprintf(&b, "👤 Buyer: [%s](%s)\n", notifications.EscapeMarkdownV2(utils.TruncateAddress(sale.Buyer)), utils.SolscanAccountURL(sale.Buyer))
	}
	fmt.Fprintf(&b, "\n[Item](%s) \\| [Collection](%s)", utils.MagicEdenItemURL(sale.TokenMint), utils.MagicEdenCollectionURL(symbol))
	return b.String()
}
