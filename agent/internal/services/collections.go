package services

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"mint-sentry/agent/internal/events"
	"mint-sentry/agent/internal/models"
	"mint-sentry/agent/internal/registry"
	"mint-sentry/shared/logger"
	"mint-sentry/shared/notifications"
	"mint-sentry/shared/types"
	"mint-sentry/shared/utils"
)

// recentActivityLimit bounds the activity page scanned for the snapshot's
// last sale. Listings and delistings share the feed with buys, so one entry
// is not enough.
const recentActivityLimit = 10

// CollectionSource groups the marketplace calls the poller needs per
// collection refresh.
type CollectionSource interface {
	CollectionStats(ctx context.Context, symbol string) (CollectionStats, error)
	CollectionActivities(ctx context.Context, symbol string, limit int) ([]map[string]interface{}, error)
	CollectionInfo(ctx context.Context, symbol string) (CollectionInfo, error)
}

// CollectionPoller refreshes every tracked collection's snapshot on a fixed
// interval and pushes a summary to subscribed chats when the floor or the
// listing count moved. Snapshots are replaced wholesale; a failed refresh
// leaves the previous snapshot untouched.
type CollectionPoller struct {
	collections *registry.CollectionRegistry
	nfts        *registry.NFTRegistry
	market      CollectionSource
	sink        types.Sink
	metrics     *Metrics
	interval    time.Duration
	appLogger   *logger.Logger
	running     atomic.Bool
}

func NewCollectionPoller(collections *registry.CollectionRegistry, nfts *registry.NFTRegistry, market CollectionSource, sink types.Sink, metrics *Metrics, interval time.Duration, appLogger *logger.Logger) *CollectionPoller {
	return &CollectionPoller{
		collections: collections,
		nfts:        nfts,
		market:      market,
		sink:        sink,
		metrics:     metrics,
		interval:    interval,
		appLogger:   appLogger,
	}
}

func (cp *CollectionPoller) Run(ctx context.Context) {
	cp.appLogger.Info("Collection poller started", "interval", cp.interval)

	ticker := time.NewTicker(cp.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			cp.appLogger.Info("Collection poller stopped")
			return
		case <-ticker.C:
			cp.runCycle(ctx)
		}
	}
}

// Refresh rebuilds one collection's snapshot on demand and stores it. Used
// by the collection-track command; the poller picks the symbol up on its
// next cycle.
func (cp *CollectionPoller) Refresh(ctx context.Context, symbol string) (models.CollectionActivity, error) {
	next, err := cp.buildSnapshot(ctx, symbol)
	if err != nil {
		return models.CollectionActivity{}, err
	}
	cp.collections.Replace(symbol, next)
	cp.metrics.TrackedCollections.Set(float64(cp.collections.Len()))
	return next, nil
}

func (cp *CollectionPoller) runCycle(ctx context.Context) {
	if !cp.running.CompareAndSwap(false, true) {
		cp.appLogger.Warn("Collection poll cycle still in flight, skipping this tick")
		return
	}
	defer cp.running.Store(false)

	symbols := cp.collections.Symbols()
	if len(symbols) == 0 {
		return
	}

	updated := 0
	notified := 0
	failed := 0
	for _, symbol := range symbols {
		next, err := cp.buildSnapshot(ctx, symbol)
		if err != nil {
			failed++
			cp.metrics.FetchFailures.WithLabelValues("collection_poll").Inc()
			cp.appLogger.Warn("Collection refresh failed, keeping previous snapshot", "collection", symbol, "error", err)
			continue
		}

		prev := cp.collections.Replace(symbol, next)
		updated++
		if prev == nil || !snapshotChanged(*prev, next) {
			continue
		}

		text := collectionUpdateMessage(*prev, next)
		for _, chatID := range cp.nfts.SubscribersOf(symbol) {
			n := types.Notification{ChatID: chatID, Text: text, Markdown: true}
			if err := cp.sink.Deliver(ctx, n); err != nil {
				cp.appLogger.Warn("Collection update delivery failed", "collection", symbol, "chatID", chatID, "error", err)
				continue
			}
			notified++
		}
	}

	cp.metrics.CollectionPollsTotal.Inc()
	cp.appLogger.Debug("Collection poll cycle complete", "collections", len(symbols), "updated", updated, "notified", notified, "failed", failed)
}

func (cp *CollectionPoller) buildSnapshot(ctx context.Context, symbol string) (models.CollectionActivity, error) {
	stats, err := cp.market.CollectionStats(ctx, symbol)
	if err != nil {
		return models.CollectionActivity{}, err
	}

	raw, err := cp.market.CollectionActivities(ctx, symbol, recentActivityLimit)
	if err != nil {
		return models.CollectionActivity{}, err
	}

	name := symbol
	if info, infoErr := cp.market.CollectionInfo(ctx, symbol); infoErr == nil && info.Name != "" {
		name = info.Name
	} else if infoErr != nil {
		cp.appLogger.Debug("Collection info lookup failed, using symbol as name", "collection", symbol, "error", infoErr)
	}

	next := models.CollectionActivity{
		Symbol:         symbol,
		Name:           name,
		MarketplaceURL: utils.MagicEdenCollectionURL(symbol),
		FloorPrice:     stats.FloorPrice,
		HasFloor:       stats.FloorPrice > 0,
		Volume24h:      stats.Volume24h,
		ListedCount:    stats.ListedCount,
	}
	for _, entry := range raw {
		sale, ok := events.ParseBuyActivity(entry)
		if !ok {
			continue
		}
		next.LastSale = &models.LastSale{
			PriceSOL:  sale.PriceSOL,
			BlockTime: sale.BlockTime,
			TokenMint: sale.TokenMint,
		}
		break
	}
	return next, nil
}

// snapshotChanged gates subscriber notification. Volume drifts every cycle
// as old sales age out of the 24h window, so it does not count as a change.
func snapshotChanged(prev, next models.CollectionActivity) bool {
	return prev.HasFloor != next.HasFloor ||
		prev.FloorPrice != next.FloorPrice ||
		prev.ListedCount != next.ListedCount
}

func collectionUpdateMessage(prev, next models.CollectionActivity) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 *Collection Update: %s*\n\n", notifications.EscapeMarkdownV2(next.Name))
	fmt.Fprintf(&b, "Floor: `%s`", floorLabel(next))
	if prev.HasFloor != next.HasFloor || prev.FloorPrice != next.FloorPrice {
		fmt.Fprintf(&b, " \\(was `%s`\\)", floorLabel(prev))
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "Listed: `%s`\n", utils.FormatCount(next.ListedCount))
	fmt.Fprintf(&b, "24h Volume: `%s SOL`\n\n", utils.FormatVolumeSOL(next.Volume24h))
	fmt.Fprintf(&b, "[Magic Eden](%s)", next.MarketplaceURL)
	return b.String()
}

func floorLabel(c models.CollectionActivity) string {
	if !c.HasFloor {
		return "none"
	}
	return utils.FormatSOL(utils.LamportsToSOL(c.FloorPrice)) + " SOL"
}
