package services

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"mint-sentry/agent/internal/models"
	"mint-sentry/agent/internal/registry"
	"mint-sentry/shared/logger"
	"mint-sentry/shared/notifications"
	"mint-sentry/shared/types"
	"mint-sentry/shared/utils"
)

// PriceSource yields the lowest current listing price for a mint in
// lamports, 0 when unlisted.
type PriceSource interface {
	TokenPrice(ctx context.Context, mint string) (float64, error)
}

// AlertEvaluator walks every tracked NFT on a fixed interval, refreshes its
// last seen price and fires at most one notification per armed alert. A
// cycle still in flight when the next tick arrives wins; the new tick is
// dropped.
type AlertEvaluator struct {
	registry  *registry.NFTRegistry
	market    PriceSource
	sink      types.Sink
	metrics   *Metrics
	interval  time.Duration
	appLogger *logger.Logger
	running   atomic.Bool
}

func NewAlertEvaluator(reg *registry.NFTRegistry, market PriceSource, sink types.Sink, metrics *Metrics, interval time.Duration, appLogger *logger.Logger) *AlertEvaluator {
	return &AlertEvaluator{
		registry:  reg,
		market:    market,
		sink:      sink,
		metrics:   metrics,
		interval:  interval,
		appLogger: appLogger,
	}
}

func (ae *AlertEvaluator) Run(ctx context.Context) {
	ae.appLogger.Info("Price alert evaluator started", "interval", ae.interval)

	ticker := time.NewTicker(ae.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			ae.appLogger.Info("Price alert evaluator stopped")
			return
		case <-ticker.C:
			ae.runCycle(ctx)
		}
	}
}

func (ae *AlertEvaluator) runCycle(ctx context.Context) {
	if !ae.running.CompareAndSwap(false, true) {
		ae.appLogger.Warn("Alert cycle still in flight, skipping this tick")
		return
	}
	defer ae.running.Store(false)

	entries := ae.registry.Entries()
	if len(entries) == 0 {
		return
	}

	triggered := 0
	failed := 0
	for _, entry := range entries {
		fired, err := ae.evaluateEntry(ctx, entry)
		if err != nil {
			failed++
			ae.appLogger.Warn("Alert evaluation failed for entry", "mint", entry.MintAddress, "chatID", entry.ChatID, "error", err)
			continue
		}
		if fired {
			triggered++
		}
	}

	ae.metrics.AlertCyclesTotal.Inc()
	ae.appLogger.Debug("Alert cycle complete", "entries", len(entries), "triggered", triggered, "failed", failed)
}

// evaluateEntry refreshes the entry's last price and fires its alert when
// armed and the listing price sits at or under the target. Unlisted tokens
// (price 0) record the price but never fire. The alert disarms only after a
// successful delivery so a failed send retries next cycle.
func (ae *AlertEvaluator) evaluateEntry(ctx context.Context, entry models.TrackedNFT) (bool, error) {
	price, err := ae.market.TokenPrice(ctx, entry.MintAddress)
	if err != nil {
		ae.metrics.FetchFailures.WithLabelValues("token_price").Inc()
		return false, err
	}

	ae.registry.UpdatePrice(entry.MintAddress, entry.ChatID, price)

	if !entry.AlertSet || price <= 0 || price > utils.SOLToLamports(entry.AlertPrice) {
		return false, nil
	}

	n := types.Notification{
		ChatID:   entry.ChatID,
		Text:     alertMessage(entry, price),
		Markdown: true,
	}
	if err := ae.sink.Deliver(ctx, n); err != nil {
		return false, fmt.Errorf("deliver price alert: %w", err)
	}

	ae.registry.ClearAlert(entry.MintAddress, entry.ChatID)
	ae.metrics.AlertsTriggered.Inc()
	ae.appLogger.Info("Price alert fired", "mint", entry.MintAddress, "chatID", entry.ChatID, "priceSOL", utils.LamportsToSOL(price), "targetSOL", entry.AlertPrice)
	return true, nil
}

func alertMessage(entry models.TrackedNFT, priceLamports float64) string {
	name := entry.Name
	if name == "" {
		name = utils.TruncateAddress(entry.MintAddress)
	}
	return fmt.Sprintf(
		"🔔 *Price Alert*\n\n*%s* is listed at `%s SOL`, at or under your target of `%s SOL`\\.\n\nMint: `%s`\n[View on Magic Eden](%s)",
		notifications.EscapeMarkdownV2(name),
		utils.FormatSOL(utils.LamportsToSOL(priceLamports)),
		utils.FormatSOL(entry.AlertPrice),
		entry.MintAddress,
		utils.MagicEdenItemURL(entry.MintAddress),
	)
}
