package bot

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"mint-sentry/agent/internal/models"
	"mint-sentry/agent/internal/registry"
	"mint-sentry/shared/utils"
)

const helpText = `Available commands:
/track <mint> - Track an NFT by mint address.
/untrack <mint> - Stop tracking an NFT.
/list - Show your tracked NFTs.
/alert <mint> <price> - Ping when the listing price drops to the target (SOL).
/collection <symbol> - Track a collection and cache its stats.
/floor [symbol] - Show floor prices (live when a symbol is given).
/lastbuy [symbol] - Report fresh sales for a collection.
/trench - Show the watcher dashboard.
/help - Show this help message.`

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	command := msg.Command()
	args := msg.CommandArguments()
	chatID := msg.Chat.ID

	b.metrics.CommandsProcessed.WithLabelValues(command).Inc()
	b.appLogger.Info("Processing command", "command", command, "args", args, "chatID", chatID, "user", senderName(msg))

	switch command {
	case "start", "help":
		b.SendReply(chatID, helpText)
	case "track":
		b.SendReply(chatID, b.handleTrack(ctx, chatID, args))
	case "untrack":
		b.SendReply(chatID, b.handleUntrack(chatID, args))
	case "list":
		text, keyboard := b.handleList(chatID)
		if keyboard == nil {
			b.SendReply(chatID, text)
		} else {
			b.sendReplyWithKeyboard(chatID, text, *keyboard)
		}
	case "alert":
		b.SendReply(chatID, b.handleAlert(chatID, args))
	case "trench":
		b.SendReply(chatID, b.handleTrench(ctx, chatID))
	case "collection":
		b.SendReply(chatID, b.handleCollection(ctx, args))
	case "floor":
		b.SendReply(chatID, b.handleFloor(ctx, args))
	case "lastbuy":
		if reply := b.handleLastBuy(ctx, chatID, args); reply != "" {
			b.SendReply(chatID, reply)
		}
	default:
		b.appLogger.Warn("Unknown command received", "command", command)
		b.SendReply(chatID, fmt.Sprintf("Unknown command: /%s. Try /help.", command))
	}
}

func (b *Bot) handleTrack(ctx context.Context, chatID int64, args string) string {
	mint := strings.TrimSpace(args)
	if mint == "" {
		return "Usage: /track <mint-address>"
	}
	if err := b.metadata.ValidateMint(mint); err != nil {
		b.appLogger.Warn("Track command rejected invalid mint", "mint", mint, "error", err)
		return fmt.Sprintf("`%s` is not a valid Solana mint address.", mint)
	}
	if !b.metadata.VerifyMintOnChain(ctx, mint) {
		return fmt.Sprintf("No on-chain account found for `%s`.", mint)
	}

	name, collection := "", ""
	if meta, err := b.metadata.TokenMetadata(ctx, mint); err != nil {
		b.appLogger.Debug("Track metadata lookup failed", "mint", mint, "error", err)
	} else {
		name = meta.Name
		collection = meta.Collection
	}

	entry, err := b.nfts.Track(mint, chatID, name, collection)
	if errors.Is(err, registry.ErrDuplicateTracking) {
		return fmt.Sprintf("You are already tracking `%s` in this chat.", mint)
	}
	if err != nil {
		b.appLogger.Error("Track command failed", "mint", mint, "chatID", chatID, "error", err)
		return "Something went wrong while tracking. Please try again."
	}
	b.metrics.TrackedNFTs.Set(float64(b.nfts.Len()))

	display := entry.Name
	if display == "" {
		display = utils.TruncateAddress(mint)
	}
	return fmt.Sprintf("Now tracking *%s* (`%s`).\nSet a price alert with /alert %s <price>.", display, mint, mint)
}

func (b *Bot) handleUntrack(chatID int64, args string) string {
	mint := strings.TrimSpace(args)
	if mint == "" {
		return "Usage: /untrack <mint-address>"
	}

	err := b.nfts.Untrack(mint, chatID)
	if errors.Is(err, registry.ErrNotTracked) {
		return fmt.Sprintf("`%s` is not tracked in this chat.", mint)
	}
	if err != nil {
		b.appLogger.Error("Untrack command failed", "mint", mint, "chatID", chatID, "error", err)
		return "Something went wrong while untracking. Please try again."
	}
	b.metrics.TrackedNFTs.Set(float64(b.nfts.Len()))
	return fmt.Sprintf("Stopped tracking `%s`.", mint)
}

func (b *Bot) handleList(chatID int64) (string, *tgbotapi.InlineKeyboardMarkup) {
	entries := b.nfts.ListFor(chatID)
	if len(entries) == 0 {
		return "No tracked NFTs in this chat. Add one with /track <mint>.", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "*Tracked NFTs* (%d):\n\n", len(entries))
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(entries))
	for i, e := range entries {
		display := e.Name
		if display == "" {
			display = utils.TruncateAddress(e.MintAddress)
		}
		fmt.Fprintf(&sb, "%d. *%s*\n   `%s`\n", i+1, display, e.MintAddress)
		if e.HasPrice {
			fmt.Fprintf(&sb, "   Last price: %s SOL\n", utils.FormatSOL(utils.LamportsToSOL(e.LastPrice)))
		}
		if e.AlertSet {
			fmt.Fprintf(&sb, "   Alert at: %s SOL\n", utils.FormatSOL(e.AlertPrice))
		}
		sb.WriteString("\n")

		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("🔔 %s", display), "alert_"+e.MintAddress),
		))
	}

	keyboard := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return sb.String(), &keyboard
}

func (b *Bot) handleAlert(chatID int64, args string) string {
	parts := strings.Fields(args)
	if len(parts) != 2 {
		return "Usage: /alert <mint-address> <price-in-SOL>"
	}

	mint := parts[0]
	price, err := strconv.ParseFloat(parts[1], 64)
	if err != nil || math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 {
		return fmt.Sprintf("`%s` is not a usable price. Give a positive number of SOL, like 2.5.", parts[1])
	}

	err = b.nfts.SetAlert(mint, chatID, price)
	if errors.Is(err, registry.ErrNotTracked) {
		return fmt.Sprintf("`%s` is not tracked in this chat. Track it first with /track %s.", mint, mint)
	}
	if err != nil {
		b.appLogger.Error("Alert command failed", "mint", mint, "chatID", chatID, "error", err)
		return "Something went wrong while setting the alert. Please try again."
	}
	return fmt.Sprintf("Alert armed: you'll get a ping when `%s` lists at or under %s SOL.", mint, utils.FormatSOL(price))
}

func (b *Bot) handleTrench(ctx context.Context, chatID int64) string {
	var sb strings.Builder
	sb.WriteString("*Mint Sentry Dashboard*\n\n")
	fmt.Fprintf(&sb, "Tracked NFTs (this chat): %d\n", len(b.nfts.ListFor(chatID)))
	fmt.Fprintf(&sb, "Tracked NFTs (all chats): %d\n", b.nfts.Len())
	fmt.Fprintf(&sb, "Tracked collections: %d\n", b.collections.Len())
	fmt.Fprintf(&sb, "Uptime: %s\n", time.Since(b.startedAt).Round(time.Second))

	if usd, err := b.quotes.SOLPriceUSD(ctx); err != nil {
		b.appLogger.Warn("SOL price lookup failed for dashboard", "error", err)
	} else {
		fmt.Fprintf(&sb, "SOL price: %s\n", utils.FormatUSD(usd))
	}
	return sb.String()
}

func (b *Bot) handleCollection(ctx context.Context, args string) string {
	arg := strings.TrimSpace(args)
	if arg == "" {
		return "Usage: /collection <symbol-or-mint>"
	}

	symbol, err := b.resolveSymbol(ctx, arg)
	if err != nil {
		b.appLogger.Warn("Collection symbol resolution failed", "arg", arg, "error", err)
		return fmt.Sprintf("Couldn't resolve a collection from `%s`.", arg)
	}

	snapshot, err := b.refresher.Refresh(ctx, symbol)
	if err != nil {
		b.appLogger.Warn("Collection refresh failed", "collection", symbol, "error", err)
		return fmt.Sprintf("Couldn't fetch collection `%s`. Check the symbol and try again.", symbol)
	}
	return collectionSummary(snapshot)
}

func (b *Bot) handleFloor(ctx context.Context, args string) string {
	arg := strings.TrimSpace(args)
	if arg == "" {
		all := b.collections.All()
		if len(all) == 0 {
			return "No tracked collections. Add one with /collection <symbol>."
		}
		var sb strings.Builder
		sb.WriteString("*Cached floors:*\n")
		for _, c := range all {
			fmt.Fprintf(&sb, "%s: %s\n", c.Symbol, floorText(c))
		}
		return sb.String()
	}

	symbol, err := b.resolveSymbol(ctx, arg)
	if err != nil {
		b.appLogger.Warn("Floor symbol resolution failed", "arg", arg, "error", err)
		return fmt.Sprintf("Couldn't resolve a collection from `%s`.", arg)
	}

	stats, err := b.stats.CollectionStats(ctx, symbol)
	if err != nil {
		b.appLogger.Warn("Floor lookup failed", "collection", symbol, "error", err)
		return fmt.Sprintf("Couldn't fetch the floor for `%s` right now.", symbol)
	}
	if stats.FloorPrice <= 0 {
		return fmt.Sprintf("`%s` has no listed floor right now.", symbol)
	}
	return fmt.Sprintf("Floor for `%s`: *%s SOL*", symbol, utils.FormatSOL(utils.LamportsToSOL(stats.FloorPrice)))
}

func (b *Bot) handleLastBuy(ctx context.Context, chatID int64, args string) string {
	symbol := strings.TrimSpace(args)
	if symbol == "" {
		symbol = b.cfg.Watch.CollectionSymbol
	}
	if symbol == "" {
		return "Usage: /lastbuy <collection-symbol>"
	}

	notified, err := b.sales.Notify(ctx, symbol, chatID, b.sales.Limit())
	if err != nil {
		b.appLogger.Warn("Lastbuy check failed", "collection", symbol, "error", err)
		return fmt.Sprintf("Couldn't fetch sales for `%s`: %v", symbol, err)
	}
	if notified == 0 {
		return fmt.Sprintf("No new sales for `%s` in the last %s.", symbol, b.sales.Window())
	}
	// The qualifying sales were already delivered one by one.
	return ""
}

// resolveSymbol accepts either a collection symbol or an NFT mint address; a
// mint resolves to its collection through metadata. Collection symbols never
// parse as 32-byte base58 keys, so the two are distinguishable.
func (b *Bot) resolveSymbol(ctx context.Context, arg string) (string, error) {
	if b.metadata.ValidateMint(arg) != nil {
		return arg, nil
	}
	meta, err := b.metadata.TokenMetadata(ctx, arg)
	if err != nil {
		return "", fmt.Errorf("resolve collection for mint %s: %w", arg, err)
	}
	if meta.Collection == "" {
		return "", fmt.Errorf("mint %s carries no collection grouping", arg)
	}
	return meta.Collection, nil
}

func collectionSummary(c models.CollectionActivity) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "*%s* (`%s`)\n\n", c.Name, c.Symbol)
	fmt.Fprintf(&sb, "Floor: %s\n", floorText(c))
	fmt.Fprintf(&sb, "Listed: %s\n", utils.FormatCount(c.ListedCount))
	fmt.Fprintf(&sb, "24h Volume: %s SOL\n", utils.FormatVolumeSOL(c.Volume24h))
	if c.LastSale != nil {
		fmt.Fprintf(&sb, "Last sale: %s SOL at %s\n", utils.FormatSOL(c.LastSale.PriceSOL), time.Unix(c.LastSale.BlockTime, 0).UTC().Format("15:04 UTC"))
	}
	fmt.Fprintf(&sb, "\n[Magic Eden](%s)\n", c.MarketplaceURL)
	sb.WriteString("Updates arrive every few minutes while an NFT from this collection is tracked here.")
	return sb.String()
}

func floorText(c models.CollectionActivity) string {
	if !c.HasFloor {
		return "none"
	}
	return utils.FormatSOL(utils.LamportsToSOL(c.FloorPrice)) + " SOL"
}

func senderName(msg *tgbotapi.Message) string {
	if msg.From == nil {
		return ""
	}
	return msg.From.UserName
}
