package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"mint-sentry/agent/internal/models"
	"mint-sentry/shared/config"
	"mint-sentry/shared/logger"
	"mint-sentry/shared/retry"
	"mint-sentry/shared/utils"
)

const (
	marketplaceHTTPTimeout = 10 * time.Second
	breakerCooldown        = 30 * time.Second
	activitiesOffset       = 0

	// Metadata lookups are best-effort decoration for sale notifications, so
	// they get a smaller retry budget than price and stats fetches.
	metadataMaxRetries = 2
	metadataBaseDelay  = 250 * time.Millisecond
)

// CollectionStats is the marketplace's stats payload for one collection.
// Prices and volumes arrive in lamports.
type CollectionStats struct {
	Symbol      string  `json:"symbol"`
	FloorPrice  float64 `json:"floorPrice"`
	ListedCount int64   `json:"listedCount"`
	VolumeAll   float64 `json:"volumeAll"`
	Volume24h   float64 `json:"volume24hr"`
}

type tokenListing struct {
	PDAAddress string  `json:"pdaAddress"`
	TokenMint  string  `json:"tokenMint"`
	Price      float64 `json:"price"` // SOL, major units
	Seller     string  `json:"seller"`
}

type tokenInfo struct {
	MintAddress string `json:"mintAddress"`
	Name        string `json:"name"`
	Image       string `json:"image"`
	Collection  string `json:"collection"`
}

// CollectionInfo is the marketplace's descriptive payload for a collection.
type CollectionInfo struct {
	Symbol      string `json:"symbol"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Image       string `json:"image"`
}

// MarketplaceClient talks to the marketplace HTTP API. Every request flows
// through the shared rate limiter and circuit breaker, and is retried with
// backoff. An open breaker fails calls immediately without burning limiter
// tokens.
type MarketplaceClient struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	opts    retry.Options
	log     *logger.Logger
}

func NewMarketplaceClient(cfg *config.Config, appLogger *logger.Logger) *MarketplaceClient {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "Marketplace",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     breakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			appLogger.Warn("Circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	return &MarketplaceClient{
		baseURL: cfg.Marketplace.APIURL,
		http:    &http.Client{Timeout: marketplaceHTTPTimeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.Marketplace.RequestsPerSec), cfg.Marketplace.Burst),
		breaker: breaker,
		opts: retry.Options{
			MaxRetries: cfg.Marketplace.MaxRetries,
			BaseDelay:  time.Duration(cfg.Marketplace.BaseDelayMS) * time.Millisecond,
		},
		log: appLogger,
	}
}

func (c *MarketplaceClient) getJSON(ctx context.Context, opts retry.Options, desc, path string, out interface{}) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("marketplace rate limiter wait: %w", err)
		}
		return nil, retry.GetJSON(ctx, c.log, c.http, opts, desc, c.baseURL+path, out)
	})
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return errors.Wrap(err, "marketplace temporarily unavailable")
	}
	return err
}

// CollectionStats fetches the current floor/volume/listing stats for a
// collection symbol.
func (c *MarketplaceClient) CollectionStats(ctx context.Context, symbol string) (CollectionStats, error) {
	var stats CollectionStats
	path := fmt.Sprintf("/collections/%s/stats", url.PathEscape(symbol))
	if err := c.getJSON(ctx, c.opts, "collection stats", path, &stats); err != nil {
		return CollectionStats{}, errors.Wrapf(err, "fetch stats for collection %q", symbol)
	}
	if stats.Symbol == "" {
		stats.Symbol = symbol
	}
	return stats, nil
}

// CollectionInfo fetches the descriptive metadata for a collection symbol.
func (c *MarketplaceClient) CollectionInfo(ctx context.Context, symbol string) (CollectionInfo, error) {
	var info CollectionInfo
	path := fmt.Sprintf("/collections/%s", url.PathEscape(symbol))
	if err := c.getJSON(ctx, c.opts, "collection info", path, &info); err != nil {
		return CollectionInfo{}, errors.Wrapf(err, "fetch info for collection %q", symbol)
	}
	return info, nil
}

// CollectionActivities fetches the newest activity entries for a collection.
// The result is returned loosely typed; events.ParseBuyActivity decides what
// qualifies as a sale.
func (c *MarketplaceClient) CollectionActivities(ctx context.Context, symbol string, limit int) ([]map[string]interface{}, error) {
	var activities []map[string]interface{}
	path := fmt.Sprintf("/collections/%s/activities?offset=%d&limit=%d", url.PathEscape(symbol), activitiesOffset, limit)
	if err := c.getJSON(ctx, c.opts, "collection activities", path, &activities); err != nil {
		return nil, errors.Wrapf(err, "fetch activities for collection %q", symbol)
	}
	return activities, nil
}

// TokenPrice returns the lowest current listing price for a mint in
// lamports. An unlisted token returns 0 with a nil error.
func (c *MarketplaceClient) TokenPrice(ctx context.Context, mint string) (float64, error) {
	var listings []tokenListing
	path := fmt.Sprintf("/tokens/%s/listings", url.PathEscape(mint))
	if err := c.getJSON(ctx, c.opts, "token listings", path, &listings); err != nil {
		return 0, errors.Wrapf(err, "fetch listings for token %s", mint)
	}
	if len(listings) == 0 {
		return 0, nil
	}

	lowest := listings[0].Price
	for _, l := range listings[1:] {
		if l.Price < lowest {
			lowest = l.Price
		}
	}
	return utils.SOLToLamports(lowest), nil
}

// TokenMetadata fetches display metadata for a mint from the marketplace.
func (c *MarketplaceClient) TokenMetadata(ctx context.Context, mint string) (models.TokenMetadata, error) {
	relaxed := retry.Options{MaxRetries: metadataMaxRetries, BaseDelay: metadataBaseDelay}

	var info tokenInfo
	path := fmt.Sprintf("/tokens/%s", url.PathEscape(mint))
	if err := c.getJSON(ctx, relaxed, "token metadata", path, &info); err != nil {
		return models.TokenMetadata{}, errors.Wrapf(err, "fetch metadata for token %s", mint)
	}

	return models.TokenMetadata{
		Mint:       mint,
		Name:       info.Name,
		Image:      info.Image,
		Collection: info.Collection,
	}, nil
}
