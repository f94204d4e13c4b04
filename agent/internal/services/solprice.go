package services

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"mint-sentry/shared/logger"
	"mint-sentry/shared/retry"
)

const (
	coinGeckoPriceURL = "https://api.coingecko.com/api/v3/simple/price?ids=solana&vs_currencies=usd"
	binancePriceURL   = "https://api.binance.com/api/v3/ticker/price?symbol=SOLUSDT"

	solPriceCacheTTL  = 5 * time.Minute
	solPriceHTTPLimit = 5 * time.Second
)

// SolPriceService quotes SOL in USD. CoinGecko is the primary source with
// Binance as fallback, and quotes are cached so chat commands don't hammer
// either API.
type SolPriceService struct {
	http      *http.Client
	opts      retry.Options
	appLogger *logger.Logger

	mu        sync.Mutex
	cachedUSD float64
	fetchedAt time.Time
}

func NewSolPriceService(appLogger *logger.Logger) *SolPriceService {
	return &SolPriceService{
		http:      &http.Client{Timeout: solPriceHTTPLimit},
		opts:      retry.Options{MaxRetries: 3},
		appLogger: appLogger,
	}
}

// SOLPriceUSD returns the current SOL/USD quote, serving from cache when the
// last fetch is fresh enough.
func (s *SolPriceService) SOLPriceUSD(ctx context.Context) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cachedUSD > 0 && time.Since(s.fetchedAt) < solPriceCacheTTL {
		return s.cachedUSD, nil
	}

	price, err := s.fetchFromCoinGecko(ctx)
	if err != nil {
		s.appLogger.Warn("CoinGecko price fetch failed, switching to Binance", "error", err)
		price, err = s.fetchFromBinance(ctx)
	}
	if err != nil {
		return 0, err
	}

	s.cachedUSD = price
	s.fetchedAt = time.Now()
	s.appLogger.Debug("Fetched SOL price", "usd", price)
	return price, nil
}

func (s *SolPriceService) fetchFromCoinGecko(ctx context.Context) (float64, error) {
	var data map[string]map[string]float64
	if err := retry.GetJSON(ctx, s.appLogger, s.http, s.opts, "CoinGecko SOL price", coinGeckoPriceURL, &data); err != nil {
		return 0, err
	}
	price, exists := data["solana"]["usd"]
	if !exists || price <= 0 {
		return 0, fmt.Errorf("SOL price missing from CoinGecko response")
	}
	return price, nil
}

func (s *SolPriceService) fetchFromBinance(ctx context.Context) (float64, error) {
	var ticker struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := retry.GetJSON(ctx, s.appLogger, s.http, s.opts, "Binance SOL price", binancePriceURL, &ticker); err != nil {
		return 0, err
	}
	if ticker.Price == "" {
		return 0, fmt.Errorf("SOL price missing from Binance response")
	}
	price, err := strconv.ParseFloat(ticker.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("parse Binance price %q: %w", ticker.Price, err)
	}
	return price, nil
}
