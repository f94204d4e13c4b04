package tests

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"mint-sentry/shared/config"
	"mint-sentry/shared/logger"
)

const (
	startupGracePeriod  = 3 * time.Second
	healthProbeAttempts = 15
	healthProbeInterval = 2 * time.Second
	probeRequestTimeout = 5 * time.Second
)

// RunStartupChecks probes the local HTTP server and the marketplace API after
// boot. Failures are logged, never fatal; the bot keeps running either way.
func RunStartupChecks(ctx context.Context, cfg *config.Config, appLogger *logger.Logger) {
	appLogger.Info("Running startup checks...")

	if !sleepCtx(ctx, startupGracePeriod) {
		return
	}

	client := &http.Client{Timeout: probeRequestTimeout}

	serverOK := probeLocalServer(ctx, client, cfg.App.Port, appLogger)
	marketOK := probeMarketplace(ctx, client, cfg, appLogger)

	if serverOK && marketOK {
		appLogger.Info("All startup checks passed.")
		return
	}
	appLogger.Warn("One or more startup checks failed.",
		"serverOK", serverOK,
		"marketplaceOK", marketOK,
	)
}

// probeLocalServer polls the health endpoint until it answers or attempts run out.
func probeLocalServer(ctx context.Context, client *http.Client, port string, appLogger *logger.Logger) bool {
	healthURL := fmt.Sprintf("http://localhost:%s/api/v1/health", port)

	for attempt := 1; attempt <= healthProbeAttempts; attempt++ {
		status, err := probeGet(ctx, client, healthURL)
		if err == nil && status >= 200 && status < 300 {
			appLogger.Info("Local server is up.", "url", healthURL, "attempt", attempt)
			return true
		}
		if err != nil {
			appLogger.Debug("Health probe failed, server not ready yet.",
				"attempt", attempt, "maxAttempts", healthProbeAttempts, "error", err)
		} else {
			appLogger.Debug("Health probe got non-OK status.",
				"attempt", attempt, "maxAttempts", healthProbeAttempts, "status", status)
		}
		if !sleepCtx(ctx, healthProbeInterval) {
			return false
		}
	}
	appLogger.Warn("Local server did not become ready.", "url", healthURL, "attempts", healthProbeAttempts)
	return false
}

// probeMarketplace checks the marketplace API is reachable. When a watch
// collection is configured its stats endpoint is used, so a 2xx also proves
// the symbol resolves; otherwise any HTTP response from the base URL counts.
func probeMarketplace(ctx context.Context, client *http.Client, cfg *config.Config, appLogger *logger.Logger) bool {
	if symbol := cfg.Watch.CollectionSymbol; symbol != "" {
		statsURL := fmt.Sprintf("%s/collections/%s/stats", cfg.Marketplace.APIURL, url.PathEscape(symbol))
		status, err := probeGet(ctx, client, statsURL)
		if err != nil {
			appLogger.Warn("Marketplace probe failed.", "url", statsURL, "error", err)
			return false
		}
		if status < 200 || status >= 300 {
			appLogger.Warn("Marketplace probe got non-OK status.", "url", statsURL, "status", status)
			return false
		}
		appLogger.Info("Marketplace API reachable, watch collection resolves.", "symbol", symbol)
		return true
	}

	status, err := probeGet(ctx, client, cfg.Marketplace.APIURL)
	if err != nil {
		appLogger.Warn("Marketplace probe failed.", "url", cfg.Marketplace.APIURL, "error", err)
		return false
	}
	appLogger.Info("Marketplace API reachable.", "status", status)
	return true
}

func probeGet(ctx context.Context, client *http.Client, target string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

// sleepCtx waits for d unless the context ends first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
