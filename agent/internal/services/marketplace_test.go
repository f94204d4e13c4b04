package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"mint-sentry/shared/config"
	"mint-sentry/shared/logger"
	"mint-sentry/shared/retry"
)

func newTestMarketplaceClient(baseURL string, maxRetries int) *MarketplaceClient {
	cfg := &config.Config{}
	cfg.Marketplace.APIURL = baseURL
	cfg.Marketplace.RequestsPerSec = 1000
	cfg.Marketplace.Burst = 1000
	cfg.Marketplace.MaxRetries = maxRetries
	cfg.Marketplace.BaseDelayMS = 1
	return NewMarketplaceClient(cfg, logger.NewNop())
}

func TestCollectionStatsDecodesPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/collections/degods/stats" {
			t.Errorf("path = %q", r.URL.Path)
		}
		fmt.Fprint(w, `{"symbol":"degods","floorPrice":12500000000,"listedCount":42,"volumeAll":99000000000000,"volume24hr":900000000000}`)
	}))
	defer srv.Close()

	client := newTestMarketplaceClient(srv.URL, 2)
	stats, err := client.CollectionStats(context.Background(), "degods")
	if err != nil {
		t.Fatalf("CollectionStats failed: %v", err)
	}

	if stats.Symbol != "degods" || stats.FloorPrice != 12.5e9 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.ListedCount != 42 || stats.Volume24h != 900e9 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestCollectionStatsFillsMissingSymbol(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"floorPrice":1000000000}`)
	}))
	defer srv.Close()

	client := newTestMarketplaceClient(srv.URL, 2)
	stats, err := client.CollectionStats(context.Background(), "okay_bears")
	if err != nil {
		t.Fatal(err)
	}
	if stats.Symbol != "okay_bears" {
		t.Errorf("Symbol = %q, want the requested symbol", stats.Symbol)
	}
}

func TestTokenPricePicksLowestListing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/tokens/") || !strings.HasSuffix(r.URL.Path, "/listings") {
			t.Errorf("path = %q", r.URL.Path)
		}
		fmt.Fprint(w, `[{"price":2.5},{"price":1.75},{"price":9.9}]`)
	}))
	defer srv.Close()

	client := newTestMarketplaceClient(srv.URL, 2)
	price, err := client.TokenPrice(context.Background(), "Mint1")
	if err != nil {
		t.Fatal(err)
	}
	if price != 1.75e9 {
		t.Errorf("price = %v lamports, want 1.75e9 (lowest listing)", price)
	}
}

func TestTokenPriceUnlistedIsZeroNotError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[]`)
	}))
	defer srv.Close()

	client := newTestMarketplaceClient(srv.URL, 2)
	price, err := client.TokenPrice(context.Background(), "Mint1")
	if err != nil {
		t.Fatalf("unlisted token must not error: %v", err)
	}
	if price != 0 {
		t.Errorf("price = %v, want 0", price)
	}
}

func TestTokenPriceRetriesTransientFailure(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			http.Error(w, "upstream hiccup", http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `[{"price":3.0}]`)
	}))
	defer srv.Close()

	client := newTestMarketplaceClient(srv.URL, 3)
	price, err := client.TokenPrice(context.Background(), "Mint1")
	if err != nil {
		t.Fatalf("TokenPrice failed after a transient error: %v", err)
	}
	if price != 3e9 {
		t.Errorf("price = %v, want 3e9", price)
	}
	if hits.Load() != 2 {
		t.Errorf("server hits = %d, want 2", hits.Load())
	}
}

func TestCollectionActivitiesQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/collections/degods/activities" {
			t.Errorf("path = %q", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("offset") != "0" || q.Get("limit") != "7" {
			t.Errorf("query = %q", r.URL.RawQuery)
		}
		fmt.Fprint(w, `[{"type":"buyNow","signature":"sig","price":1.5,"blockTime":1726000000}]`)
	}))
	defer srv.Close()

	client := newTestMarketplaceClient(srv.URL, 2)
	activities, err := client.CollectionActivities(context.Background(), "degods", 7)
	if err != nil {
		t.Fatal(err)
	}
	if len(activities) != 1 || activities[0]["signature"] != "sig" {
		t.Errorf("activities = %+v", activities)
	}
}

func TestTokenMetadataMapsFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"mintAddress":"Mint1","name":"DeGod #1234","image":"https://img.example/x.png","collection":"degods"}`)
	}))
	defer srv.Close()

	client := newTestMarketplaceClient(srv.URL, 2)
	meta, err := client.TokenMetadata(context.Background(), "Mint1")
	if err != nil {
		t.Fatal(err)
	}
	if meta.Mint != "Mint1" || meta.Name != "DeGod #1234" {
		t.Errorf("meta = %+v", meta)
	}
	if meta.Image != "https://img.example/x.png" || meta.Collection != "degods" {
		t.Errorf("meta = %+v", meta)
	}
}

func TestStatsErrorSurfacesAfterRetryBudget(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "no such collection", http.StatusNotFound)
	}))
	defer srv.Close()

	client := newTestMarketplaceClient(srv.URL, 2)
	_, err := client.CollectionStats(context.Background(), "ghost")
	if err == nil {
		t.Fatal("expected error for a missing collection")
	}
	if hits.Load() != 2 {
		t.Errorf("server hits = %d, want the full retry budget of 2", hits.Load())
	}

	var httpErr *retry.HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != http.StatusNotFound {
		t.Errorf("error chain = %v, want a 404 *retry.HTTPError inside", err)
	}
}

func TestBreakerShortCircuitsAfterConsecutiveFailures(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := newTestMarketplaceClient(srv.URL, 1)

	for i := 0; i < 6; i++ {
		if _, err := client.CollectionStats(context.Background(), "degods"); err == nil {
			t.Fatalf("call %d unexpectedly succeeded", i+1)
		}
	}
	before := hits.Load()

	_, err := client.CollectionStats(context.Background(), "degods")
	if err == nil {
		t.Fatal("expected open-breaker error")
	}
	if !strings.Contains(err.Error(), "temporarily unavailable") {
		t.Errorf("error = %v, want the open-breaker wrap", err)
	}
	if hits.Load() != before {
		t.Errorf("server hits grew from %d to %d; an open breaker must not reach the API", before, hits.Load())
	}
}
