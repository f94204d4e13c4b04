package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"mint-sentry/agent/internal/models"
	"mint-sentry/shared/config"
	"mint-sentry/shared/logger"
	"mint-sentry/shared/types"
)

type fakeActivitySource struct {
	mu       sync.Mutex
	entries  []map[string]interface{}
	err      error
	calls    int
	gotLimit int
}

func (f *fakeActivitySource) CollectionActivities(_ context.Context, _ string, limit int) ([]map[string]interface{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.gotLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	return f.entries, nil
}

type fakeMetadataSource struct {
	meta map[string]models.TokenMetadata
	err  error
}

func (f *fakeMetadataSource) TokenMetadata(_ context.Context, mint string) (models.TokenMetadata, error) {
	if f.err != nil {
		return models.TokenMetadata{}, f.err
	}
	if m, ok := f.meta[mint]; ok {
		return m, nil
	}
	return models.TokenMetadata{}, errors.New("unknown mint")
}

func saleConfig(limit, windowSeconds int) *config.Config {
	cfg := &config.Config{}
	cfg.Sales.WindowSeconds = windowSeconds
	cfg.Sales.CronIntervalSeconds = 60
	cfg.Sales.Limit = limit
	cfg.Sales.MessageDelayMS = 0
	return cfg
}

func saleEntry(sig, mint string, price float64, age time.Duration) map[string]interface{} {
	return map[string]interface{}{
		"type":      "buyNow",
		"signature": sig,
		"tokenMint": mint,
		"price":     price,
		"blockTime": float64(time.Now().Add(-age).Unix()),
		"buyer":     "BuYerAddr111111111111111111111111111111111",
	}
}

func newTestWatcher(activity ActivitySource, metadata MetadataSource, sink types.Sink, metrics *Metrics, cfg *config.Config) *SaleWatcher {
	return NewSaleWatcher(activity, metadata, sink, metrics, cfg, logger.NewNop())
}

func TestNotifyFiltersOnRecencyWindow(t *testing.T) {
	activity := &fakeActivitySource{entries: []map[string]interface{}{
		saleEntry("sig-fresh", "MintFresh", 12.5, 30*time.Second),
		saleEntry("sig-stale", "MintStale", 8.0, 120*time.Second),
		{"type": "list", "signature": "sig-list", "price": 5.0, "blockTime": float64(time.Now().Unix())},
	}}
	metadata := &fakeMetadataSource{err: errors.New("metadata offline")}
	sink := &recordingSink{}
	sw := newTestWatcher(activity, metadata, sink, newTestMetrics(), saleConfig(5, 60))

	n, err := sw.Notify(context.Background(), "degods", 1, sw.Limit())
	if err != nil {
		t.Fatalf("Notify failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("notified = %d, want 1 (only the sale inside the window)", n)
	}

	sent := sink.notifications()
	if len(sent) != 1 {
		t.Fatalf("deliveries = %d, want 1", len(sent))
	}
	if !strings.Contains(sent[0].Text, "MintFresh") {
		t.Errorf("wrong sale delivered: %q", sent[0].Text)
	}
	if activity.gotLimit != saleFetchLimit {
		t.Errorf("activity fetch limit = %d, want %d", activity.gotLimit, saleFetchLimit)
	}
}

func TestNotifyCapsAtLimit(t *testing.T) {
	activity := &fakeActivitySource{entries: []map[string]interface{}{
		saleEntry("sig-1", "Mint1", 10, time.Second),
		saleEntry("sig-2", "Mint2", 11, 2*time.Second),
		saleEntry("sig-3", "Mint3", 12, 3*time.Second),
		saleEntry("sig-4", "Mint4", 13, 4*time.Second),
	}}
	metadata := &fakeMetadataSource{err: errors.New("metadata offline")}
	sink := &recordingSink{}
	sw := newTestWatcher(activity, metadata, sink, newTestMetrics(), saleConfig(2, 3600))

	n, err := sw.Notify(context.Background(), "degods", 1, 2)
	if err != nil {
		t.Fatalf("Notify failed: %v", err)
	}
	if n != 2 {
		t.Fatalf("notified = %d, want the cap of 2", n)
	}

	sent := sink.notifications()
	if len(sent) != 2 {
		t.Fatalf("deliveries = %d, want 2", len(sent))
	}
	// Feed order is preserved: the first two qualifying entries win.
	if !strings.Contains(sent[0].Text, "Mint1") || !strings.Contains(sent[1].Text, "Mint2") {
		t.Errorf("delivered sales out of order: %q / %q", sent[0].Text, sent[1].Text)
	}
}

func TestNotifySuppressesRepeatsPerChat(t *testing.T) {
	activity := &fakeActivitySource{entries: []map[string]interface{}{
		saleEntry("sig-1", "Mint1", 10, time.Second),
	}}
	metadata := &fakeMetadataSource{err: errors.New("metadata offline")}
	sink := &recordingSink{}
	sw := newTestWatcher(activity, metadata, sink, newTestMetrics(), saleConfig(5, 3600))

	if n, _ := sw.Notify(context.Background(), "degods", 1, 5); n != 1 {
		t.Fatalf("first check notified %d, want 1", n)
	}
	if n, _ := sw.Notify(context.Background(), "degods", 1, 5); n != 0 {
		t.Fatalf("repeat check notified %d, want 0 (already seen in this chat)", n)
	}
	// A different chat has its own seen cache.
	if n, _ := sw.Notify(context.Background(), "degods", 2, 5); n != 1 {
		t.Fatalf("other chat notified %d, want 1", n)
	}
	if len(sink.notifications()) != 2 {
		t.Errorf("total deliveries = %d, want 2", len(sink.notifications()))
	}
}

func TestNotifyRetriesFailedDeliveryOnNextCheck(t *testing.T) {
	activity := &fakeActivitySource{entries: []map[string]interface{}{
		saleEntry("sig-1", "Mint1", 10, time.Second),
	}}
	metadata := &fakeMetadataSource{err: errors.New("metadata offline")}
	sink := &recordingSink{failures: 1}
	sw := newTestWatcher(activity, metadata, sink, newTestMetrics(), saleConfig(5, 3600))

	n, err := sw.Notify(context.Background(), "degods", 1, 5)
	if err != nil {
		t.Fatalf("Notify failed: %v", err)
	}
	if n != 0 {
		t.Fatalf("notified = %d, want 0 (delivery failed)", n)
	}

	// The failed sale was never marked seen, so the next check retries it.
	n, err = sw.Notify(context.Background(), "degods", 1, 5)
	if err != nil {
		t.Fatalf("Notify failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("retry check notified %d, want 1", n)
	}
}

func TestNotifySynthesizesNameWhenMetadataFails(t *testing.T) {
	activity := &fakeActivitySource{entries: []map[string]interface{}{
		saleEntry("sig-1", "J1S9H3QjnRtBbbuD4HjPV6RpRhwuk4zKbxsnCHuTgh9w", 10, time.Second),
	}}
	metadata := &fakeMetadataSource{err: errors.New("metadata offline")}
	sink := &recordingSink{}
	sw := newTestWatcher(activity, metadata, sink, newTestMetrics(), saleConfig(5, 3600))

	if _, err := sw.Notify(context.Background(), "degods", 1, 5); err != nil {
		t.Fatal(err)
	}

	sent := sink.notifications()
	if len(sent) != 1 {
		t.Fatalf("deliveries = %d, want 1", len(sent))
	}
	if !strings.Contains(sent[0].Text, "DEGODS") || !strings.Contains(sent[0].Text, "J1S9") {
		t.Errorf("caption should carry the synthesized name, got %q", sent[0].Text)
	}
	if sent[0].PhotoURL != "" {
		t.Errorf("PhotoURL = %q, want empty without metadata", sent[0].PhotoURL)
	}
}

func TestNotifyPrefersMetadataNameAndImage(t *testing.T) {
	activity := &fakeActivitySource{entries: []map[string]interface{}{
		saleEntry("sig-1", "Mint1", 10, time.Second),
	}}
	metadata := &fakeMetadataSource{meta: map[string]models.TokenMetadata{
		"Mint1": {Mint: "Mint1", Name: "DeGod #1234", Image: "https://img.example/degod.png"},
	}}
	sink := &recordingSink{}
	sw := newTestWatcher(activity, metadata, sink, newTestMetrics(), saleConfig(5, 3600))

	if _, err := sw.Notify(context.Background(), "degods", 1, 5); err != nil {
		t.Fatal(err)
	}

	sent := sink.notifications()
	if len(sent) != 1 {
		t.Fatalf("deliveries = %d, want 1", len(sent))
	}
	if !strings.Contains(sent[0].Text, "DeGod") {
		t.Errorf("caption should carry the metadata name, got %q", sent[0].Text)
	}
	if sent[0].PhotoURL != "https://img.example/degod.png" {
		t.Errorf("PhotoURL = %q, want the metadata image", sent[0].PhotoURL)
	}
}

func TestNotifyKeepsActivityImageOverMetadata(t *testing.T) {
	entry := saleEntry("sig-1", "Mint1", 10, time.Second)
	entry["image"] = "https://img.example/from-activity.png"
	activity := &fakeActivitySource{entries: []map[string]interface{}{entry}}
	metadata := &fakeMetadataSource{meta: map[string]models.TokenMetadata{
		"Mint1": {Mint: "Mint1", Name: "DeGod #1234", Image: "https://img.example/from-meta.png"},
	}}
	sink := &recordingSink{}
	sw := newTestWatcher(activity, metadata, sink, newTestMetrics(), saleConfig(5, 3600))

	if _, err := sw.Notify(context.Background(), "degods", 1, 5); err != nil {
		t.Fatal(err)
	}

	sent := sink.notifications()
	if len(sent) != 1 {
		t.Fatalf("deliveries = %d, want 1", len(sent))
	}
	if sent[0].PhotoURL != "https://img.example/from-activity.png" {
		t.Errorf("PhotoURL = %q, want the activity feed image", sent[0].PhotoURL)
	}
}

func TestNotifySurfacesFetchError(t *testing.T) {
	activity := &fakeActivitySource{err: errors.New("api down")}
	metadata := &fakeMetadataSource{}
	sink := &recordingSink{}
	metrics := newTestMetrics()
	sw := newTestWatcher(activity, metadata, sink, metrics, saleConfig(5, 3600))

	n, err := sw.Notify(context.Background(), "degods", 1, 5)
	if err == nil {
		t.Fatal("expected fetch error")
	}
	if n != 0 {
		t.Errorf("notified = %d, want 0", n)
	}
	if got := testutil.ToFloat64(metrics.FetchFailures.WithLabelValues("sale_activities")); got != 1 {
		t.Errorf("FetchFailures[sale_activities] = %v, want 1", got)
	}
}

func TestRunScheduledStaysOffWithoutWatchTarget(t *testing.T) {
	activity := &fakeActivitySource{}
	metadata := &fakeMetadataSource{}
	sw := newTestWatcher(activity, metadata, &recordingSink{}, newTestMetrics(), saleConfig(5, 60))

	done := make(chan struct{})
	go func() {
		sw.RunScheduled(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunScheduled should return immediately without a configured watch target")
	}
	if activity.calls != 0 {
		t.Errorf("activity fetches = %d, want 0", activity.calls)
	}
}

func TestSynthesizedName(t *testing.T) {
	tests := []struct {
		symbol string
		mint   string
		want   string
	}{
		{"degods", "J1S9H3Qj", "DEGODS #J1S9"},
		{"okay_bears", "abc", "OKAY_BEARS #abc"},
		{"x", "", "X #"},
	}
	for _, tt := range tests {
		if got := synthesizedName(tt.symbol, tt.mint); got != tt.want {
			t.Errorf("synthesizedName(%q, %q) = %q, want %q", tt.symbol, tt.mint, got, tt.want)
		}
	}
}
