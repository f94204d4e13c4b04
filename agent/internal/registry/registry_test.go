package registry

import (
	"errors"
	"testing"

	"mint-sentry/agent/internal/models"
)

const (
	mintA = "A1S9H3QjnRtBbbuD4HjPV6RpRhwuk4zKbxsnCHuTgh9w"
	mintB = "B2S9H3QjnRtBbbuD4HjPV6RpRhwuk4zKbxsnCHuTgh9w"
	mintC = "C3S9H3QjnRtBbbuD4HjPV6RpRhwuk4zKbxsnCHuTgh9w"
)

func TestTrackRejectsDuplicatePair(t *testing.T) {
	r := NewNFTRegistry()

	if _, err := r.Track(mintA, 100, "DeGod #1", "degods"); err != nil {
		t.Fatalf("first Track failed: %v", err)
	}

	_, err := r.Track(mintA, 100, "DeGod #1", "degods")
	if !errors.Is(err, ErrDuplicateTracking) {
		t.Fatalf("duplicate Track error = %v, want ErrDuplicateTracking", err)
	}

	// Same mint in a different chat is a separate entry.
	if _, err := r.Track(mintA, 200, "DeGod #1", "degods"); err != nil {
		t.Fatalf("Track in second chat failed: %v", err)
	}
	if r.Len() != 2 {
		t.Errorf("Len() = %d, want 2", r.Len())
	}
}

func TestTrackListUntrackFlow(t *testing.T) {
	r := NewNFTRegistry()
	chatID := int64(42)

	for _, m := range []string{mintA, mintB, mintC} {
		if _, err := r.Track(m, chatID, "", ""); err != nil {
			t.Fatalf("Track(%s) failed: %v", m, err)
		}
	}

	list := r.ListFor(chatID)
	if len(list) != 3 {
		t.Fatalf("ListFor returned %d entries, want 3", len(list))
	}
	for i, want := range []string{mintA, mintB, mintC} {
		if list[i].MintAddress != want {
			t.Errorf("list[%d].MintAddress = %s, want %s (insertion order)", i, list[i].MintAddress, want)
		}
	}

	if err := r.Untrack(mintB, chatID); err != nil {
		t.Fatalf("Untrack failed: %v", err)
	}
	list = r.ListFor(chatID)
	if len(list) != 2 {
		t.Fatalf("ListFor after Untrack returned %d entries, want 2", len(list))
	}
	if list[0].MintAddress != mintA || list[1].MintAddress != mintC {
		t.Errorf("order after Untrack = [%s %s], want [%s %s]",
			list[0].MintAddress, list[1].MintAddress, mintA, mintC)
	}

	if err := r.Untrack(mintB, chatID); !errors.Is(err, ErrNotTracked) {
		t.Errorf("second Untrack error = %v, want ErrNotTracked", err)
	}
	if err := r.Untrack(mintA, 999); !errors.Is(err, ErrNotTracked) {
		t.Errorf("Untrack from wrong chat error = %v, want ErrNotTracked", err)
	}
}

func TestSetAlertRequiresTrackedEntry(t *testing.T) {
	r := NewNFTRegistry()

	if err := r.SetAlert(mintA, 1, 5.0); !errors.Is(err, ErrNotTracked) {
		t.Fatalf("SetAlert on untracked = %v, want ErrNotTracked", err)
	}

	if _, err := r.Track(mintA, 1, "", ""); err != nil {
		t.Fatal(err)
	}
	if err := r.SetAlert(mintA, 1, 5.0); err != nil {
		t.Fatalf("SetAlert failed: %v", err)
	}

	entry := r.ListFor(1)[0]
	if !entry.AlertSet || entry.AlertPrice != 5.0 {
		t.Errorf("entry = %+v, want AlertSet with AlertPrice 5.0", entry)
	}

	// Re-arming overwrites the threshold.
	if err := r.SetAlert(mintA, 1, 2.5); err != nil {
		t.Fatal(err)
	}
	if got := r.ListFor(1)[0].AlertPrice; got != 2.5 {
		t.Errorf("AlertPrice after re-arm = %v, want 2.5", got)
	}

	r.ClearAlert(mintA, 1)
	entry = r.ListFor(1)[0]
	if entry.AlertSet || entry.AlertPrice != 0 {
		t.Errorf("entry after ClearAlert = %+v, want disarmed", entry)
	}

	// Clearing an entry that vanished is a no-op.
	r.ClearAlert(mintC, 1)
}

func TestUpdatePriceMarksPriceKnown(t *testing.T) {
	r := NewNFTRegistry()
	if _, err := r.Track(mintA, 1, "", ""); err != nil {
		t.Fatal(err)
	}

	if e := r.ListFor(1)[0]; e.HasPrice {
		t.Error("fresh entry should have no known price")
	}

	r.UpdatePrice(mintA, 1, 7_250_000_000)
	e := r.ListFor(1)[0]
	if !e.HasPrice || e.LastPrice != 7_250_000_000 {
		t.Errorf("entry = %+v, want LastPrice 7.25e9 with HasPrice", e)
	}

	// A zero fetch result still counts as a known price of zero.
	r.UpdatePrice(mintA, 1, 0)
	e = r.ListFor(1)[0]
	if !e.HasPrice || e.LastPrice != 0 {
		t.Errorf("entry = %+v, want LastPrice 0 with HasPrice", e)
	}

	r.UpdatePrice(mintB, 1, 100) // untracked, must not panic
}

func TestEntriesReturnsDetachedCopies(t *testing.T) {
	r := NewNFTRegistry()
	if _, err := r.Track(mintA, 1, "", ""); err != nil {
		t.Fatal(err)
	}

	snap := r.Entries()
	if len(snap) != 1 {
		t.Fatalf("Entries() returned %d, want 1", len(snap))
	}
	snap[0].LastPrice = 999

	if got := r.ListFor(1)[0].LastPrice; got != 0 {
		t.Errorf("mutating the snapshot leaked into the registry: LastPrice = %v", got)
	}
}

func TestSubscribersOfDeduplicatesChats(t *testing.T) {
	r := NewNFTRegistry()

	mustTrack := func(mint string, chatID int64, collection string) {
		t.Helper()
		if _, err := r.Track(mint, chatID, "", collection); err != nil {
			t.Fatal(err)
		}
	}

	mustTrack(mintA, 100, "degods")
	mustTrack(mintB, 100, "degods") // same chat, same collection
	mustTrack(mintC, 200, "degods")
	mustTrack(mintA, 300, "okay_bears")
	mustTrack(mintB, 400, "") // no collection metadata

	got := r.SubscribersOf("degods")
	want := []int64{100, 200}
	if len(got) != len(want) {
		t.Fatalf("SubscribersOf(degods) = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("SubscribersOf(degods)[%d] = %d, want %d", i, got[i], want[i])
		}
	}

	if got := r.SubscribersOf(""); got != nil {
		t.Errorf("SubscribersOf(\"\") = %v, want nil (blank collections never match)", got)
	}
	if got := r.SubscribersOf("unknown"); got != nil {
		t.Errorf("SubscribersOf(unknown) = %v, want nil", got)
	}
}

func TestCollectionReplaceReturnsPrevious(t *testing.T) {
	r := NewCollectionRegistry()

	first := models.CollectionActivity{Symbol: "degods", FloorPrice: 100e9, HasFloor: true, ListedCount: 12}
	if prev := r.Replace("degods", first); prev != nil {
		t.Errorf("first Replace returned %+v, want nil", prev)
	}

	second := models.CollectionActivity{Symbol: "degods", FloorPrice: 95e9, HasFloor: true, ListedCount: 14}
	prev := r.Replace("degods", second)
	if prev == nil {
		t.Fatal("second Replace returned nil, want the first snapshot")
	}
	if prev.FloorPrice != 100e9 || prev.ListedCount != 12 {
		t.Errorf("previous snapshot = %+v, want the first write", prev)
	}

	got, ok := r.Get("degods")
	if !ok {
		t.Fatal("Get(degods) missing after Replace")
	}
	if got.FloorPrice != 95e9 || got.ListedCount != 14 {
		t.Errorf("current snapshot = %+v, want the second write", got)
	}
}

func TestCollectionRegistryKeepsFirstTrackOrder(t *testing.T) {
	r := NewCollectionRegistry()

	r.Replace("degods", models.CollectionActivity{Symbol: "degods"})
	r.Replace("okay_bears", models.CollectionActivity{Symbol: "okay_bears"})
	r.Replace("degods", models.CollectionActivity{Symbol: "degods", ListedCount: 5})

	syms := r.Symbols()
	if len(syms) != 2 || syms[0] != "degods" || syms[1] != "okay_bears" {
		t.Errorf("Symbols() = %v, want [degods okay_bears]", syms)
	}

	all := r.All()
	if len(all) != 2 {
		t.Fatalf("All() returned %d snapshots, want 2", len(all))
	}
	if all[0].Symbol != "degods" || all[0].ListedCount != 5 {
		t.Errorf("All()[0] = %+v, want the refreshed degods snapshot", all[0])
	}
	if r.Len() != 2 {
		t.Errorf("Len() = %d, want 2", r.Len())
	}

	if _, ok := r.Get("unknown"); ok {
		t.Error("Get(unknown) = ok, want miss")
	}
}
