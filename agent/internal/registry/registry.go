package registry

import (
	"errors"
	"sync"

	"mint-sentry/agent/internal/models"
)

var (
	// ErrDuplicateTracking means the (mint, chat) pair is already registered.
	ErrDuplicateTracking = errors.New("NFT is already tracked in this chat")
	// ErrNotTracked means no entry matches the (mint, chat) pair.
	ErrNotTracked = errors.New("NFT is not tracked in this chat")
)

// NFTRegistry owns every tracked NFT for every chat. It is concurrency-safe
// via an internal RWMutex and keeps entries in insertion order, which is the
// order /list shows them in. State lives for the process lifetime only.
type NFTRegistry struct {
	mu      sync.RWMutex
	entries []*models.TrackedNFT
}

func NewNFTRegistry() *NFTRegistry {
	return &NFTRegistry{}
}

func (r *NFTRegistry) find(mint string, chatID int64) int {
	for i, e := range r.entries {
		if e.MintAddress == mint && e.ChatID == chatID {
			return i
		}
	}
	return -1
}

// Track appends a new entry for (mint, chatID). The price starts unknown;
// the alert starts unarmed.
func (r *NFTRegistry) Track(mint string, chatID int64, name, collection string) (*models.TrackedNFT, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.find(mint, chatID) >= 0 {
		return nil, ErrDuplicateTracking
	}

	entry := &models.TrackedNFT{
		MintAddress: mint,
		ChatID:      chatID,
		Name:        name,
		Collection:  collection,
	}
	r.entries = append(r.entries, entry)
	return entry, nil
}

// Untrack removes exactly one entry matching (mint, chatID).
func (r *NFTRegistry) Untrack(mint string, chatID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.find(mint, chatID)
	if i < 0 {
		return ErrNotTracked
	}
	r.entries = append(r.entries[:i], r.entries[i+1:]...)
	return nil
}

// SetAlert arms (or re-arms) the alert threshold for an existing entry.
// Validation of the price itself is the caller's job; any finite positive
// value is stored as-is with no comparison against the current price.
func (r *NFTRegistry) SetAlert(mint string, chatID int64, priceSOL float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.find(mint, chatID)
	if i < 0 {
		return ErrNotTracked
	}
	r.entries[i].AlertPrice = priceSOL
	r.entries[i].AlertSet = true
	return nil
}

// ClearAlert disarms the alert for an entry. Clearing an entry that was
// untracked mid-cycle is a no-op.
func (r *NFTRegistry) ClearAlert(mint string, chatID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if i := r.find(mint, chatID); i >= 0 {
		r.entries[i].AlertPrice = 0
		r.entries[i].AlertSet = false
	}
}

// UpdatePrice records the latest fetched price in lamports. Updating an
// entry that was untracked mid-cycle is a no-op.
func (r *NFTRegistry) UpdatePrice(mint string, chatID int64, lamports float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if i := r.find(mint, chatID); i >= 0 {
		r.entries[i].LastPrice = lamports
		r.entries[i].HasPrice = true
	}
}

// ListFor returns copies of the chat's entries in insertion order.
func (r *NFTRegistry) ListFor(chatID int64) []models.TrackedNFT {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []models.TrackedNFT
	for _, e := range r.entries {
		if e.ChatID == chatID {
			out = append(out, *e)
		}
	}
	return out
}

// Entries returns copies of every entry in insertion order. Evaluator cycles
// iterate over this snapshot so a slow cycle never holds the lock.
func (r *NFTRegistry) Entries() []models.TrackedNFT {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.TrackedNFT, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, *e)
	}
	return out
}

// SubscribersOf returns the distinct chat IDs tracking at least one NFT of
// the collection. A chat tracking several NFTs of the same collection
// appears once.
func (r *NFTRegistry) SubscribersOf(symbol string) []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[int64]struct{})
	var out []int64
	for _, e := range r.entries {
		if e.Collection != symbol || e.Collection == "" {
			continue
		}
		if _, dup := seen[e.ChatID]; dup {
			continue
		}
		seen[e.ChatID] = struct{}{}
		out = append(out, e.ChatID)
	}
	return out
}

func (r *NFTRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// CollectionRegistry holds one activity snapshot per collection symbol.
// Snapshots are replaced wholesale; iteration follows first-track order.
type CollectionRegistry struct {
	mu        sync.RWMutex
	snapshots map[string]*models.CollectionActivity
	order     []string
}

func NewCollectionRegistry() *CollectionRegistry {
	return &CollectionRegistry{snapshots: make(map[string]*models.CollectionActivity)}
}

// Replace stores a new snapshot for the symbol and returns the previous one
// (nil for a first write). The prior value exists only so callers can decide
// whether subscribers need to hear about the change.
func (r *CollectionRegistry) Replace(symbol string, snapshot models.CollectionActivity) *models.CollectionActivity {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.snapshots[symbol]
	if prev == nil {
		r.order = append(r.order, symbol)
	}
	s := snapshot
	r.snapshots[symbol] = &s
	return prev
}

// Get returns a copy of the symbol's snapshot.
func (r *CollectionRegistry) Get(symbol string) (models.CollectionActivity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.snapshots[symbol]
	if !ok {
		return models.CollectionActivity{}, false
	}
	return *s, true
}

// Symbols returns the tracked symbols in first-track order.
func (r *CollectionRegistry) Symbols() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// All returns snapshot copies in first-track order.
func (r *CollectionRegistry) All() []models.CollectionActivity {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.CollectionActivity, 0, len(r.order))
	for _, sym := range r.order {
		if s, ok := r.snapshots[sym]; ok {
			out = append(out, *s)
		}
	}
	return out
}

func (r *CollectionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
