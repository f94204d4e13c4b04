package models

// TrackedNFT is one mint watched by one chat. A chat may track many mints,
// and the same mint may be tracked by many chats, but never twice by the
// same chat.
type TrackedNFT struct {
	MintAddress string  // base58 asset identifier
	ChatID      int64   // owning conversation
	Name        string  // display name, synthesized if metadata was unavailable
	Collection  string  // collection symbol, empty when unknown
	LastPrice   float64 // lamports, valid only when HasPrice
	HasPrice    bool
	AlertPrice  float64 // SOL (major units), valid only when AlertSet
	AlertSet    bool
}

// LastSale is the most recent buy seen for a collection at snapshot time.
type LastSale struct {
	PriceSOL  float64
	BlockTime int64
	TokenMint string
}

// CollectionActivity is a point-in-time snapshot of a collection's market
// state. Snapshots are replaced wholesale; a failed refresh keeps the old one.
type CollectionActivity struct {
	Symbol         string
	Name           string
	MarketplaceURL string
	FloorPrice     float64 // lamports, valid only when HasFloor
	HasFloor       bool
	Volume24h      float64 // lamports
	ListedCount    int64
	LastSale       *LastSale
}

// SaleActivity is one buy event parsed from the marketplace activity feed.
type SaleActivity struct {
	Signature  string
	TokenMint  string
	Collection string
	Buyer      string
	Seller     string
	PriceSOL   float64 // major units
	BlockTime  int64   // unix seconds
	Image      string  // optional preview URL
}

// TokenMetadata is display metadata for a single asset.
type TokenMetadata struct {
	Mint       string
	Name       string
	Image      string
	Collection string
}
