package domain

// SyncAPI is the non-streaming side of the exchange transport. All methods may
// fail transiently; callers are expected to retry.
type SyncAPI interface {
	// OrderBookSnapshot returns the full book together with the sequence
	// number it corresponds to.
	OrderBookSnapshot(symbol *MarketSymbol) (*OrderBookSnapshot, error)

	// Trades pages through the trade history. With TradesSort_Asc the page
	// starts right after markerID going forward in time, with TradesSort_Desc
	// right before it going backward. An empty markerID starts from the
	// newest trade.
	Trades(symbol *MarketSymbol, markerID string, sort TradesSort, limit int) ([]*Trade, error)

	// NewestTrade returns the single most recent trade of the book.
	NewestTrade(symbol *MarketSymbol) (*Trade, error)
}

// StreamAPI is the push side of the exchange transport. Diff messages are
// delivered one at a time, in receive order.
type StreamAPI interface {
	DiffOrdersStream(symbol *MarketSymbol) (*Subscription[*DiffMessage], error)
}
