package domain

type OrderSide string

const (
	OrderSide_Buy  OrderSide = "buy"
	OrderSide_Sell OrderSide = "sell"
)

// Order is a single live order on one side of the book. Price and Amount are
// kept exactly as the exchange sent them, so no decimal precision is lost on
// the way through.
type Order struct {
	ID     string
	Price  string
	Amount string
}

// OrderBook is a point-in-time copy of both sides of a book. Asks are sorted
// ascending by price, bids descending, ties in arrival order.
type OrderBook struct {
	Book *MarketSymbol
	Asks []Order
	Bids []Order
}

// OrderBookSnapshot is a full book as returned by the non-streaming API,
// used to (re)initialize the local book.
type OrderBookSnapshot struct {
	Sequence int64
	Asks     []Order
	Bids     []Order
}
