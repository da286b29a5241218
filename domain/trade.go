package domain

import "time"

// Trade is immutable once created. TradeID is assigned by the exchange and
// grows monotonically, so it doubles as a paging marker.
type Trade struct {
	TradeID   string
	CreatedAt time.Time
	Amount    string
	Side      OrderSide
	Price     string
}

// TradeListener is notified of every newly discovered trade, in the order the
// trades happened on the exchange.
type TradeListener interface {
	OnNewTrade(trade *Trade)
}

type TradesSort string

const (
	TradesSort_Asc  TradesSort = "asc"
	TradesSort_Desc TradesSort = "desc"
)
