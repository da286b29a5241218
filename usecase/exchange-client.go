package usecase

import (
	"log"
	"sync"

	"github.com/spooky-finn/go-bitso-bridge/config"
	"github.com/spooky-finn/go-bitso-bridge/domain"
	"github.com/spooky-finn/go-bitso-bridge/orderbook"
	"github.com/spooky-finn/go-bitso-bridge/trade"
)

var logger = log.New(log.Writer(), "[exchange-client] ", log.LstdFlags)

// ExchangeClient is the outward surface of the bridge for one market: a
// synchronized order book plus the recent trade history, both readable from
// any number of goroutines.
type ExchangeClient struct {
	symbol *domain.MarketSymbol
	keeper *orderbook.OrderBookKeeper
	trades *trade.TradesHolder

	diffSub  *domain.Subscription[*domain.DiffMessage]
	stopOnce sync.Once
}

// NewExchangeClient immediately starts the order book synchronization and the
// trades polling. Book reads block until the first snapshot is installed.
func NewExchangeClient(symbol *domain.MarketSymbol, syncAPI domain.SyncAPI, streamAPI domain.StreamAPI, conf *config.Config) (*ExchangeClient, error) {
	keeper := orderbook.NewOrderBookKeeper(symbol, syncAPI, conf)

	diffSub, err := streamAPI.DiffOrdersStream(symbol)
	if err != nil {
		keeper.Stop()
		return nil, err
	}

	// The transport delivers diff messages one at a time, so this pump is
	// the keeper's single writer.
	go func() {
		for msg := range diffSub.Stream {
			keeper.OnDiff(msg)
		}
	}()

	trades := trade.NewTradesHolder(symbol, syncAPI, conf)
	trades.Start()

	logger.Printf("exchange client for %s started", symbol)
	return &ExchangeClient{
		symbol:  symbol,
		keeper:  keeper,
		trades:  trades,
		diffSub: diffSub,
	}, nil
}

// GetOrderBook returns a copy of the whole synchronized book.
func (c *ExchangeClient) GetOrderBook() (*domain.OrderBook, error) {
	return c.keeper.GetOrderBook()
}

// GetAsks returns up to n best asks, lowest price first.
func (c *ExchangeClient) GetAsks(n int) ([]domain.Order, error) {
	return c.keeper.GetAsks(n)
}

// GetBids returns up to n best bids, highest price first.
func (c *ExchangeClient) GetBids(n int) ([]domain.Order, error) {
	return c.keeper.GetBids(n)
}

// GetLastTrades returns up to n trades, the most recent first.
func (c *ExchangeClient) GetLastTrades(n int) ([]*domain.Trade, error) {
	return c.trades.GetLastTrades(n)
}

// Subscribe registers a listener for newly discovered trades, delivered in
// the order they happened.
func (c *ExchangeClient) Subscribe(listener domain.TradeListener) {
	c.trades.Subscribe(listener)
}

func (c *ExchangeClient) Unsubscribe(listener domain.TradeListener) {
	c.trades.Unsubscribe(listener)
}

// Stop halts synchronization and polling. Safe to call twice.
func (c *ExchangeClient) Stop() {
	c.stopOnce.Do(func() {
		c.diffSub.Unsubscribe()
		c.keeper.Stop()
		c.trades.Stop()
		logger.Printf("exchange client for %s stopped", c.symbol)
	})
}
