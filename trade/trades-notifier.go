package trade

import (
	"fmt"
	"sync"
	"time"

	"github.com/jpillora/backoff"
	"github.com/spooky-finn/go-bitso-bridge/config"
	"github.com/spooky-finn/go-bitso-bridge/domain"
	"github.com/spooky-finn/go-bitso-bridge/helpers"
	promclient "github.com/spooky-finn/go-bitso-bridge/infrastructure/prometheus"
)

// TradesNotifier polls the non-streaming API for trades newer than the last
// one seen and fans them out to registered listeners.
//
// Each poll cycle pages forward from the last-seen trade id: a full page
// means a burst may have outrun a single page, so the cycle keeps paging
// (with a short delay between pages) until a partial page closes the gap.
// All trades discovered in a cycle are delivered in ascending order before
// the last-seen id advances.
type TradesNotifier struct {
	symbol  *domain.MarketSymbol
	syncAPI domain.SyncAPI
	conf    *config.Config

	listenersMu sync.Mutex
	listeners   []domain.TradeListener

	startMu sync.Mutex
	started bool
	done    chan struct{}

	// lastTradeID is touched only by the polling goroutine after Start.
	lastTradeID string

	initRetry *helpers.Retry
}

func NewTradesNotifier(symbol *domain.MarketSymbol, syncAPI domain.SyncAPI, conf *config.Config) *TradesNotifier {
	return &TradesNotifier{
		symbol:  symbol,
		syncAPI: syncAPI,
		conf:    conf,
		initRetry: &helpers.Retry{
			// A brand new book may simply have no trades yet; back off
			// instead of hammering the endpoint at the poll rate.
			Backoff: &backoff.Backoff{
				Min:    time.Second,
				Max:    conf.PollInterval,
				Factor: 2,
				Jitter: true,
			},
			Message: fmt.Sprintf("fetching newest trade of %s for notifier initialization", symbol),
		},
	}
}

// Start is idempotent. The first successful start fetches the single newest
// trade (retrying for as long as it takes, since without it there is no valid
// marker to poll from), notifies listeners of it, then begins the fixed
// period poll.
func (n *TradesNotifier) Start() {
	n.startMu.Lock()
	defer n.startMu.Unlock()

	if n.started {
		logger.Printf("trades notifier for %s already started", n.symbol)
		return
	}
	n.done = make(chan struct{})
	n.started = true
	go n.run()
}

// Stop halts the polling schedule. Safe to call before Start and safe to call
// twice.
func (n *TradesNotifier) Stop() {
	n.startMu.Lock()
	defer n.startMu.Unlock()

	if !n.started {
		return
	}
	close(n.done)
	n.started = false
}

// Subscribe registers a listener. Registrations are not deduplicated:
// subscribing the same listener twice yields two deliveries per trade.
func (n *TradesNotifier) Subscribe(listener domain.TradeListener) {
	n.listenersMu.Lock()
	defer n.listenersMu.Unlock()
	n.listeners = append(n.listeners, listener)
}

// Unsubscribe removes one registration of the listener.
func (n *TradesNotifier) Unsubscribe(listener domain.TradeListener) {
	n.listenersMu.Lock()
	defer n.listenersMu.Unlock()

	for i, l := range n.listeners {
		if l == listener {
			n.listeners = append(n.listeners[:i], n.listeners[i+1:]...)
			return
		}
	}
}

func (n *TradesNotifier) run() {
	done := n.done

	newest, err := helpers.DoValue(n.initRetry, done, func() (*domain.Trade, error) {
		return n.syncAPI.NewestTrade(n.symbol)
	})
	if err != nil {
		return // stopped before initialization finished
	}
	n.notify([]*domain.Trade{newest})
	n.lastTradeID = newest.TradeID

	ticker := time.NewTicker(n.conf.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			trades := n.findNewTradesAscending(done)
			if len(trades) == 0 {
				continue
			}
			n.notify(trades)
			n.lastTradeID = trades[len(trades)-1].TradeID
		}
	}
}

// findNewTradesAscending pages forward from the committed last-seen id. A
// page as large as requested hints that more trades may exist beyond it, so
// another page is requested after a short delay. Transport errors end the
// cycle early with whatever was collected; the next tick resumes from the
// advanced marker.
func (n *TradesNotifier) findNewTradesAscending(done <-chan struct{}) []*domain.Trade {
	marker := n.lastTradeID
	var found []*domain.Trade

	for {
		page, err := n.syncAPI.Trades(n.symbol, marker, domain.TradesSort_Asc, n.conf.PollPageSize)
		if err != nil {
			logger.Printf("error while polling for new trades of %s: %s", n.symbol, err)
			return found
		}

		if len(page) > 0 {
			found = append(found, page...)
			marker = page[len(page)-1].TradeID
		}
		if len(page) < n.conf.PollPageSize {
			return found
		}

		select {
		case <-done:
			return found
		case <-time.After(n.conf.InterPageDelay):
		}
	}
}

func (n *TradesNotifier) notify(trades []*domain.Trade) {
	n.listenersMu.Lock()
	listeners := make([]domain.TradeListener, len(n.listeners))
	copy(listeners, n.listeners)
	n.listenersMu.Unlock()

	for _, listener := range listeners {
		for _, trade := range trades {
			safeNotification(listener, trade)
		}
	}
	promclient.TradesNotifiedCounter.Add(float64(len(trades)))
}

// safeNotification isolates a failing listener so one bad consumer cannot
// stop trade delivery to the others.
func safeNotification(listener domain.TradeListener, trade *domain.Trade) {
	defer func() {
		if r := recover(); r != nil {
			logger.Printf("(swallowing) panic on listener while notifying of trade %s: %v", trade.TradeID, r)
		}
	}()
	listener.OnNewTrade(trade)
}
