package trade

import (
	"fmt"
	"sync"
	"time"

	"github.com/spooky-finn/go-bitso-bridge/config"
	"github.com/spooky-finn/go-bitso-bridge/domain"
	"github.com/spooky-finn/go-bitso-bridge/helpers"
	promclient "github.com/spooky-finn/go-bitso-bridge/infrastructure/prometheus"
)

// TradesHolder serves recent trade history from an in-memory buffer. Live
// trades flow in through the notifier; when a caller wants more history than
// the buffer holds, the missing part is backfilled from the remote API.
//
// Backfills are serialized through a single lock so that concurrent callers
// asking for large windows do not each hammer the remote API. A caller that
// cannot get the lock within the configured wait re-checks the buffer instead
// of queuing indefinitely, since another caller's in-flight backfill may already
// have grown it far enough.
type TradesHolder struct {
	symbol  *domain.MarketSymbol
	syncAPI domain.SyncAPI
	conf    *config.Config

	notifier *TradesNotifier
	buffer   *SoftLimitedBuffer[*domain.Trade]

	// backfillSem is a one-slot semaphore: a full slot means a backfill is
	// in flight. Unlike a mutex it supports a bounded acquisition wait.
	backfillSem chan struct{}

	startMu  sync.Mutex
	started  bool
	done     chan struct{}
	stopOnce sync.Once

	pageRetry *helpers.Retry
}

func NewTradesHolder(symbol *domain.MarketSymbol, syncAPI domain.SyncAPI, conf *config.Config) *TradesHolder {
	return &TradesHolder{
		symbol:      symbol,
		syncAPI:     syncAPI,
		conf:        conf,
		notifier:    NewTradesNotifier(symbol, syncAPI, conf),
		buffer:      NewSoftLimitedBuffer[*domain.Trade](conf.TradeBufferMaxTrades, conf.TradeBufferCheckPeriod),
		backfillSem: make(chan struct{}, 1),
		done:        make(chan struct{}),
		pageRetry: &helpers.Retry{
			Delay:   conf.InterPageDelay,
			Message: fmt.Sprintf("fetching older trades page of %s", symbol),
		},
	}
}

// Start is idempotent; it registers the holder as the first trade listener
// and starts the polling notifier.
func (h *TradesHolder) Start() {
	h.startMu.Lock()
	defer h.startMu.Unlock()

	if h.started {
		logger.Printf("trades holder for %s already started", h.symbol)
		return
	}
	h.notifier.Subscribe(h)
	h.notifier.Start()
	h.started = true
}

// Stop halts the notifier and the buffer compactor. Safe to call twice and
// safe to call without a prior Start.
func (h *TradesHolder) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
	})
	h.notifier.Stop()
	h.buffer.Stop()
}

// OnNewTrade feeds the buffer from the notifier.
func (h *TradesHolder) OnNewTrade(trade *domain.Trade) {
	h.buffer.PushNewest(trade)
	promclient.TradeBufferSizeGauge.Set(float64(h.buffer.Len()))
}

func (h *TradesHolder) Subscribe(listener domain.TradeListener) {
	h.notifier.Subscribe(listener)
}

func (h *TradesHolder) Unsubscribe(listener domain.TradeListener) {
	h.notifier.Unsubscribe(listener)
}

// GetLastTrades returns up to n trades ordered from the most recent to the
// oldest. Most calls are served straight from memory; only a request
// exceeding the cached history triggers a remote backfill. Asking for more
// than the buffer capacity fails immediately with ErrTooManyTrades.
func (h *TradesHolder) GetLastTrades(n int) ([]*domain.Trade, error) {
	if n > h.conf.TradeBufferMaxTrades {
		return nil, fmt.Errorf("%w: requested %d, capacity %d (the capacity can simply be increased by configuration)",
			domain.ErrTooManyTrades, n, h.conf.TradeBufferMaxTrades)
	}

	lastTrades := h.buffer.PeekNewestN(n)
	if len(lastTrades) >= n {
		return lastTrades, nil
	}
	return h.getLastTradesGrowingBuffer(n)
}

func (h *TradesHolder) getLastTradesGrowingBuffer(required int) ([]*domain.Trade, error) {
	for {
		select {
		case h.backfillSem <- struct{}{}:
			err := h.retrieveOlderTradesIntoBuffer(required)
			<-h.backfillSem
			if err != nil {
				return nil, err
			}
			return h.buffer.PeekNewestN(required), nil

		case <-time.After(h.conf.BackfillLockWait):
			// Another caller holds the backfill lock; its retrieval may
			// already have grown the buffer enough for this caller.
			lastTrades := h.buffer.PeekNewestN(required)
			if len(lastTrades) >= required {
				return lastTrades, nil
			}

		case <-h.done:
			return h.buffer.PeekNewestN(required), nil
		}
	}
}

// retrieveOlderTradesIntoBuffer pages backward from the oldest buffered trade
// until the buffer can satisfy the request, the exchange history is
// exhausted, or the buffer stops accepting growth.
func (h *TradesHolder) retrieveOlderTradesIntoBuffer(required int) error {
	// Re-check under the lock: the backfill that blocked us may have
	// already retrieved everything this caller needs.
	missing := required - h.buffer.Len()
	if missing <= 0 {
		return nil
	}

	oldest, ok := h.buffer.PeekOldest()
	if !ok {
		// Nothing to anchor the backward paging on yet; the notifier has
		// not delivered the first trade. The caller gets what is there.
		return nil
	}
	oldestID := oldest.TradeID
	totalAdded := 0

	for {
		page, err := helpers.DoValue(h.pageRetry, h.done, func() ([]*domain.Trade, error) {
			return h.syncAPI.Trades(h.symbol, oldestID, domain.TradesSort_Desc, h.conf.PollPageSize)
		})
		if err != nil {
			return nil // stopped while retrying
		}
		if len(page) == 0 {
			logger.Printf("exchange has no trades older than %s, backfill for %s ends short", oldestID, h.symbol)
			return nil
		}

		if !h.buffer.PushOldestBatch(page) {
			return nil
		}
		totalAdded += len(page)
		oldestID = page[len(page)-1].TradeID
		if totalAdded >= missing {
			return nil
		}

		// The delay applies between pages only; the first page goes out
		// immediately.
		select {
		case <-h.done:
			return nil
		case <-time.After(h.conf.InterPageDelay):
		}
	}
}
