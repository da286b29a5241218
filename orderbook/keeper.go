package orderbook

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gammazero/deque"
	"github.com/spooky-finn/go-bitso-bridge/config"
	"github.com/spooky-finn/go-bitso-bridge/domain"
	"github.com/spooky-finn/go-bitso-bridge/helpers"
	promclient "github.com/spooky-finn/go-bitso-bridge/infrastructure/prometheus"
)

var logger = log.New(log.Writer(), "[orderbook] ", log.LstdFlags)

const sequenceNotInitialized = -1

// OrderBookKeeper keeps a local order book synchronized against the diff
// stream of one market. It owns both book sides and the current sequence
// number, applies consecutive diffs directly and repairs the book from a
// fresh snapshot whenever a sequence gap shows up.
//
// OnDiff must be called from a single goroutine, which the websocket
// transport guarantees by delivering messages one at a time. Book reads may
// come from any number of goroutines; they block until the book is ready.
type OrderBookKeeper struct {
	symbol  *domain.MarketSymbol
	syncAPI domain.SyncAPI
	conf    *config.Config

	asks            atomic.Pointer[SortedBookOrdersMap]
	bids            atomic.Pointer[SortedBookOrdersMap]
	currentSequence atomic.Int64

	// resetting plus replayMu implement the double-checked enqueue: the
	// common live path reads only the atomic bool and never takes the lock.
	resetting   atomic.Bool
	replayMu    sync.Mutex
	replayQueue deque.Deque[*domain.DiffMessage]

	ready    atomic.Value // chan struct{}, re-created on every reset
	done     chan struct{}
	stopOnce sync.Once

	resetRetry *helpers.Retry
}

// NewOrderBookKeeper immediately schedules the initial snapshot fetch; reads
// block until it completes.
func NewOrderBookKeeper(symbol *domain.MarketSymbol, syncAPI domain.SyncAPI, conf *config.Config) *OrderBookKeeper {
	k := &OrderBookKeeper{
		symbol:  symbol,
		syncAPI: syncAPI,
		conf:    conf,
		done:    make(chan struct{}),
	}
	k.currentSequence.Store(sequenceNotInitialized)
	k.asks.Store(NewSortedBookOrdersMap(Ascending))
	k.bids.Store(NewSortedBookOrdersMap(Descending))
	k.resetRetry = &helpers.Retry{
		// No delay between attempts: the transport client retries with its
		// own backoff, a second wait here would only stretch the outage.
		Message:       fmt.Sprintf("resetting order book %s", symbol),
		EscalateAfter: conf.ResetErrorEscalationTries,
	}

	k.beginReset(nil)
	return k
}

// OnDiff is the single-writer entry point for incoming diff messages.
func (k *OrderBookKeeper) OnDiff(msg *domain.DiffMessage) {
	if k.resetting.Load() {
		k.replayMu.Lock()
		if k.resetting.Load() {
			k.replayQueue.PushBack(msg)
			k.replayMu.Unlock()
			return
		}
		// The reset finished between the two checks; apply normally.
		k.replayMu.Unlock()
	}

	k.evaluateAndApply(msg)
}

func (k *OrderBookKeeper) evaluateAndApply(msg *domain.DiffMessage) {
	current := k.currentSequence.Load()
	switch {
	case msg.Sequence <= current:
		logger.Printf("ignoring repeated diff-orders message, sequence: %d, current sequence is: %d", msg.Sequence, current)

	case msg.Sequence == current+1:
		k.applyDiff(msg)
		k.currentSequence.Add(1)

	default:
		logger.Printf("RESET NEEDED. diff-orders received with a non-consecutive sequence: %d, current sequence was: %d", msg.Sequence, current)
		k.beginReset(msg)
	}
}

// beginReset flips the keeper into the resetting state and schedules the
// reset procedure off the calling goroutine. The diff that exposed the gap is
// queued so the replay can cover it if the new snapshot does not.
func (k *OrderBookKeeper) beginReset(trigger *domain.DiffMessage) {
	ready := make(chan struct{})
	k.ready.Store(ready)

	k.replayMu.Lock()
	k.resetting.Store(true)
	if trigger != nil {
		k.replayQueue.PushBack(trigger)
	}
	k.replayMu.Unlock()

	go k.resetBook(ready)
}

// resetBook fetches a fresh snapshot, installs it and replays the diffs that
// queued up meanwhile. It retries the whole procedure for as long as it takes:
// a book that never becomes ready is preferable to a silently wrong one, and
// readers are bounded by their own wait timeout anyway.
//
// ready is the channel beginReset created for this particular reset. A later
// reset stores a fresh channel, so a slow goroutine must close only the one it
// was handed, never whatever is current.
func (k *OrderBookKeeper) resetBook(ready chan struct{}) {
	err := k.resetRetry.Do(k.done, func() error {
		snapshot, err := k.syncAPI.OrderBookSnapshot(k.symbol)
		if err != nil {
			return err
		}
		if err := k.installSnapshot(snapshot); err != nil {
			return err
		}
		return k.replayQueuedDiffs()
	})
	if err != nil {
		// Only cancellation escapes the retry loop.
		return
	}

	close(ready)
	promclient.OrderBookResetsCounter.Inc()
	logger.Printf("order book reset completed, sequence: %d, asks: %d, bids: %d",
		k.currentSequence.Load(), k.asks.Load().Size(), k.bids.Load().Size())
}

func (k *OrderBookKeeper) installSnapshot(snapshot *domain.OrderBookSnapshot) error {
	asks := NewSortedBookOrdersMap(Ascending)
	bids := NewSortedBookOrdersMap(Descending)

	for _, order := range snapshot.Asks {
		if err := asks.Put(order); err != nil {
			return fmt.Errorf("bad ask in snapshot: %w", err)
		}
	}
	for _, order := range snapshot.Bids {
		if err := bids.Put(order); err != nil {
			return fmt.Errorf("bad bid in snapshot: %w", err)
		}
	}

	k.asks.Store(asks)
	k.bids.Store(bids)
	k.currentSequence.Store(snapshot.Sequence)
	return nil
}

// replayQueuedDiffs drains the replay queue against the freshly installed
// snapshot. Messages already covered by the snapshot are skipped; the rest
// must be strictly contiguous, otherwise this reset attempt failed and the
// whole procedure runs again (the offending message stays queued).
func (k *OrderBookKeeper) replayQueuedDiffs() error {
	k.replayMu.Lock()
	defer k.replayMu.Unlock()

	for k.replayQueue.Len() > 0 {
		msg := k.replayQueue.PopFront()
		current := k.currentSequence.Load()

		if msg.Sequence <= current {
			continue
		}
		if msg.Sequence == current+1 {
			k.applyDiff(msg)
			k.currentSequence.Add(1)
			continue
		}

		k.replayQueue.PushFront(msg)
		return fmt.Errorf("sequence lost while replaying: message sequence %d, current sequence %d", msg.Sequence, current)
	}

	k.resetting.Store(false)
	return nil
}

func (k *OrderBookKeeper) applyDiff(msg *domain.DiffMessage) {
	for _, entry := range msg.Entries {
		var side *SortedBookOrdersMap
		switch entry.Side {
		case domain.OrderSide_Sell:
			side = k.asks.Load()
		case domain.OrderSide_Buy:
			side = k.bids.Load()
		default:
			logger.Printf("unexpected order side %q in diff entry, skipping", entry.Side)
			continue
		}

		if entry.Amount == "" || entry.Amount == "0" {
			if _, ok := side.Remove(entry.ID); !ok {
				logger.Printf("order %s was not in the book, ignoring removal", entry.ID)
			}
			continue
		}

		if err := side.Put(domain.Order{ID: entry.ID, Price: entry.Price, Amount: entry.Amount}); err != nil {
			logger.Printf("skipping unusable diff entry for order %s: %s", entry.ID, err)
		}
	}
}

// GetOrderBook returns a consistent copy of both sides, blocking until the
// book is ready or the configured timeout elapses.
func (k *OrderBookKeeper) GetOrderBook() (*domain.OrderBook, error) {
	if err := k.waitBookReady(); err != nil {
		return nil, err
	}
	return &domain.OrderBook{
		Book: k.symbol,
		Asks: k.asks.Load().Snapshot(),
		Bids: k.bids.Load().Snapshot(),
	}, nil
}

// GetAsks returns up to n best asks, lowest price first.
func (k *OrderBookKeeper) GetAsks(n int) ([]domain.Order, error) {
	if err := k.waitBookReady(); err != nil {
		return nil, err
	}
	return k.asks.Load().BestN(n), nil
}

// GetBids returns up to n best bids, highest price first.
func (k *OrderBookKeeper) GetBids(n int) ([]domain.Order, error) {
	if err := k.waitBookReady(); err != nil {
		return nil, err
	}
	return k.bids.Load().BestN(n), nil
}

func (k *OrderBookKeeper) CurrentSequence() int64 {
	return k.currentSequence.Load()
}

// Resetting reports whether the keeper is currently rebuilding the book.
func (k *OrderBookKeeper) Resetting() bool {
	return k.resetting.Load()
}

// Stop cancels an in-flight reset. Safe to call twice.
func (k *OrderBookKeeper) Stop() {
	k.stopOnce.Do(func() {
		close(k.done)
	})
}

func (k *OrderBookKeeper) waitBookReady() error {
	ready := k.ready.Load().(chan struct{})
	select {
	case <-ready:
		return nil
	case <-time.After(k.conf.OrderBookReadyTimeout):
		return domain.ErrBookNotReady
	}
}
