package trade

import (
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spooky-finn/go-bitso-bridge/domain"
)

// fakeTradesAPI serves trade pages from an in-memory ascending history,
// honoring the marker and sort semantics of the real endpoint. Appending to
// the history mid-test simulates new trades happening on the exchange.
type fakeTradesAPI struct {
	mu      sync.Mutex
	history []*domain.Trade // ascending, oldest first

	tradesCalls atomic.Int64
}

func newFakeTradesAPI(ids ...string) *fakeTradesAPI {
	f := &fakeTradesAPI{}
	f.append(ids...)
	return f
}

func (f *fakeTradesAPI) append(ids ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		f.history = append(f.history, &domain.Trade{
			TradeID:   id,
			CreatedAt: time.Now(),
			Amount:    "1",
			Side:      domain.OrderSide_Buy,
			Price:     strconv.Itoa(len(f.history) + 100),
		})
	}
}

func (f *fakeTradesAPI) OrderBookSnapshot(symbol *domain.MarketSymbol) (*domain.OrderBookSnapshot, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeTradesAPI) Trades(symbol *domain.MarketSymbol, markerID string, sort domain.TradesSort, limit int) ([]*domain.Trade, error) {
	f.tradesCalls.Add(1)

	f.mu.Lock()
	defer f.mu.Unlock()

	idx := f.indexOf(markerID)
	var page []*domain.Trade

	if sort == domain.TradesSort_Asc {
		for i := idx + 1; i < len(f.history) && len(page) < limit; i++ {
			page = append(page, f.history[i])
		}
		return page, nil
	}

	start := idx - 1
	if markerID == "" {
		start = len(f.history) - 1
	}
	for i := start; i >= 0 && len(page) < limit; i-- {
		page = append(page, f.history[i])
	}
	return page, nil
}

func (f *fakeTradesAPI) NewestTrade(symbol *domain.MarketSymbol) (*domain.Trade, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.history) == 0 {
		return nil, errors.New("no trades yet")
	}
	return f.history[len(f.history)-1], nil
}

func (f *fakeTradesAPI) indexOf(id string) int {
	for i, trade := range f.history {
		if trade.TradeID == id {
			return i
		}
	}
	return -1
}

// recordingListener collects every delivered trade id in arrival order.
type recordingListener struct {
	mu  sync.Mutex
	ids []string
}

func (l *recordingListener) OnNewTrade(trade *domain.Trade) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ids = append(l.ids, trade.TradeID)
}

func (l *recordingListener) received() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	ids := make([]string, len(l.ids))
	copy(ids, l.ids)
	return ids
}

// panickyListener blows up on every delivery.
type panickyListener struct{}

func (panickyListener) OnNewTrade(*domain.Trade) {
	panic("listener is broken")
}
