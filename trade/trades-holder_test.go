package trade

import (
	"sync"
	"testing"
	"time"

	"github.com/spooky-finn/go-bitso-bridge/config"
	"github.com/spooky-finn/go-bitso-bridge/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func holderTestConfig() *config.Config {
	conf := config.Default()
	conf.TradeBufferMaxTrades = 10
	conf.TradeBufferCheckPeriod = time.Hour
	conf.BackfillLockWait = 50 * time.Millisecond
	conf.PollInterval = time.Hour // the notifier stays quiet in these tests
	conf.PollPageSize = 1
	conf.InterPageDelay = time.Millisecond
	return conf
}

func holderTestSymbol(t *testing.T) *domain.MarketSymbol {
	t.Helper()
	symbol, err := domain.NewMarketSymbol("btc", "mxn")
	require.NoError(t, err)
	return symbol
}

func tradeIDs(trades []*domain.Trade) []string {
	ids := make([]string, len(trades))
	for i, trade := range trades {
		ids[i] = trade.TradeID
	}
	return ids
}

func TestHolder_ServedFromBufferWithoutRemoteCalls(t *testing.T) {
	api := newFakeTradesAPI("1", "2", "3")
	holder := NewTradesHolder(holderTestSymbol(t), api, holderTestConfig())
	defer holder.Stop()

	holder.OnNewTrade(&domain.Trade{TradeID: "2"})
	holder.OnNewTrade(&domain.Trade{TradeID: "3"})

	trades, err := holder.GetLastTrades(2)
	require.NoError(t, err)
	assert.Equal(t, []string{"3", "2"}, tradeIDs(trades))
	assert.EqualValues(t, 0, api.tradesCalls.Load())
}

func TestHolder_BackfillsMissingHistory(t *testing.T) {
	api := newFakeTradesAPI("1", "2", "3", "4")
	holder := NewTradesHolder(holderTestSymbol(t), api, holderTestConfig())
	defer holder.Stop()

	holder.OnNewTrade(&domain.Trade{TradeID: "4"})

	trades, err := holder.GetLastTrades(3)
	require.NoError(t, err)
	assert.Equal(t, []string{"4", "3", "2"}, tradeIDs(trades))

	// Page size 1 means exactly one remote call per missing trade.
	assert.EqualValues(t, 2, api.tradesCalls.Load())
}

func TestHolder_FirstBackfillPageIsNotDelayed(t *testing.T) {
	api := newFakeTradesAPI("1", "2", "3", "4")
	conf := holderTestConfig()
	conf.PollPageSize = 5
	conf.InterPageDelay = 300 * time.Millisecond
	holder := NewTradesHolder(holderTestSymbol(t), api, conf)
	defer holder.Stop()

	holder.OnNewTrade(&domain.Trade{TradeID: "4"})

	start := time.Now()
	trades, err := holder.GetLastTrades(3)
	require.NoError(t, err)

	assert.Equal(t, []string{"4", "3", "2"}, tradeIDs(trades))
	assert.Less(t, time.Since(start), 200*time.Millisecond,
		"a backfill satisfied by one page must not wait the inter-page delay")
}

func TestHolder_BackfillEndsShortWhenHistoryExhausted(t *testing.T) {
	api := newFakeTradesAPI("1", "2")
	holder := NewTradesHolder(holderTestSymbol(t), api, holderTestConfig())
	defer holder.Stop()

	holder.OnNewTrade(&domain.Trade{TradeID: "2"})

	trades, err := holder.GetLastTrades(5)
	require.NoError(t, err)
	assert.Equal(t, []string{"2", "1"}, tradeIDs(trades), "fewer trades than asked is not an error")
}

func TestHolder_EmptyBufferHasNoBackfillAnchor(t *testing.T) {
	api := newFakeTradesAPI("1", "2")
	holder := NewTradesHolder(holderTestSymbol(t), api, holderTestConfig())
	defer holder.Stop()

	trades, err := holder.GetLastTrades(2)
	require.NoError(t, err)
	assert.Empty(t, trades)
	assert.EqualValues(t, 0, api.tradesCalls.Load())
}

func TestHolder_RejectsRequestsBeyondCapacity(t *testing.T) {
	api := newFakeTradesAPI("1")
	conf := holderTestConfig()
	holder := NewTradesHolder(holderTestSymbol(t), api, conf)
	defer holder.Stop()

	_, err := holder.GetLastTrades(conf.TradeBufferMaxTrades + 1)
	assert.ErrorIs(t, err, domain.ErrTooManyTrades)
	assert.EqualValues(t, 0, api.tradesCalls.Load())
}

func TestHolder_ConcurrentRequestsShareOneBackfill(t *testing.T) {
	api := newFakeTradesAPI("1", "2", "3", "4")
	holder := NewTradesHolder(holderTestSymbol(t), api, holderTestConfig())
	defer holder.Stop()

	holder.OnNewTrade(&domain.Trade{TradeID: "4"})

	var wg sync.WaitGroup
	results := make([][]string, 2)
	wants := []int{3, 2}
	for i := range wants {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			trades, err := holder.GetLastTrades(wants[i])
			assert.NoError(t, err)
			results[i] = tradeIDs(trades)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, []string{"4", "3", "2"}, results[0])
	assert.Equal(t, []string{"4", "3"}, results[1])

	// The larger request needed two pages; the smaller one is satisfied by
	// them, whichever caller held the backfill lock first.
	assert.EqualValues(t, 2, api.tradesCalls.Load())
}

func TestHolder_StartIsIdempotent(t *testing.T) {
	api := newFakeTradesAPI("1")
	holder := NewTradesHolder(holderTestSymbol(t), api, holderTestConfig())
	defer holder.Stop()

	holder.Start()
	holder.Start()

	// The holder listens to its own notifier; the initial newest trade must
	// land in the buffer exactly once per delivery.
	require.Eventually(t, func() bool { return holder.buffer.Len() == 1 }, time.Second, 5*time.Millisecond)

	trades, err := holder.GetLastTrades(1)
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, tradeIDs(trades))
}

func TestHolder_StopWithoutStart(t *testing.T) {
	api := newFakeTradesAPI("1")
	holder := NewTradesHolder(holderTestSymbol(t), api, holderTestConfig())

	holder.Stop()
	holder.Stop()
}
