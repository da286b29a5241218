package orderbook

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/spooky-finn/go-bitso-bridge/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustGet(t *testing.T, m *SortedBookOrdersMap, id string) domain.Order {
	t.Helper()
	order, ok := m.Get(id)
	require.True(t, ok, "order with id %q should be present", id)
	return order
}

func prices(orders []domain.Order) []string {
	result := make([]string, len(orders))
	for i, o := range orders {
		result[i] = o.Price
	}
	return result
}

func TestPut_DuplicateIdSubstitutesExistingOrder(t *testing.T) {
	m := NewSortedBookOrdersMap(Ascending)

	require.NoError(t, m.Put(domain.Order{ID: "id", Price: "100", Amount: "1"}))
	assert.Equal(t, 1, m.Size())
	assert.Equal(t, "100", mustGet(t, m, "id").Price)
	assert.Equal(t, "1", mustGet(t, m, "id").Amount)

	require.NoError(t, m.Put(domain.Order{ID: "id", Price: "100", Amount: "1"}))
	assert.Equal(t, 1, m.Size())

	require.NoError(t, m.Put(domain.Order{ID: "id", Price: "120", Amount: "1"}))
	assert.Equal(t, 1, m.Size())
	assert.Equal(t, "120", mustGet(t, m, "id").Price)

	require.NoError(t, m.Put(domain.Order{ID: "id", Price: "100", Amount: "10"}))
	assert.Equal(t, 1, m.Size())
	assert.Equal(t, "100", mustGet(t, m, "id").Price)
	assert.Equal(t, "10", mustGet(t, m, "id").Amount)
}

func TestPut_DifferentIdSamePriceAreDifferentOrders(t *testing.T) {
	m := NewSortedBookOrdersMap(Ascending)

	require.NoError(t, m.Put(domain.Order{ID: "id", Price: "100", Amount: "1"}))
	require.NoError(t, m.Put(domain.Order{ID: "newid", Price: "100", Amount: "2"}))
	assert.Equal(t, 2, m.Size())

	// Equal prices stay in arrival order.
	snapshot := m.Snapshot()
	assert.Equal(t, "id", snapshot[0].ID)
	assert.Equal(t, "newid", snapshot[1].ID)
}

func TestPut_UnparsablePrice(t *testing.T) {
	m := NewSortedBookOrdersMap(Ascending)

	err := m.Put(domain.Order{ID: "id", Price: "not-a-price", Amount: "1"})
	assert.Error(t, err)
	assert.Equal(t, 0, m.Size())
}

func TestOrdering(t *testing.T) {
	tests := []struct {
		name     string
		ordering SortOrdering
		expected []string
	}{
		{"Ascending", Ascending, []string{"99", "100.5", "101", "102"}},
		{"Descending", Descending, []string{"102", "101", "100.5", "99"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewSortedBookOrdersMap(tt.ordering)
			for i, price := range []string{"101", "99", "102", "100.5"} {
				require.NoError(t, m.Put(domain.Order{ID: fmt.Sprintf("id-%d", i), Price: price, Amount: "1"}))
			}

			assert.Equal(t, tt.expected, prices(m.Snapshot()))
		})
	}
}

func TestBestN_IsPrefixOfSnapshot(t *testing.T) {
	m := NewSortedBookOrdersMap(Ascending)
	for i := 0; i < 10; i++ {
		require.NoError(t, m.Put(domain.Order{ID: fmt.Sprintf("id-%d", i), Price: fmt.Sprintf("%d", 100+i), Amount: "1"}))
	}

	all := m.Snapshot()
	for n := 0; n <= 10; n++ {
		assert.Equal(t, all[:n], m.BestN(n))
	}

	// Asking for more than available returns everything without error.
	assert.Equal(t, all, m.BestN(100))
}

func TestRemove(t *testing.T) {
	m := NewSortedBookOrdersMap(Ascending)
	require.NoError(t, m.Put(domain.Order{ID: "id", Price: "100", Amount: "1"}))

	removed, ok := m.Remove("id")
	assert.True(t, ok)
	assert.Equal(t, "100", removed.Price)
	assert.Equal(t, 0, m.Size())

	// Removing an unknown id is a no-op, not an error.
	_, ok = m.Remove("missing")
	assert.False(t, ok)
}

func TestSnapshot_ConcurrentReadersSeeConsistentCopies(t *testing.T) {
	const (
		readers          = 50
		writerIterations = 100
	)

	m := NewSortedBookOrdersMap(Ascending)
	writerFinished := make(chan struct{})

	var wg sync.WaitGroup
	for r := 0; r < readers; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				orders := m.Snapshot()
				assertSequentialOrders(t, orders)
				assertSequentialOrders(t, m.BestN(len(orders)))

				select {
				case <-writerFinished:
					final := m.Snapshot()
					assert.Len(t, final, writerIterations)
					assertSequentialOrders(t, final)
					return
				default:
					time.Sleep(time.Millisecond)
				}
			}
		}()
	}

	for i := 0; i < writerIterations; i++ {
		require.NoError(t, m.Put(domain.Order{ID: fmt.Sprintf("id-%d", i), Price: fmt.Sprintf("%d", i), Amount: "1"}))
	}
	close(writerFinished)
	wg.Wait()
}

// assertSequentialOrders checks that the writer's orders show up without
// holes: order i always has id "id-i" and price "i".
func assertSequentialOrders(t *testing.T, orders []domain.Order) {
	for i, order := range orders {
		if order.ID != fmt.Sprintf("id-%d", i) || order.Price != fmt.Sprintf("%d", i) {
			t.Errorf("inconsistent snapshot at index %d: %+v", i, order)
			return
		}
	}
}
