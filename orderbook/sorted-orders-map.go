package orderbook

import (
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/spooky-finn/go-bitso-bridge/domain"
)

type SortOrdering int

const (
	// Ascending is the ask side ordering (best ask first).
	Ascending SortOrdering = iota
	// Descending is the bid side ordering (best bid first).
	Descending
)

type bookEntry struct {
	order domain.Order
	price decimal.Decimal
}

// SortedBookOrdersMap holds the live orders of one book side, keyed by order
// id and sorted by price. Orders with equal prices keep their arrival order,
// reproducing the level ordering observable on the exchange.
//
// A single writer (the diff consumer) mutates the map while any number of
// readers take snapshots concurrently; the mutex is held only for the
// mutation or the copy itself, and readers always receive owned copies.
type SortedBookOrdersMap struct {
	ordering SortOrdering

	mu      sync.Mutex
	entries []*bookEntry
	byID    map[string]*bookEntry
}

func NewSortedBookOrdersMap(ordering SortOrdering) *SortedBookOrdersMap {
	return &SortedBookOrdersMap{
		ordering: ordering,
		byID:     make(map[string]*bookEntry),
	}
}

// Put inserts the order or replaces the existing order with the same id.
// When only the amount changed, the order keeps its slot; when the price
// changed, the order moves to the new price slot in one step with respect to
// readers.
func (m *SortedBookOrdersMap) Put(order domain.Order) error {
	price, err := decimal.NewFromString(order.Price)
	if err != nil {
		return fmt.Errorf("unparsable order price %q: %w", order.Price, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.byID[order.ID]; ok {
		if existing.price.Equal(price) {
			existing.order.Amount = order.Amount
			return nil
		}
		m.removeEntry(existing)
	}
	m.insertEntry(&bookEntry{order: order, price: price})
	return nil
}

// Get returns a copy of the order with the given id.
func (m *SortedBookOrdersMap) Get(id string) (domain.Order, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.byID[id]
	if !ok {
		return domain.Order{}, false
	}
	return entry.order, true
}

// Remove deletes the order with the given id and returns its prior value.
// Removing an unknown id is a no-op, not an error.
func (m *SortedBookOrdersMap) Remove(id string) (domain.Order, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.byID[id]
	if !ok {
		return domain.Order{}, false
	}
	m.removeEntry(entry)
	return entry.order, true
}

// Snapshot returns an owned, stably sorted copy of all orders.
func (m *SortedBookOrdersMap) Snapshot() []domain.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.copyBest(len(m.entries))
}

// BestN returns an owned copy of the first n orders in sort order. Asking for
// more orders than the side holds returns all of them without error.
func (m *SortedBookOrdersMap) BestN(n int) []domain.Order {
	m.mu.Lock()
	defer m.mu.Unlock()

	if n > len(m.entries) {
		n = len(m.entries)
	}
	if n < 0 {
		n = 0
	}
	return m.copyBest(n)
}

func (m *SortedBookOrdersMap) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *SortedBookOrdersMap) copyBest(n int) []domain.Order {
	orders := make([]domain.Order, n)
	for i := 0; i < n; i++ {
		orders[i] = m.entries[i].order
	}
	return orders
}

// insertEntry places the entry after every existing entry with the same or a
// better price, so equal prices stay in arrival order.
func (m *SortedBookOrdersMap) insertEntry(entry *bookEntry) {
	idx := sort.Search(len(m.entries), func(i int) bool {
		return m.cmp(m.entries[i].price, entry.price) > 0
	})

	m.entries = append(m.entries, nil)
	copy(m.entries[idx+1:], m.entries[idx:])
	m.entries[idx] = entry
	m.byID[entry.order.ID] = entry
}

func (m *SortedBookOrdersMap) removeEntry(entry *bookEntry) {
	// Binary search narrows to the equal-price run, the run is scanned for
	// the exact entry.
	idx := sort.Search(len(m.entries), func(i int) bool {
		return m.cmp(m.entries[i].price, entry.price) >= 0
	})
	for ; idx < len(m.entries); idx++ {
		if m.entries[idx] == entry {
			m.entries = append(m.entries[:idx], m.entries[idx+1:]...)
			break
		}
	}
	delete(m.byID, entry.order.ID)
}

func (m *SortedBookOrdersMap) cmp(a, b decimal.Decimal) int {
	if m.ordering == Descending {
		return b.Cmp(a)
	}
	return a.Cmp(b)
}
