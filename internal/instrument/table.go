package instrument

import (
	"sort"
	"sync"

	exchange "futures-bridge/pkg/exchanges/common"
)

// Table holds contracts keyed by order book id. Repeated pushes overwrite.
type Table struct {
	mu        sync.RWMutex
	contracts map[string]exchange.Contract
}

func NewTable() *Table {
	return &Table{contracts: make(map[string]exchange.Contract)}
}

// Upsert stores the contract under its translated id and returns that id.
func (t *Table) Upsert(c exchange.Contract) (string, error) {
	id, err := OrderBookID(c.Symbol)
	if err != nil {
		return "", err
	}
	t.mu.Lock()
	t.contracts[id] = c
	t.mu.Unlock()
	return id, nil
}

// Get returns the contract for an order book id.
func (t *Table) Get(orderBookID string) (exchange.Contract, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.contracts[orderBookID]
	return c, ok
}

// Len returns the number of known contracts.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.contracts)
}

// IDs returns the known order book ids, sorted.
func (t *Table) IDs() []string {
	t.mu.RLock()
	ids := make([]string, 0, len(t.contracts))
	for id := range t.contracts {
		ids = append(ids, id)
	}
	t.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Snapshot returns a copy of the table.
func (t *Table) Snapshot() map[string]exchange.Contract {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]exchange.Contract, len(t.contracts))
	for id, c := range t.contracts {
		out[id] = c
	}
	return out
}
