package trades

import "sync"

// History is the append-only ledger of executed trades. It is ordered
// by insertion, not by trade timestamp, so a batch added in one call is
// read back exactly as committed.
type History struct {
	mu     sync.RWMutex
	trades []Trade
}

func NewHistory() *History {
	return &History{trades: make([]Trade, 0, 1024)}
}

// Add commits the trades as a single batch. Readers either observe
// all of them or none.
func (h *History) Add(tl ...Trade) {
	if len(tl) == 0 {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.trades = append(h.trades, tl...)
}

// All returns a copy of every trade in chronological order.
func (h *History) All() []Trade {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return append([]Trade(nil), h.trades...)
}

// Recent returns up to limit of the latest trades, newest first.
func (h *History) Recent(limit int) []Trade {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if limit > len(h.trades) {
		limit = len(h.trades)
	}
	if limit <= 0 {
		return nil
	}

	res := make([]Trade, 0, limit)
	for i := len(h.trades) - 1; i >= len(h.trades)-limit; i-- {
		res = append(res, h.trades[i])
	}
	return res
}

// Len returns the number of committed trades.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.trades)
}
