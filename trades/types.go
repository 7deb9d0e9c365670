package trades

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade is a single fill between a resting (maker) order and an
// incoming (taker) order. Trades are immutable once created.
type Trade struct {
	Seq          int64 // Sequence of the engine placement producing this trade.
	SeqIdx       int   // Index of this trade in the sequence's set of trades.
	MakerOrderID uint64
	TakerOrderID uint64
	Price        decimal.Decimal // Always the maker's price.
	Quantity     decimal.Decimal
	IsBuy        bool // Taker (aggressor) side.
	CreatedAt    time.Time
}

// Side returns the aggressor side as "bid" or "ask".
func (t Trade) Side() string {
	if t.IsBuy {
		return "bid"
	}
	return "ask"
}
