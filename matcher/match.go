package matcher

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/corverroos/matchbook/trades"
)

// match applies the order to the book and returns the match type
// and any trades. The order is updated in place.
func match(book *OrderBook, o *Order, seq int64, now time.Time) (Type, []trades.Trade) {
	tl := trade(book, o, wantFor(o), seq, now)
	o.Status = fillStatus(o)

	if o.Type == OrderMarket {
		// Market orders never rest.
		book.record(*o)

		if o.IsFilled() {
			return TypeMarketFull, tl
		} else if len(tl) == 0 {
			return TypeMarketEmpty, tl
		}
		return TypeMarketPartial, tl
	}

	if o.IsFilled() {
		book.record(*o)
		return TypeLimitTaker, tl
	}

	book.Place(*o)
	if len(tl) == 0 {
		return TypeLimitMaker, tl
	}
	return TypeLimitPartial, tl
}

// trade walks the opposite side of the book from the best price while the
// order wants it, filling resting orders in time priority. It returns
// the trades in execution order.
func trade(book *OrderBook, o *Order, w want, seq int64, now time.Time) []trades.Trade {
	var tl []trades.Trade

	for o.Remaining.Sign() > 0 {
		lvl, ok := book.bestLevel(o.Side.Opposite())
		if !ok || !w.Crosses(lvl.price) {
			break
		}

		for len(lvl.orders) > 0 && o.Remaining.Sign() > 0 {
			maker := lvl.orders[0]
			qty := decimal.Min(o.Remaining, maker.Remaining)

			o.Remaining = o.Remaining.Sub(qty)
			maker.Remaining = maker.Remaining.Sub(qty)

			tl = append(tl, trades.Trade{
				Seq:          seq,
				SeqIdx:       len(tl),
				MakerOrderID: maker.ID,
				TakerOrderID: o.ID,
				Price:        maker.Price,
				Quantity:     qty,
				IsBuy:        o.Side == SideBid,
				CreatedAt:    now,
			})

			maker.Status = fillStatus(maker)
			if maker.IsFilled() {
				book.popFront(lvl)
			}
		}

		book.pruneIfEmpty(o.Side.Opposite(), lvl)
	}

	return tl
}
