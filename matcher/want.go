package matcher

import (
	"github.com/shopspring/decimal"
)

// want encapsulates whether an incoming order accepts a resting price.
type want interface {
	// Crosses returns true if the order would trade at the opposite price.
	Crosses(price decimal.Decimal) bool
}

// wantMarket accepts any price.
type wantMarket struct{}

func (wantMarket) Crosses(decimal.Decimal) bool {
	return true
}

// wantLimit accepts prices at or better than its limit.
type wantLimit struct {
	price decimal.Decimal
	isBid bool
}

func (w wantLimit) Crosses(price decimal.Decimal) bool {
	if w.isBid {
		return w.price.GreaterThanOrEqual(price)
	}
	return w.price.LessThanOrEqual(price)
}

func wantFor(o *Order) want {
	if o.Type == OrderMarket {
		return wantMarket{}
	}
	return wantLimit{price: o.Price, isBid: o.Side == SideBid}
}
