package matcher

import (
	"fmt"

	"github.com/google/btree"
	"github.com/shopspring/decimal"
)

const btreeDegree = 32

// level is a FIFO queue of resting orders at a single price.
type level struct {
	price  decimal.Decimal
	orders []*Order
}

// quantity returns the aggregate remaining quantity at this level.
func (l *level) quantity() decimal.Decimal {
	sum := decimal.Zero
	for _, o := range l.orders {
		sum = sum.Add(o.Remaining)
	}
	return sum
}

func lessLevel(a, b *level) bool {
	return a.price.LessThan(b.price)
}

// entry indexes an order by id. Level is nil once the
// order no longer rests in the book.
type entry struct {
	order *Order
	level *level
}

// OrderBook holds resting orders per side ordered by price, each price level
// being a FIFO queue. Every order the book has seen is indexed by id,
// including terminal orders that no longer rest.
//
// OrderBook is not safe for concurrent use; see Engine.
type OrderBook struct {
	bids  *btree.BTreeG[*level] // Best is Max.
	asks  *btree.BTreeG[*level] // Best is Min.
	index map[uint64]*entry
}

func NewOrderBook() *OrderBook {
	return &OrderBook{
		bids:  btree.NewG(btreeDegree, lessLevel),
		asks:  btree.NewG(btreeDegree, lessLevel),
		index: make(map[uint64]*entry),
	}
}

func (b *OrderBook) levels(s Side) *btree.BTreeG[*level] {
	if s == SideBid {
		return b.bids
	}
	return b.asks
}

// Place inserts the order at the back of its price level and indexes it.
// It never matches.
func (b *OrderBook) Place(o Order) {
	if e, ok := b.index[o.ID]; ok && e.level != nil {
		panic(fmt.Sprintf("order already resting: %d", o.ID))
	}

	tree := b.levels(o.Side)
	lvl, ok := tree.Get(&level{price: o.Price})
	if !ok {
		lvl = &level{price: o.Price}
		tree.ReplaceOrInsert(lvl)
	}

	ptr := &o
	lvl.orders = append(lvl.orders, ptr)
	b.index[o.ID] = &entry{order: ptr, level: lvl}
}

// Remove removes the resting order from its price level and the index,
// pruning the level if it becomes empty. It returns false if the id
// is not resting in the book.
func (b *OrderBook) Remove(id uint64) (Order, bool) {
	e, ok := b.index[id]
	if !ok || e.level == nil {
		return Order{}, false
	}

	lvl := e.level
	idx := -1
	for i, o := range lvl.orders {
		if o == e.order {
			idx = i
			break
		}
	}
	if idx < 0 {
		panic(fmt.Sprintf("order index out of sync with book: %d", id))
	}

	lvl.orders = append(lvl.orders[:idx], lvl.orders[idx+1:]...)
	b.pruneIfEmpty(e.order.Side, lvl)
	delete(b.index, id)

	return *e.order, true
}

// BestOpposite returns the best price an order of the given side
// can match against: the lowest ask for bids, the highest bid for asks.
func (b *OrderBook) BestOpposite(s Side) (decimal.Decimal, bool) {
	if s == SideBid {
		return b.BestAsk()
	}
	return b.BestBid()
}

// BestBid returns the highest bid price.
func (b *OrderBook) BestBid() (decimal.Decimal, bool) {
	lvl, ok := b.bids.Max()
	if !ok {
		return decimal.Decimal{}, false
	}
	return lvl.price, true
}

// BestAsk returns the lowest ask price.
func (b *OrderBook) BestAsk() (decimal.Decimal, bool) {
	lvl, ok := b.asks.Min()
	if !ok {
		return decimal.Decimal{}, false
	}
	return lvl.price, true
}

// Snapshot returns the top depth price levels of each side ordered from
// best to worst with the aggregate remaining quantity of each level.
func (b *OrderBook) Snapshot(depth int) (bids []Level, asks []Level) {
	if depth <= 0 {
		return nil, nil
	}

	collect := func(res *[]Level) func(*level) bool {
		return func(lvl *level) bool {
			*res = append(*res, Level{Price: lvl.price, Quantity: lvl.quantity()})
			return len(*res) < depth
		}
	}

	b.bids.Descend(collect(&bids))
	b.asks.Ascend(collect(&asks))

	return bids, asks
}

// StatusOf returns a copy of the order with the given id, resting or terminal.
func (b *OrderBook) StatusOf(id uint64) (Order, bool) {
	e, ok := b.index[id]
	if !ok {
		return Order{}, false
	}
	return *e.order, true
}

// OrdersAt returns copies of the orders resting at the price in time priority.
func (b *OrderBook) OrdersAt(price decimal.Decimal, s Side) []Order {
	lvl, ok := b.levels(s).Get(&level{price: price})
	if !ok {
		return nil
	}

	res := make([]Order, 0, len(lvl.orders))
	for _, o := range lvl.orders {
		res = append(res, *o)
	}
	return res
}

// Len returns the number of resting orders on the side.
func (b *OrderBook) Len(s Side) int {
	var n int
	b.levels(s).Ascend(func(lvl *level) bool {
		n += len(lvl.orders)
		return true
	})
	return n
}

// resting returns true if the id rests in the book.
func (b *OrderBook) resting(id uint64) bool {
	e, ok := b.index[id]
	return ok && e.level != nil
}

// known returns true if the id was ever indexed.
func (b *OrderBook) known(id uint64) bool {
	_, ok := b.index[id]
	return ok
}

// record indexes a terminal order that does not rest in the book.
func (b *OrderBook) record(o Order) {
	if b.resting(o.ID) {
		panic(fmt.Sprintf("terminal order still resting: %d", o.ID))
	}
	b.index[o.ID] = &entry{order: &o}
}

// bestLevel returns the best price level of the side.
func (b *OrderBook) bestLevel(s Side) (*level, bool) {
	if s == SideBid {
		return b.bids.Max()
	}
	return b.asks.Min()
}

// popFront removes the head order of the level after it was filled,
// keeping it indexed as a terminal order.
func (b *OrderBook) popFront(lvl *level) *Order {
	o := lvl.orders[0]
	lvl.orders[0] = nil
	lvl.orders = lvl.orders[1:]

	e, ok := b.index[o.ID]
	if !ok || e.order != o {
		panic(fmt.Sprintf("order index out of sync with book: %d", o.ID))
	}
	e.level = nil

	return o
}

func (b *OrderBook) pruneIfEmpty(s Side, lvl *level) {
	if len(lvl.orders) > 0 {
		return
	}
	if _, ok := b.levels(s).Delete(lvl); !ok {
		panic(fmt.Sprintf("empty level not in book: %s %s", s, lvl.price))
	}
}
