package matcher

import (
	"sync"
	"time"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
	"github.com/shopspring/decimal"

	"github.com/corverroos/matchbook/trades"
)

// Engine matches orders of a single instrument under price-time priority.
//
// All operations are serialized by one mutex since priority is a global
// invariant of the book; queries never observe a book mid-match.
type Engine struct {
	mu      sync.Mutex
	book    *OrderBook
	history *trades.History
	seq     int64
	now     func() time.Time
}

type Option func(*Engine)

// WithClock overrides the clock used to stamp orders and trades.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithHistory sets the trade ledger the engine commits to.
func WithHistory(h *trades.History) Option {
	return func(e *Engine) {
		e.history = h
	}
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		book:    NewOrderBook(),
		history: trades.NewHistory(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// PlaceOrder matches the order against the book. Any limit order remainder
// rests in the book; market order remainders are discarded. The returned
// result holds the final state of the order and the trades it produced,
// which are committed to the trade history as one batch.
func (e *Engine) PlaceOrder(in OrderInput) (Result, error) {
	if err := validate(in); err != nil {
		return Result{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.book.known(in.ID) {
		return Result{}, errors.Wrap(ErrDuplicateOrder, "place order", j.KV("id", in.ID))
	}

	now := e.now()
	ts := in.Timestamp
	if ts.IsZero() {
		ts = now
	}

	price := in.Price
	if in.Type == OrderMarket {
		price = decimal.Zero
	}

	o := Order{
		ID:        in.ID,
		Price:     price,
		Quantity:  in.Quantity,
		Remaining: in.Quantity,
		Side:      in.Side,
		Type:      in.Type,
		Status:    StatusPending,
		Timestamp: ts,
	}

	e.seq++
	typ, tl := match(e.book, &o, e.seq, now)

	e.history.Add(tl...)

	return Result{
		Seq:    e.seq,
		Type:   typ,
		Order:  o,
		Trades: tl,
	}, nil
}

// CancelOrder removes a resting order from the book. It returns ErrNotFound
// if the order is unknown or no longer resting.
func (e *Engine) CancelOrder(id uint64) (Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	o, ok := e.book.Remove(id)
	if !ok {
		return Order{}, errors.Wrap(ErrNotFound, "cannot cancel", j.KV("id", id))
	}

	e.seq++
	o.Status = StatusCancelled
	e.book.record(o)

	return o, nil
}

// OrderStatus returns the latest state of the order.
func (e *Engine) OrderStatus(id uint64) (Order, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.book.StatusOf(id)
}

// OrderBook returns the aggregated top depth levels of each side.
func (e *Engine) OrderBook(depth int) (bids []Level, asks []Level) {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.book.Snapshot(depth)
}

// OrdersAt returns the orders resting at the price in time priority.
func (e *Engine) OrdersAt(price decimal.Decimal, s Side) []Order {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.book.OrdersAt(price, s)
}

// BestBid returns the highest resting bid price.
func (e *Engine) BestBid() (decimal.Decimal, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.book.BestBid()
}

// BestAsk returns the lowest resting ask price.
func (e *Engine) BestAsk() (decimal.Decimal, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.book.BestAsk()
}

// TradeHistory returns up to limit of the latest trades newest first, or all
// trades in chronological order if limit is not positive.
func (e *Engine) TradeHistory(limit int) []trades.Trade {
	if limit <= 0 {
		return e.history.All()
	}
	return e.history.Recent(limit)
}

// Sequence returns the number of commands applied to the book.
func (e *Engine) Sequence() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.seq
}

func validate(in OrderInput) error {
	if !in.Side.valid() {
		return errors.Wrap(ErrInvalidInput, "unknown side", j.KV("id", in.ID))
	}

	if in.Quantity.Sign() <= 0 {
		return errors.Wrap(ErrInvalidInput, "quantity must be positive",
			j.MKV{"id": in.ID, "quantity": in.Quantity.String()})
	}

	switch in.Type {
	case OrderMarket:
		return nil
	case OrderLimit:
		if in.Price.Sign() <= 0 {
			return errors.Wrap(ErrInvalidInput, "limit price must be positive",
				j.MKV{"id": in.ID, "price": in.Price.String()})
		}
		return nil
	default:
		return errors.Wrap(ErrInvalidInput, "unknown order type", j.KV("id", in.ID))
	}
}
