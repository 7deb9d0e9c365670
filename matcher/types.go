package matcher

import (
	"time"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
	"github.com/shopspring/decimal"

	"github.com/corverroos/matchbook/trades"
)

var (
	// ErrNotFound is returned for ids that are unknown or not in a
	// cancellable state.
	ErrNotFound = errors.New("order not found", j.C("ERR_5d7c1f0a9e2b4c61"))

	// ErrInvalidInput is returned for malformed price, quantity, side or type.
	ErrInvalidInput = errors.New("invalid order input", j.C("ERR_a3e09b7d41c2f586"))

	// ErrDuplicateOrder is returned when an order id was already submitted
	// to the engine.
	ErrDuplicateOrder = errors.New("duplicate order id", j.C("ERR_0f6b2d84c9a17e35"))
)

type Side int

const (
	SideBid Side = 0
	SideAsk Side = 1
)

// Opposite returns the side an order of this side matches against.
func (s Side) Opposite() Side {
	if s == SideBid {
		return SideAsk
	}
	return SideBid
}

func (s Side) String() string {
	switch s {
	case SideBid:
		return "bid"
	case SideAsk:
		return "ask"
	default:
		return "unknown"
	}
}

func (s Side) valid() bool {
	return s == SideBid || s == SideAsk
}

type OrderType int

const (
	OrderLimit  OrderType = 0
	OrderMarket OrderType = 1
)

func (t OrderType) String() string {
	switch t {
	case OrderLimit:
		return "limit"
	case OrderMarket:
		return "market"
	default:
		return "unknown"
	}
}

type Status int

const (
	StatusPending         Status = 0
	StatusPartiallyFilled Status = 1
	StatusFilled          Status = 2
	StatusCancelled       Status = 3
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusPartiallyFilled:
		return "partially_filled"
	case StatusFilled:
		return "filled"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// OrderInput is a new order as submitted by an adapter.
type OrderInput struct {
	ID       uint64
	Price    decimal.Decimal // Ignored for market orders.
	Quantity decimal.Decimal
	Side     Side
	Type     OrderType

	// Timestamp is the submission instant. The engine clock is used if zero.
	Timestamp time.Time
}

// Order is a bid or ask order and its current matching state.
type Order struct {
	ID        uint64
	Price     decimal.Decimal
	Quantity  decimal.Decimal
	Remaining decimal.Decimal
	Side      Side
	Type      OrderType
	Status    Status
	Timestamp time.Time
}

// Filled returns the quantity matched so far.
func (o Order) Filled() decimal.Decimal {
	return o.Quantity.Sub(o.Remaining)
}

// IsFilled returns true if no quantity remains.
func (o Order) IsFilled() bool {
	return o.Remaining.Sign() == 0
}

// fillStatus derives the status from the remaining quantity.
func fillStatus(o *Order) Status {
	if o.Remaining.Sign() == 0 {
		return StatusFilled
	} else if o.Remaining.LessThan(o.Quantity) {
		return StatusPartiallyFilled
	}
	return StatusPending
}

// Level is an aggregated price level of one side of the book.
type Level struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// Type classifies the outcome of an engine command.
type Type int

const (
	TypeUnknown       Type = 0
	TypeCancelFailed  Type = 3
	TypeCancelled     Type = 4
	TypeMarketEmpty   Type = 7
	TypeMarketPartial Type = 8
	TypeMarketFull    Type = 9
	TypeLimitTaker    Type = 10
	TypeLimitPartial  Type = 11
	TypeLimitMaker    Type = 12
)

func (t Type) String() string {
	switch t {
	case TypeCancelFailed:
		return "CancelFailed"
	case TypeCancelled:
		return "Cancelled"
	case TypeMarketEmpty:
		return "MarketEmpty"
	case TypeMarketPartial:
		return "MarketPartial"
	case TypeMarketFull:
		return "MarketFull"
	case TypeLimitTaker:
		return "LimitTaker"
	case TypeLimitPartial:
		return "LimitPartial"
	case TypeLimitMaker:
		return "LimitMaker"
	default:
		return "Unknown"
	}
}

// Result is the outcome of a placement or cancellation.
type Result struct {
	Seq    int64
	Type   Type
	Order  Order
	Trades []trades.Trade
}
