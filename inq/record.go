package inq

import (
	"encoding/binary"
	"math"
	"math/big"
	"time"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
	"github.com/shopspring/decimal"
)

// Scale is the number of decimal places of fixed-point prices and quantities.
const Scale = 8

// SlotSize is the encoded size of a Record.
const SlotSize = 48

// Record field offsets within a slot.
const (
	recID         = 0
	recInstrument = 8
	recPrice      = 16
	recQty        = 24
	recSide       = 32
	recType       = 33
	recTimestamp  = 40
)

type Side uint8

const (
	SideBid Side = 0
	SideAsk Side = 1
)

type Type uint8

const (
	TypeLimit  Type = 0
	TypeMarket Type = 1

	// TypeCancel requests cancellation of the resting order with the record id.
	TypeCancel Type = 2
)

func (t Type) String() string {
	switch t {
	case TypeLimit:
		return "limit"
	case TypeMarket:
		return "market"
	case TypeCancel:
		return "cancel"
	default:
		return "unknown"
	}
}

// Record is a fixed size order command carried by a Queue.
type Record struct {
	ID         uint64
	Instrument uint32
	Price      int64 // Fixed-point, see Scale.
	Qty        uint64
	Side       Side
	Type       Type
	Timestamp  int64 // Unix nanos.
}

// Time returns the record timestamp or the zero time if not set.
func (r Record) Time() time.Time {
	if r.Timestamp == 0 {
		return time.Time{}
	}
	return time.Unix(0, r.Timestamp)
}

// DecimalPrice returns the record price as a decimal.
func (r Record) DecimalPrice() decimal.Decimal {
	return FromFixed(r.Price)
}

// DecimalQty returns the record quantity as a decimal.
func (r Record) DecimalQty() decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(r.Qty), -Scale)
}

func encode(b []byte, r Record) {
	_ = b[SlotSize-1]
	binary.LittleEndian.PutUint64(b[recID:], r.ID)
	binary.LittleEndian.PutUint32(b[recInstrument:], r.Instrument)
	binary.LittleEndian.PutUint32(b[recInstrument+4:], 0)
	binary.LittleEndian.PutUint64(b[recPrice:], uint64(r.Price))
	binary.LittleEndian.PutUint64(b[recQty:], r.Qty)
	b[recSide] = byte(r.Side)
	b[recType] = byte(r.Type)
	for i := recType + 1; i < recTimestamp; i++ {
		b[i] = 0
	}
	binary.LittleEndian.PutUint64(b[recTimestamp:], uint64(r.Timestamp))
}

func decode(b []byte) Record {
	_ = b[SlotSize-1]
	return Record{
		ID:         binary.LittleEndian.Uint64(b[recID:]),
		Instrument: binary.LittleEndian.Uint32(b[recInstrument:]),
		Price:      int64(binary.LittleEndian.Uint64(b[recPrice:])),
		Qty:        binary.LittleEndian.Uint64(b[recQty:]),
		Side:       Side(b[recSide]),
		Type:       Type(b[recType]),
		Timestamp:  int64(binary.LittleEndian.Uint64(b[recTimestamp:])),
	}
}

var (
	maxFixed = decimal.NewFromInt(math.MaxInt64)
	minFixed = decimal.NewFromInt(math.MinInt64)
)

// ToFixed converts d to a fixed-point value with Scale decimal places.
// It returns ErrInexact if d has more decimal places than Scale or does
// not fit.
func ToFixed(d decimal.Decimal) (int64, error) {
	s := d.Shift(Scale)
	if !s.Equal(s.Truncate(0)) {
		return 0, errors.Wrap(ErrInexact, "too many decimal places", j.KV("value", d.String()))
	}
	if s.GreaterThan(maxFixed) || s.LessThan(minFixed) {
		return 0, errors.Wrap(ErrInexact, "out of range", j.KV("value", d.String()))
	}
	return s.IntPart(), nil
}

// FromFixed converts a fixed-point value with Scale decimal places to a decimal.
func FromFixed(v int64) decimal.Decimal {
	return decimal.New(v, -Scale)
}

// NewRecord returns a record for the order with price and quantity
// converted to fixed-point. Quantity may not be negative.
func NewRecord(id uint64, instrument uint32, s Side, t Type,
	price, qty decimal.Decimal, ts time.Time,
) (Record, error) {
	p, err := ToFixed(price)
	if err != nil {
		return Record{}, errors.Wrap(err, "price")
	}

	q, err := ToFixed(qty)
	if err != nil {
		return Record{}, errors.Wrap(err, "quantity")
	} else if q < 0 {
		return Record{}, errors.Wrap(ErrInexact, "negative quantity", j.KV("value", qty.String()))
	}

	var nanos int64
	if !ts.IsZero() {
		nanos = ts.UnixNano()
	}

	return Record{
		ID:         id,
		Instrument: instrument,
		Price:      p,
		Qty:        uint64(q),
		Side:       s,
		Type:       t,
		Timestamp:  nanos,
	}, nil
}
