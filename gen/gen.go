// Package gen provides functionality for generating order records easily.
package gen

import (
	"context"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"

	"github.com/corverroos/matchbook/inq"
)

// Request defines an order generation request.
type Request struct {
	Rand       *rand.Rand // Rand for deterministic behaviour
	Count      int        // Number of orders to create, excluding cancels.
	Instrument uint32
	FirstID    uint64 // ID of the first order, incremented for each next order.

	BuyProb    float64 // Probability an order is a buy.
	MarketProb float64 // Probability an order is a market order.

	Amount       float64 // Quantity to buy/sell.
	AmountStdDev float64 // Standard deviation volume fuzz (10% of volume is good start)
	AmountScale  int     // Scale for quantities.

	Price       float64 // Price to aim at
	PriceStdDev float64 // Standard deviation price fuzz (10% of price is good start)
	PriceScale  int     // Scale for prices.

	CancelProb float64 // Probability limit order will be cancelled.
}

// Generate creates random order and cancel records based on the request
// values and passes them to fn in order.
func Generate(ctx context.Context, req Request, fn func(inq.Record) error) error {
	ch := make(chan rands, 1000)
	go genRands(req, ch)

	var cancels []uint64
	id := req.FirstID

	for rands := range ch {
		if err := ctx.Err(); err != nil {
			drain(ch)
			return err
		}

		side := inq.SideAsk
		if rands.Floats[0] < req.BuyProb {
			side = inq.SideBid
		}

		typ := inq.TypeLimit
		if rands.Floats[1] < req.MarketProb {
			typ = inq.TypeMarket
		}

		price := rands.Price
		if typ == inq.TypeMarket {
			price = decimal.Zero
		}

		rec, err := inq.NewRecord(id, req.Instrument, side, typ, price, rands.Amount, time.Time{})
		if err != nil {
			drain(ch)
			return err
		}
		if err := fn(rec); err != nil {
			drain(ch)
			return err
		}

		// Maybe add to future cancels.
		if typ == inq.TypeLimit && rands.Floats[2] < req.CancelProb {
			cancels = append(cancels, id)
		}
		id++

		// Maybe cancel one previous
		if len(cancels) > 0 && rands.Floats[3] < req.CancelProb {
			// Pick either head or tail.
			var cid uint64
			if rands.Floats[4] < 0.5 {
				cid = cancels[0]
				cancels = cancels[1:]
			} else {
				last := len(cancels) - 1
				cid = cancels[last]
				cancels = cancels[:last]
			}

			err := fn(inq.Record{
				ID:         cid,
				Instrument: req.Instrument,
				Type:       inq.TypeCancel,
			})
			if err != nil {
				drain(ch)
				return err
			}
		}
	}

	return nil
}

func drain(ch <-chan rands) {
	for range ch {
	}
}

type rands struct {
	Price  decimal.Decimal
	Amount decimal.Decimal

	// Floats provide 5 random floats for custom logic.
	Floats [5]float64
}

// genRands returns req.Count deterministic rands structs.
func genRands(req Request, ch chan<- rands) {
	priceScale := clampScale(req.PriceScale)
	amountScale := clampScale(req.AmountScale)

	for i := 0; i < req.Count; i++ {
		price := fuzz(req.Rand, req.Price, req.PriceStdDev).Round(priceScale)
		amount := fuzz(req.Rand, req.Amount, req.AmountStdDev).Round(amountScale)

		var floats [5]float64
		for i := 0; i < 5; i++ {
			floats[i] = req.Rand.Float64()
		}

		ch <- rands{
			Price:  positive(price, priceScale),
			Amount: positive(amount, amountScale),
			Floats: floats,
		}
	}

	close(ch)
}

func fuzz(r *rand.Rand, mean, stdDev float64) decimal.Decimal {
	return decimal.NewFromFloat(r.NormFloat64()*stdDev + mean)
}

// clampScale limits scale to what records can represent exactly.
func clampScale(scale int) int32 {
	if scale < 0 {
		return 0
	} else if scale > inq.Scale {
		return inq.Scale
	}
	return int32(scale)
}

// positive returns d or the smallest positive value of the scale.
func positive(d decimal.Decimal, scale int32) decimal.Decimal {
	if d.Sign() > 0 {
		return d
	}
	return decimal.New(1, -scale)
}
