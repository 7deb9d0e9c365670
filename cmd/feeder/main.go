// Command feeder writes generated orders into the shared memory queue
// of an instrument.
package main

import (
	"context"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/corverroos/matchbook"
	"github.com/corverroos/matchbook/config"
	"github.com/corverroos/matchbook/gen"
	"github.com/corverroos/matchbook/inq"
)

func main() {
	var cfg config.Config
	config.MustLoad(&cfg)

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	q, err := inq.Open(cfg.QueueDir, cfg.Instrument, cfg.QueueCapacity)
	if err != nil {
		logger.Fatal("open queue", zap.Error(err))
	}
	defer q.Close()

	req := gen.Request{
		Rand:       rand.New(rand.NewSource(cfg.Feed.Seed)),
		Count:      cfg.Feed.Count,
		Instrument: cfg.Instrument,
		// Ids must not repeat across runs against the same engine.
		FirstID:      uint64(time.Now().UnixNano()),
		BuyProb:      0.5,
		MarketProb:   0.1,
		Amount:       cfg.Feed.Amount,
		AmountStdDev: cfg.Feed.Amount / 10,
		AmountScale:  4,
		Price:        cfg.Feed.Price,
		PriceStdDev:  cfg.Feed.PriceStdDev,
		PriceScale:   2,
		CancelProb:   0.2,
	}

	t0 := time.Now()
	var count int

	err = gen.Generate(ctx, req, func(rec inq.Record) error {
		rec.Timestamp = time.Now().UnixNano()
		if err := matchbook.Publish(ctx, q, rec, cfg.Feed.Backoff); err != nil {
			return err
		}
		count++
		return nil
	})
	if err != nil {
		logger.Error("feed failed", zap.Error(err), zap.Int("published", count))
		return
	}

	logger.Info("feed done",
		zap.Int("published", count),
		zap.Duration("duration", time.Since(t0)),
		zap.Uint64("depth", q.Depth()))
}
