// Command matchbookd matches the orders of one instrument read from its
// shared memory queue.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/luno/jettison/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/corverroos/matchbook"
	"github.com/corverroos/matchbook/config"
	"github.com/corverroos/matchbook/inq"
	"github.com/corverroos/matchbook/matcher"
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

	logger.Info("queue opened",
		zap.String("path", q.Path()),
		zap.Int("capacity", q.Capacity()),
		zap.Time("created_at", q.CreatedAt()))

	opts := []matchbook.Option{
		matchbook.WithLogger(logger),
		matchbook.WithPollInterval(cfg.PollInterval),
	}

	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector())
		opts = append(opts, matchbook.WithMetrics(matchbook.NewMetrics(reg)))
		go serveMetrics(logger, cfg.MetricsAddr, reg)
	}

	e := matcher.NewEngine()

	err = matchbook.Run(ctx, q, e, opts...)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("run failed", zap.Error(err))
	}

	logBook(logger, e, cfg.BookDepthLog)
}

func serveMetrics(logger *zap.Logger, addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	logger.Info("serving metrics", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics server", zap.Error(err))
	}
}

func logBook(logger *zap.Logger, e *matcher.Engine, depth int) {
	bids, asks := e.OrderBook(depth)
	for _, l := range asks {
		logger.Info("ask", zap.Stringer("price", l.Price), zap.Stringer("quantity", l.Quantity))
	}
	for _, l := range bids {
		logger.Info("bid", zap.Stringer("price", l.Price), zap.Stringer("quantity", l.Quantity))
	}

	logger.Info("book closed",
		zap.Int64("sequence", e.Sequence()),
		zap.Int("trades", len(e.TradeHistory(0))))
}
