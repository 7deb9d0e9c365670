package matchbook

import (
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "matchbook"

// Metrics exposes run loop counters. The zero value is usable but
// not exported to prometheus.
type Metrics struct {
	mu        sync.Mutex
	getInput  func() uint64
	getOutput func() int
	count     int64 // Used with atomic

	consumed  prometheus.Counter
	placed    prometheus.Counter
	rejected  prometheus.Counter
	cancelled prometheus.Counter
	trades    prometheus.Counter
}

// NewMetrics returns metrics registered with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		consumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_consumed_total",
			Help:      "Records read from the instrument queue.",
		}),
		placed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_placed_total",
			Help:      "Orders accepted by the engine.",
		}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_rejected_total",
			Help:      "Records that failed to apply.",
		}),
		cancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_cancelled_total",
			Help:      "Orders cancelled.",
		}),
		trades: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trades_total",
			Help:      "Trades executed.",
		}),
	}

	depth := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_depth",
		Help:      "Approximate number of unread queue records.",
	}, func() float64 {
		return float64(m.InputLen())
	})

	reg.MustRegister(m.consumed, m.placed, m.rejected, m.cancelled, m.trades, depth)

	return m
}

func (m *Metrics) setSources(input func() uint64, output func() int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.getInput = input
	m.getOutput = output
}

// InputLen returns the approximate number of unread queue records.
func (m *Metrics) InputLen() uint64 {
	m.mu.Lock()
	f := m.getInput
	m.mu.Unlock()

	if f == nil {
		return 0
	}
	return f()
}

// OutputLen returns the number of outcomes pending delivery.
func (m *Metrics) OutputLen() int {
	m.mu.Lock()
	f := m.getOutput
	m.mu.Unlock()

	if f == nil {
		return 0
	}
	return f()
}

// Count returns the number of records consumed.
func (m *Metrics) Count() int64 {
	return atomic.LoadInt64(&m.count)
}

func (m *Metrics) incConsumed() {
	atomic.AddInt64(&m.count, 1)
	inc(m.consumed, 1)
}

func (m *Metrics) incPlaced(trades int) {
	inc(m.placed, 1)
	inc(m.trades, trades)
}

func (m *Metrics) incRejected() {
	inc(m.rejected, 1)
}

func (m *Metrics) incCancelled() {
	inc(m.cancelled, 1)
}

func inc(c prometheus.Counter, n int) {
	if c == nil || n == 0 {
		return
	}
	c.Add(float64(n))
}
