package matcher

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/luno/jettison/jtest"
	"github.com/sebdah/goldie/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v2"
)

func place(t *testing.T, e *Engine, id uint64, s Side, price, qty string) Result {
	t.Helper()
	res, err := e.PlaceOrder(OrderInput{
		ID:       id,
		Price:    d(price),
		Quantity: d(qty),
		Side:     s,
		Type:     OrderLimit,
	})
	jtest.Require(t, nil, err)
	return res
}

func market(t *testing.T, e *Engine, id uint64, s Side, qty string) Result {
	t.Helper()
	res, err := e.PlaceOrder(OrderInput{
		ID:       id,
		Quantity: d(qty),
		Side:     s,
		Type:     OrderMarket,
	})
	jtest.Require(t, nil, err)
	return res
}

func TestPriceTimePriority(t *testing.T) {
	e := NewEngine()

	place(t, e, 1, SideBid, "100", "10")
	place(t, e, 2, SideBid, "100", "10")
	place(t, e, 3, SideBid, "101", "10")

	res := place(t, e, 4, SideAsk, "100", "30")
	require.Equal(t, TypeLimitTaker, res.Type)
	require.Equal(t, StatusFilled, res.Order.Status)
	require.Len(t, res.Trades, 3)

	var makers []uint64
	for i, tr := range res.Trades {
		makers = append(makers, tr.MakerOrderID)
		require.Equal(t, uint64(4), tr.TakerOrderID)
		require.Equal(t, i, tr.SeqIdx)
		require.Equal(t, res.Seq, tr.Seq)
		require.False(t, tr.IsBuy)
	}
	require.Equal(t, []uint64{3, 1, 2}, makers)

	// Trades execute at the maker price.
	require.True(t, res.Trades[0].Price.Equal(d("101")))
	require.True(t, res.Trades[1].Price.Equal(d("100")))

	for _, id := range []uint64{1, 2, 3} {
		o, ok := e.OrderStatus(id)
		require.True(t, ok)
		require.Equal(t, StatusFilled, o.Status)
		require.True(t, o.IsFilled())
	}

	bids, asks := e.OrderBook(10)
	require.Empty(t, bids)
	require.Empty(t, asks)
}

func TestPartialMaker(t *testing.T) {
	e := NewEngine()

	place(t, e, 1, SideAsk, "50", "5")
	res := place(t, e, 2, SideBid, "50", "2")
	require.Equal(t, TypeLimitTaker, res.Type)

	o, ok := e.OrderStatus(1)
	require.True(t, ok)
	require.Equal(t, StatusPartiallyFilled, o.Status)
	require.True(t, o.Remaining.Equal(d("3")))
	require.True(t, o.Filled().Equal(d("2")))

	// The partially filled maker keeps its place at the front.
	place(t, e, 3, SideAsk, "50", "1")
	at := e.OrdersAt(d("50"), SideAsk)
	require.Len(t, at, 2)
	require.Equal(t, uint64(1), at[0].ID)
	require.Equal(t, uint64(3), at[1].ID)
}

func TestNoCross(t *testing.T) {
	e := NewEngine()

	place(t, e, 1, SideAsk, "101", "1")
	res := place(t, e, 2, SideBid, "100", "1")
	require.Equal(t, TypeLimitMaker, res.Type)
	require.Empty(t, res.Trades)

	bid, ok := e.BestBid()
	require.True(t, ok)
	require.True(t, bid.Equal(d("100")))

	ask, ok := e.BestAsk()
	require.True(t, ok)
	require.True(t, ask.Equal(d("101")))
}

func TestMarketNeverRests(t *testing.T) {
	e := NewEngine()

	res := market(t, e, 1, SideBid, "1")
	require.Equal(t, TypeMarketEmpty, res.Type)
	require.True(t, res.Order.Price.IsZero())

	place(t, e, 2, SideAsk, "10", "1")
	res = market(t, e, 3, SideBid, "3")
	require.Equal(t, TypeMarketPartial, res.Type)
	require.Equal(t, StatusPartiallyFilled, res.Order.Status)
	require.True(t, res.Order.Remaining.Equal(d("2")))

	_, ok := e.BestBid()
	require.False(t, ok)
	_, ok = e.BestAsk()
	require.False(t, ok)

	o, ok := e.OrderStatus(3)
	require.True(t, ok)
	require.Equal(t, OrderMarket, o.Type)

	_, err := e.CancelOrder(3)
	jtest.Require(t, ErrNotFound, err)
}

func TestConservation(t *testing.T) {
	e := NewEngine()

	place(t, e, 1, SideAsk, "10", "1.5")
	place(t, e, 2, SideAsk, "11", "2.25")
	place(t, e, 3, SideAsk, "12", "3")

	res := place(t, e, 4, SideBid, "11.5", "5")
	require.Equal(t, TypeLimitPartial, res.Type)

	sum := decimal.Zero
	for _, tr := range res.Trades {
		sum = sum.Add(tr.Quantity)
	}
	require.True(t, sum.Equal(res.Order.Filled()))
	require.True(t, sum.Add(res.Order.Remaining).Equal(res.Order.Quantity))
	require.True(t, res.Order.Remaining.Equal(d("1.25")))

	bids, asks := e.OrderBook(5)
	require.Len(t, bids, 1)
	require.True(t, bids[0].Price.Equal(d("11.5")))
	require.Len(t, asks, 1)
	require.True(t, asks[0].Price.Equal(d("12")))

	// The book never stays crossed.
	bid, _ := e.BestBid()
	ask, _ := e.BestAsk()
	require.True(t, bid.LessThan(ask))
}

func TestCancel(t *testing.T) {
	e := NewEngine()

	place(t, e, 1, SideBid, "10", "2")
	place(t, e, 2, SideAsk, "10", "1")

	o, err := e.CancelOrder(1)
	jtest.Require(t, nil, err)
	require.Equal(t, StatusCancelled, o.Status)
	require.True(t, o.Remaining.Equal(d("1")))

	o, ok := e.OrderStatus(1)
	require.True(t, ok)
	require.Equal(t, StatusCancelled, o.Status)

	_, err = e.CancelOrder(1)
	jtest.Require(t, ErrNotFound, err)

	// Filled orders cannot be cancelled.
	_, err = e.CancelOrder(2)
	jtest.Require(t, ErrNotFound, err)

	_, err = e.CancelOrder(99)
	jtest.Require(t, ErrNotFound, err)

	bids, _ := e.OrderBook(5)
	require.Empty(t, bids)
}

func TestDuplicateOrder(t *testing.T) {
	e := NewEngine()

	place(t, e, 1, SideBid, "10", "1")

	_, err := e.PlaceOrder(OrderInput{ID: 1, Price: d("11"), Quantity: d("1"), Side: SideAsk})
	jtest.Require(t, ErrDuplicateOrder, err)

	_, err = e.CancelOrder(1)
	jtest.Require(t, nil, err)

	// Terminal ids remain reserved.
	_, err = e.PlaceOrder(OrderInput{ID: 1, Price: d("10"), Quantity: d("1"), Side: SideBid})
	jtest.Require(t, ErrDuplicateOrder, err)
}

func TestInvalidInput(t *testing.T) {
	tests := []struct {
		name string
		in   OrderInput
	}{
		{
			name: "zero quantity",
			in:   OrderInput{ID: 1, Price: d("1"), Quantity: decimal.Zero},
		},
		{
			name: "negative quantity",
			in:   OrderInput{ID: 1, Price: d("1"), Quantity: d("-1")},
		},
		{
			name: "zero limit price",
			in:   OrderInput{ID: 1, Quantity: d("1")},
		},
		{
			name: "negative limit price",
			in:   OrderInput{ID: 1, Price: d("-1"), Quantity: d("1")},
		},
		{
			name: "unknown side",
			in:   OrderInput{ID: 1, Price: d("1"), Quantity: d("1"), Side: 7},
		},
		{
			name: "unknown type",
			in:   OrderInput{ID: 1, Price: d("1"), Quantity: d("1"), Type: 7},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			e := NewEngine()
			_, err := e.PlaceOrder(test.in)
			jtest.Require(t, ErrInvalidInput, err)
			require.Zero(t, e.Sequence())

			_, ok := e.OrderStatus(1)
			require.False(t, ok)
		})
	}
}

func TestTimestamps(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	e := NewEngine(WithClock(func() time.Time { return now }))

	res := place(t, e, 1, SideAsk, "1", "1")
	require.Equal(t, now, res.Order.Timestamp)

	submitted := now.Add(-time.Minute)
	res, err := e.PlaceOrder(OrderInput{
		ID:        2,
		Price:     d("1"),
		Quantity:  d("1"),
		Side:      SideBid,
		Timestamp: submitted,
	})
	jtest.Require(t, nil, err)
	require.Equal(t, submitted, res.Order.Timestamp)
	require.Len(t, res.Trades, 1)
	require.Equal(t, now, res.Trades[0].CreatedAt)
}

func TestTradeHistory(t *testing.T) {
	e := NewEngine()

	for i := uint64(1); i <= 5; i++ {
		place(t, e, i, SideAsk, "1", "1")
	}
	for i := uint64(6); i <= 10; i++ {
		place(t, e, i, SideBid, "1", "1")
	}

	all := e.TradeHistory(0)
	require.Len(t, all, 5)
	for i, tr := range all {
		require.Equal(t, uint64(i+1), tr.MakerOrderID)
	}

	recent := e.TradeHistory(2)
	require.Len(t, recent, 2)
	require.Equal(t, uint64(10), recent[0].TakerOrderID)
	require.Equal(t, uint64(9), recent[1].TakerOrderID)

	require.Len(t, e.TradeHistory(100), 5)
}

// TestTradeBatchVisibility ensures readers never observe a subset of the
// trades produced by a single order.
func TestTradeBatchVisibility(t *testing.T) {
	e := NewEngine()

	for i := uint64(1); i <= 30; i++ {
		place(t, e, i, SideAsk, "100", "1")
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
			}
			assert.Zero(t, len(e.TradeHistory(0))%3)
		}
	}()

	for i := uint64(31); i <= 40; i++ {
		res := place(t, e, i, SideBid, "100", "3")
		require.Len(t, res.Trades, 3)
	}

	close(done)
	wg.Wait()

	require.Len(t, e.TradeHistory(0), 30)
}

func TestConcurrentPlace(t *testing.T) {
	e := NewEngine()

	const n = 100
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s := SideBid
			if i%2 == 1 {
				s = SideAsk
			}
			_, err := e.PlaceOrder(OrderInput{
				ID:       uint64(i + 1),
				Price:    d("10"),
				Quantity: d("1"),
				Side:     s,
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	require.Equal(t, int64(n), e.Sequence())
	require.Len(t, e.TradeHistory(0), n/2)

	bids, asks := e.OrderBook(1)
	require.Empty(t, bids)
	require.Empty(t, asks)
}

type step struct {
	ID       uint64 `yaml:"id"`
	Side     string `yaml:"side"`
	Type     string `yaml:"type"`
	Price    string `yaml:"price"`
	Quantity string `yaml:"quantity"`
	Cancel   uint64 `yaml:"cancel"`
}

type scenario struct {
	Name  string `yaml:"name"`
	Steps []step `yaml:"steps"`
}

func (s step) input(t *testing.T) OrderInput {
	in := OrderInput{
		ID:       s.ID,
		Quantity: d(s.Quantity),
	}
	if s.Price != "" {
		in.Price = d(s.Price)
	}

	switch s.Side {
	case "bid":
		in.Side = SideBid
	case "ask":
		in.Side = SideAsk
	default:
		t.Fatalf("unknown side: %s", s.Side)
	}

	switch s.Type {
	case "limit":
		in.Type = OrderLimit
	case "market":
		in.Type = OrderMarket
	default:
		t.Fatalf("unknown type: %s", s.Type)
	}

	return in
}

func TestScenarios(t *testing.T) {
	b, err := os.ReadFile(filepath.Join("testdata", "scenarios.yaml"))
	require.NoError(t, err)

	var scenarios []scenario
	require.NoError(t, yaml.Unmarshal(b, &scenarios))
	require.NotEmpty(t, scenarios)

	for _, sc := range scenarios {
		t.Run(sc.Name, func(t *testing.T) {
			e := NewEngine()

			var sb strings.Builder
			for _, s := range sc.Steps {
				if s.Cancel > 0 {
					sb.WriteString(printCancel(e, s.Cancel))
					continue
				}

				res, err := e.PlaceOrder(s.input(t))
				jtest.Require(t, nil, err)
				sb.WriteString(printResult(res))
			}

			sb.WriteString("\n")
			sb.WriteString(printBook(e))

			g := goldie.New(t)
			g.Assert(t, sc.Name, []byte(sb.String()))
		})
	}
}

func printCancel(e *Engine, id uint64) string {
	o, err := e.CancelOrder(id)
	if err != nil {
		return fmt.Sprintf("cancel id=%d %s\n", id, TypeCancelFailed)
	}
	return fmt.Sprintf("cancel id=%d %s status=%s remaining=%s\n",
		id, TypeCancelled, o.Status, o.Remaining)
}

func printResult(r Result) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d %s id=%d status=%s remaining=%s\n",
		r.Seq, r.Type, r.Order.ID, r.Order.Status, r.Order.Remaining))
	for _, tr := range r.Trades {
		sb.WriteString(fmt.Sprintf("  trade maker=%d taker=%d %s@%s %s\n",
			tr.MakerOrderID, tr.TakerOrderID, tr.Quantity, tr.Price, tr.Side()))
	}
	return sb.String()
}

func printBook(e *Engine) string {
	bids, asks := e.OrderBook(100)

	// Asks are printed worst first so the spread is in the middle.
	al := printSide(asks)
	for i, j := 0, len(al)-1; i < j; i, j = i+1, j-1 {
		al[i], al[j] = al[j], al[i]
	}

	var sb strings.Builder
	sb.WriteString(strings.Join(al, "\n"))
	sb.WriteString("\n-------\n")
	sb.WriteString(strings.Join(printSide(bids), "\n"))
	sb.WriteString("\n")
	return sb.String()
}

func printSide(levels []Level) []string {
	if len(levels) == 0 {
		return []string{"empty"}
	}
	var res []string
	for _, l := range levels {
		res = append(res, fmt.Sprintf("%s: %s", l.Price, l.Quantity))
	}
	return res
}
