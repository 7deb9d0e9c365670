// Package matchbook feeds orders from an instrument queue into a
// matching engine.
package matchbook

import (
	"context"
	"time"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
	"go.uber.org/zap"

	"github.com/corverroos/matchbook/inq"
	"github.com/corverroos/matchbook/matcher"
)

// DefaultPollInterval is the time Run waits after draining an empty queue.
const DefaultPollInterval = 50 * time.Microsecond

// ErrInstrumentMismatch is returned for records of another instrument.
var ErrInstrumentMismatch = errors.New("instrument mismatch", j.C("ERR_3a9e61f0c5d2b487"))

// Reader is the consumer end of an instrument queue.
type Reader interface {
	Read() (inq.Record, bool)
	Depth() uint64
	Instrument() uint32
}

// Writer is the producer end of an instrument queue.
type Writer interface {
	Write(inq.Record) error
}

// Outcome is the result of applying a single record to the engine.
// Result.Seq is only set for placements.
type Outcome struct {
	Record inq.Record
	Result matcher.Result
	Err    error
}

// Run drains the queue into the engine until the context is cancelled,
// returning the first error. Run must be the only reader of the queue.
func Run(ctx context.Context, q Reader, e *matcher.Engine, opts ...Option) error {
	s := &state{
		engine:  e,
		queue:   q,
		output:  make(chan Outcome, 1000),
		poll:    DefaultPollInterval,
		logger:  zap.NewNop(),
		results: func(Outcome) {},
		metrics: new(Metrics),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.metrics.setSources(q.Depth, func() int {
		return len(s.output)
	})

	s.logger.Info("matchbook started",
		zap.Uint32("instrument", q.Instrument()),
		zap.Duration("poll_interval", s.poll))

	// Start the matching and output go routines, exit on first error.
	var err error
	select {
	case err = <-goChan(func() error {
		return s.Match(ctx)
	}):
	case err = <-goChan(func() error {
		return s.Deliver(ctx)
	}):
	}

	s.logger.Info("matchbook stopped", zap.Error(err))

	return err
}

type Option func(*state)

// WithLogger sets the logger for rejected records and lifecycle events.
func WithLogger(l *zap.Logger) Option {
	return func(s *state) {
		s.logger = l
	}
}

// WithPollInterval sets the time to wait after finding the queue empty.
func WithPollInterval(d time.Duration) Option {
	return func(s *state) {
		s.poll = d
	}
}

// WithResults sets a callback receiving the outcome of every record in
// queue order. It is called from a single go routine.
func WithResults(f func(Outcome)) Option {
	return func(s *state) {
		s.results = f
	}
}

func WithMetrics(m *Metrics) Option {
	return func(s *state) {
		s.metrics = m
	}
}

// state encapsulates the run loop state.
type state struct {
	engine *matcher.Engine
	queue  Reader
	output chan Outcome
	poll   time.Duration

	logger  *zap.Logger
	results func(Outcome)
	metrics *Metrics
}

// Match reads records from the queue and applies them to the engine.
func (s *state) Match(ctx context.Context) error {
	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	for {
		rec, ok := s.queue.Read()
		if !ok {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
			continue
		}

		s.metrics.incConsumed()

		out := s.apply(rec)
		if out.Err != nil {
			s.metrics.incRejected()
			s.logger.Warn("record rejected",
				zap.Uint64("id", rec.ID),
				zap.Stringer("type", rec.Type),
				zap.Error(out.Err))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case s.output <- out:
		}
	}
}

// Deliver passes outcomes to the results callback.
func (s *state) Deliver(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case out := <-s.output:
			s.results(out)
		}
	}
}

func (s *state) apply(rec inq.Record) Outcome {
	if rec.Instrument != s.queue.Instrument() {
		return Outcome{Record: rec, Err: errors.Wrap(ErrInstrumentMismatch, "apply record",
			j.MKV{"id": rec.ID, "want": s.queue.Instrument(), "got": rec.Instrument})}
	}

	if rec.Type == inq.TypeCancel {
		o, err := s.engine.CancelOrder(rec.ID)
		if err != nil {
			return Outcome{
				Record: rec,
				Result: matcher.Result{Type: matcher.TypeCancelFailed},
				Err:    err,
			}
		}
		s.metrics.incCancelled()
		return Outcome{
			Record: rec,
			Result: matcher.Result{Type: matcher.TypeCancelled, Order: o},
		}
	}

	in, err := toInput(rec)
	if err != nil {
		return Outcome{Record: rec, Err: err}
	}

	res, err := s.engine.PlaceOrder(in)
	if err != nil {
		return Outcome{Record: rec, Err: err}
	}

	s.metrics.incPlaced(len(res.Trades))

	return Outcome{Record: rec, Result: res}
}

func toInput(rec inq.Record) (matcher.OrderInput, error) {
	in := matcher.OrderInput{
		ID:        rec.ID,
		Price:     rec.DecimalPrice(),
		Quantity:  rec.DecimalQty(),
		Timestamp: rec.Time(),
	}

	switch rec.Side {
	case inq.SideBid:
		in.Side = matcher.SideBid
	case inq.SideAsk:
		in.Side = matcher.SideAsk
	default:
		return matcher.OrderInput{}, errors.Wrap(matcher.ErrInvalidInput, "unknown side",
			j.MKV{"id": rec.ID, "side": rec.Side})
	}

	switch rec.Type {
	case inq.TypeLimit:
		in.Type = matcher.OrderLimit
	case inq.TypeMarket:
		in.Type = matcher.OrderMarket
	default:
		return matcher.OrderInput{}, errors.Wrap(matcher.ErrInvalidInput, "unknown type",
			j.MKV{"id": rec.ID, "type": rec.Type})
	}

	return in, nil
}

// Publish writes the record to the queue, retrying after backoff while
// the queue is full.
func Publish(ctx context.Context, w Writer, rec inq.Record, backoff time.Duration) error {
	for {
		err := w.Write(rec)
		if !errors.Is(err, inq.ErrQueueFull) {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
}

func goChan(f func() error) <-chan error {
	ch := make(chan error, 1)
	go func() {
		ch <- f()
		close(ch)
	}()
	return ch
}
