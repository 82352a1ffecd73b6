package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/uhyunpark/tradewire/pkg/ledger"
	"github.com/uhyunpark/tradewire/pkg/metrics"
	"github.com/uhyunpark/tradewire/pkg/order"
	"github.com/uhyunpark/tradewire/pkg/transport"
)

func newObservedLogger() (*zap.SugaredLogger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return zap.New(core).Sugar(), logs
}

func newMetrics() *metrics.Metrics {
	return metrics.New(prometheus.NewRegistry())
}

// scriptedTransport answers offers from a script and records every call.
type scriptedTransport struct {
	mu      sync.Mutex
	results []transport.OfferResult // consumed in order; last one repeats
	offers  [][]byte
	closed  bool
}

func (s *scriptedTransport) Offer(_ context.Context, msg []byte) (transport.OfferResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offers = append(s.offers, append([]byte(nil), msg...))
	res := s.results[0]
	if len(s.results) > 1 {
		s.results = s.results[1:]
	}
	if res == transport.Fatal {
		return res, transport.ErrClosed
	}
	return res, nil
}

func (s *scriptedTransport) Poll(context.Context, int, func([]byte)) (int, error) { return 0, nil }

func (s *scriptedTransport) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *scriptedTransport) offerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.offers)
}

// failingPollTransport returns an error on every poll.
type failingPollTransport struct {
	*transport.Memory
	err error
}

func (f *failingPollTransport) Poll(context.Context, int, func([]byte)) (int, error) {
	return 0, f.err
}

// slowPollTransport takes longer than a poll interval on every Poll and
// records the peak number of Poll calls running at once.
type slowPollTransport struct {
	*transport.Memory
	delay time.Duration

	mu     sync.Mutex
	active int
	peak   int
	polls  int
}

func (s *slowPollTransport) Poll(ctx context.Context, max int, handler func([]byte)) (int, error) {
	s.mu.Lock()
	s.active++
	if s.active > s.peak {
		s.peak = s.active
	}
	s.mu.Unlock()

	time.Sleep(s.delay)

	s.mu.Lock()
	s.active--
	s.polls++
	s.mu.Unlock()
	return s.Memory.Poll(ctx, max, handler)
}

func (s *slowPollTransport) stats() (polls, peak int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.polls, s.peak
}

// recordingGateway records submissions. When release is non-nil every call
// blocks until it is closed or the context ends.
type recordingGateway struct {
	mu      sync.Mutex
	subs    []order.LedgerSubmission
	release chan struct{}
	err     error
	closed  bool
	entered chan struct{}
}

func (g *recordingGateway) SubmitTrade(ctx context.Context, sub order.LedgerSubmission) (ledger.Confirmation, error) {
	g.mu.Lock()
	g.subs = append(g.subs, sub)
	n := len(g.subs)
	g.mu.Unlock()
	if g.entered != nil {
		g.entered <- struct{}{}
	}
	if g.release != nil {
		select {
		case <-g.release:
		case <-ctx.Done():
			return ledger.Confirmation{}, ctx.Err()
		}
	}
	if g.err != nil {
		return ledger.Confirmation{}, g.err
	}
	return ledger.Confirmation{TxID: "0xtx" + string(rune('0'+n%10))}, nil
}

func (g *recordingGateway) Close() error {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
	return nil
}

func (g *recordingGateway) calls() []order.LedgerSubmission {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]order.LedgerSubmission(nil), g.subs...)
}

// instantClock fires immediately and records requested delays. Now returns
// now when it is set.
type instantClock struct {
	mu     sync.Mutex
	delays []time.Duration
	now    time.Time
}

func (c *instantClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.delays = append(c.delays, d)
	c.mu.Unlock()
	ch := make(chan time.Time, 1)
	ch <- time.Now()
	return ch
}

func (c *instantClock) Now() time.Time {
	if c.now.IsZero() {
		return time.Now()
	}
	return c.now
}
