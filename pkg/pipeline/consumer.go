package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/uhyunpark/tradewire/pkg/ledger"
	"github.com/uhyunpark/tradewire/pkg/metrics"
	"github.com/uhyunpark/tradewire/pkg/order"
	"github.com/uhyunpark/tradewire/pkg/storage"
	"github.com/uhyunpark/tradewire/pkg/transport"
	"github.com/uhyunpark/tradewire/pkg/util"
)

type ConsumeConfig struct {
	PollBatch int
	// MaxInFlight bounds concurrent ledger calls. Workers wait for a slot
	// inside their own goroutine, so the bound never stalls polling.
	MaxInFlight        int64
	FixedPointDecimals int32
}

// Consumer drains the transport and hands every decoded order to its own
// worker goroutine. Workers share no state beyond the gateway, the journal
// and the logger.
type Consumer struct {
	t       transport.Transport
	gw      ledger.Gateway
	journal storage.Journal
	cfg     ConsumeConfig
	log     *zap.SugaredLogger
	m       *metrics.Metrics

	sem        *semaphore.Weighted
	workCtx    context.Context
	cancelWork context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup

	Clock util.Clock
}

func NewConsumer(t transport.Transport, gw ledger.Gateway, journal storage.Journal, cfg ConsumeConfig, log *zap.SugaredLogger, m *metrics.Metrics) *Consumer {
	if cfg.PollBatch <= 0 {
		cfg.PollBatch = 1
	}
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = 1024
	}
	if journal == nil {
		journal = storage.NopJournal{}
	}
	workCtx, cancel := context.WithCancel(context.Background())
	return &Consumer{
		t: t, gw: gw, journal: journal, cfg: cfg, log: log, m: m,
		sem:        semaphore.NewWeighted(cfg.MaxInFlight),
		workCtx:    workCtx,
		cancelWork: cancel,
		Clock:      util.RealClock{},
	}
}

// Tick polls one batch. Transport errors are logged and swallowed; the next
// tick simply tries again. Returns the number of messages handled.
func (c *Consumer) Tick(ctx context.Context) int {
	n, err := c.t.Poll(ctx, c.cfg.PollBatch, c.handle)
	if err != nil && ctx.Err() == nil {
		c.m.PollErrors.Inc()
		c.log.Errorw("poll_failed", "err", err)
	}
	return n
}

func (c *Consumer) handle(msg []byte) {
	c.m.Received.Inc()
	o, err := order.Decode(msg)
	if err != nil {
		kind := "unknown"
		var de *order.DecodeError
		if errors.As(err, &de) {
			kind = de.Kind.String()
		}
		c.m.DecodeFailures.WithLabelValues(kind).Inc()
		c.log.Warnw("message_dropped", "message", string(msg), "err", err)
		return
	}
	c.log.Infow("order_received", "message", string(msg))
	c.dispatch(o)
}

// dispatch starts a worker unless the consumer is closing.
func (c *Consumer) dispatch(o order.PricedOrder) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.m.Submissions.WithLabelValues("rejected").Inc()
		c.log.Warnw("order_not_dispatched", "order", o.String(), "reason", "shutting down")
		return false
	}
	c.wg.Add(1)
	c.mu.Unlock()

	go c.work(o)
	return true
}

func (c *Consumer) work(o order.PricedOrder) {
	defer c.wg.Done()

	if err := c.sem.Acquire(c.workCtx, 1); err != nil {
		c.m.Submissions.WithLabelValues("rejected").Inc()
		c.log.Warnw("order_abandoned", "order", o.String(), "err", err)
		return
	}
	defer c.sem.Release(1)

	c.m.InFlight.Inc()
	defer c.m.InFlight.Dec()

	id := uuid.NewString()
	sub := order.ToSubmission(o, c.cfg.FixedPointDecimals)
	start := c.Clock.Now()

	if err := c.journal.Begin(storage.NewInFlight(id, sub, start)); err != nil {
		c.log.Warnw("journal_begin_failed", "id", id, "err", err)
	}
	defer func() {
		if err := c.journal.Finish(id); err != nil && !errors.Is(err, storage.ErrJournalClosed) {
			c.log.Warnw("journal_finish_failed", "id", id, "err", err)
		}
	}()

	c.log.Infow("ledger_submit", "id", id, "order", o.String())
	conf, err := c.gw.SubmitTrade(c.workCtx, sub)
	c.m.SubmitLatency.Observe(c.Clock.Now().Sub(start).Seconds())
	if err != nil {
		// No retry: the order is dropped.
		c.m.Submissions.WithLabelValues("failed").Inc()
		c.log.Errorw("ledger_submit_failed", "id", id, "order", o.String(), "err", err)
		return
	}
	c.m.Submissions.WithLabelValues("confirmed").Inc()
	c.log.Infow("trade_confirmed", "id", id, "order", o.String(), "tx", conf.TxID)
}

// Close stops admitting orders and waits up to grace for running workers.
// Workers still running after that are abandoned: their context is canceled
// and Close returns false without waiting further.
func (c *Consumer) Close(grace time.Duration) bool {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(grace)
	defer timer.Stop()
	defer c.cancelWork()

	select {
	case <-done:
		return true
	case <-timer.C:
		c.log.Warnw("workers_abandoned", "grace", grace)
		return false
	}
}
