package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/uhyunpark/tradewire/pkg/ledger"
	"github.com/uhyunpark/tradewire/pkg/metrics"
	"github.com/uhyunpark/tradewire/pkg/order"
	"github.com/uhyunpark/tradewire/pkg/storage"
	"github.com/uhyunpark/tradewire/pkg/transport"
)

// Openers connect the supervisor to its collaborators. Journal is optional.
type Openers struct {
	Transport func(ctx context.Context) (transport.Transport, error)
	Ledger    func(ctx context.Context) (ledger.Gateway, error)
	Journal   func() (storage.Journal, error)
}

type SupervisorConfig struct {
	PollInterval  time.Duration
	ShutdownGrace time.Duration
	Publish       PublishConfig
	Consume       ConsumeConfig
}

// Supervisor owns startup and shutdown ordering and the polling loop.
type Supervisor struct {
	cfg    SupervisorConfig
	open   Openers
	prices *order.PriceBook
	log    *zap.SugaredLogger
	m      *metrics.Metrics

	mu       sync.Mutex
	started  bool
	tr       transport.Transport
	gw       ledger.Gateway
	journal  storage.Journal
	pub      *Publisher
	cons     *Consumer
	stopPoll context.CancelFunc
	pollDone chan struct{}

	stopOnce sync.Once
	stopErr  error
}

func NewSupervisor(cfg SupervisorConfig, open Openers, prices *order.PriceBook, log *zap.SugaredLogger, m *metrics.Metrics) *Supervisor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 100 * time.Millisecond
	}
	return &Supervisor{cfg: cfg, open: open, prices: prices, log: log, m: m}
}

// Start brings up the transport, then the ledger, then begins polling. On any
// failure everything opened so far is released and the error is returned.
func (s *Supervisor) Start(ctx context.Context) error {
	if err := s.start(ctx); err != nil {
		_ = s.Stop()
		return err
	}
	return nil
}

func (s *Supervisor) start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.New("supervisor already started")
	}
	s.started = true

	tr, err := s.open.Transport(ctx)
	if err != nil {
		return fmt.Errorf("transport init: %w", err)
	}
	s.tr = tr

	gw, err := s.open.Ledger(ctx)
	if err != nil {
		return fmt.Errorf("ledger init: %w", err)
	}
	s.gw = gw

	s.journal = storage.NopJournal{}
	if s.open.Journal != nil {
		j, err := s.open.Journal()
		if err != nil {
			return fmt.Errorf("journal init: %w", err)
		}
		s.journal = j
	}
	s.reportLeftovers()

	s.pub = NewPublisher(s.tr, s.prices, s.cfg.Publish, s.log, s.m)
	s.cons = NewConsumer(s.tr, s.gw, s.journal, s.cfg.Consume, s.log, s.m)

	pollCtx, cancel := context.WithCancel(context.Background())
	s.stopPoll = cancel
	s.pollDone = make(chan struct{})
	go s.pollLoop(pollCtx, s.cons, s.pollDone)

	s.log.Infow("pipeline_started",
		"poll_interval", s.cfg.PollInterval,
		"poll_batch", s.cfg.Consume.PollBatch,
		"retry_bound", s.cfg.Publish.RetryBound)
	return nil
}

// reportLeftovers logs orders whose transaction was in flight when an
// earlier run stopped. They are not replayed.
func (s *Supervisor) reportLeftovers() {
	pending, err := s.journal.Pending()
	if err != nil {
		s.log.Warnw("journal_scan_failed", "err", err)
		return
	}
	for _, rec := range pending {
		s.log.Warnw("inflight_from_previous_run",
			"id", rec.ID, "asset", rec.Asset, "side", rec.Side,
			"quantity", rec.Quantity, "price", rec.Price, "started", rec.Started)
	}
	if len(pending) > 0 {
		if err := s.journal.Clear(); err != nil {
			s.log.Warnw("journal_clear_failed", "err", err)
		}
	}
}

// pollLoop runs every tick on one goroutine, so ticks cannot overlap; a tick
// that overruns makes the ticker drop the ticks it missed.
func (s *Supervisor) pollLoop(ctx context.Context, cons *Consumer, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	cons.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cons.Tick(ctx)
		}
	}
}

// Publisher returns the publish pipeline, or nil before a successful Start.
func (s *Supervisor) Publisher() *Publisher {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pub
}

// Stop shuts down in reverse order: polling, workers (bounded by
// ShutdownGrace), transport, ledger, journal. Safe to call more than once and
// after a failed Start.
func (s *Supervisor) Stop() error {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		if s.stopPoll != nil {
			s.stopPoll()
			<-s.pollDone
		}
		if s.cons != nil {
			s.cons.Close(s.cfg.ShutdownGrace)
		}

		var errs []error
		if s.tr != nil {
			if err := s.tr.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close transport: %w", err))
			}
		}
		if s.gw != nil {
			if err := s.gw.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close ledger: %w", err))
			}
		}
		if s.journal != nil {
			if err := s.journal.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close journal: %w", err))
			}
		}
		s.stopErr = errors.Join(errs...)
		s.log.Infow("pipeline_stopped", "err", s.stopErr)
	})
	return s.stopErr
}
