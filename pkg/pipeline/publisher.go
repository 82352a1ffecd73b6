package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/uhyunpark/tradewire/pkg/metrics"
	"github.com/uhyunpark/tradewire/pkg/order"
	"github.com/uhyunpark/tradewire/pkg/transport"
	"github.com/uhyunpark/tradewire/pkg/util"
)

type PublishConfig struct {
	// RetryBound is the maximum number of offers per message, first attempt
	// included.
	RetryBound   int
	RetryBackoff time.Duration
}

// Publisher turns user commands into wire messages and offers them to the
// transport. Safe for concurrent use; each call is independent.
type Publisher struct {
	t      transport.Transport
	prices *order.PriceBook
	cfg    PublishConfig
	log    *zap.SugaredLogger
	m      *metrics.Metrics

	Clock util.Clock
}

func NewPublisher(t transport.Transport, prices *order.PriceBook, cfg PublishConfig, log *zap.SugaredLogger, m *metrics.Metrics) *Publisher {
	if cfg.RetryBound <= 0 {
		cfg.RetryBound = 1
	}
	return &Publisher{t: t, prices: prices, cfg: cfg, log: log, m: m, Clock: util.RealClock{}}
}

// Submit parses a "<b|s> <quantity> <asset>" command and publishes it. A
// malformed command fails with ErrInvalidCommand before any transport I/O.
func (p *Publisher) Submit(ctx context.Context, command string) error {
	p.log.Infow("command_received", "command", command)
	intent, err := order.ParseCommand(command)
	if err != nil {
		p.m.Commands.WithLabelValues("invalid").Inc()
		p.log.Warnw("command_rejected", "command", command, "err", err)
		return err
	}
	return p.Publish(ctx, intent)
}

// Publish prices and encodes the intent, then offers it until the transport
// accepts, reports a fatal error, or RetryBound offers were backpressured.
// Nothing is queued past the retry loop.
func (p *Publisher) Publish(ctx context.Context, intent order.TradeIntent) error {
	msg := order.Encode(p.prices.Quote(intent))

	for attempt := 1; ; attempt++ {
		res, err := p.t.Offer(ctx, msg)
		p.m.Offers.WithLabelValues(res.String()).Inc()

		switch res {
		case transport.Accepted:
			p.m.Commands.WithLabelValues("published").Inc()
			p.log.Infow("order_published", "message", string(msg), "attempts", attempt)
			return nil
		case transport.Fatal:
			if err == nil {
				err = errors.New("offer rejected")
			}
			p.m.Commands.WithLabelValues("transport_error").Inc()
			p.log.Errorw("publish_failed", "message", string(msg), "attempts", attempt, "err", err)
			return fmt.Errorf("%w: %w", ErrTransport, err)
		}

		if attempt >= p.cfg.RetryBound {
			p.m.Commands.WithLabelValues("saturated").Inc()
			p.log.Errorw("publish_saturated", "message", string(msg), "attempts", attempt)
			return fmt.Errorf("%w: dropped %q after %d offers", ErrTransportSaturated, msg, attempt)
		}
		p.log.Infow("offer_backpressured", "message", string(msg), "attempt", attempt, "backoff", p.cfg.RetryBackoff)

		select {
		case <-ctx.Done():
			p.m.Commands.WithLabelValues("canceled").Inc()
			p.log.Warnw("publish_canceled", "message", string(msg), "attempts", attempt, "err", ctx.Err())
			return ctx.Err()
		case <-p.Clock.After(p.cfg.RetryBackoff):
		}
	}
}
