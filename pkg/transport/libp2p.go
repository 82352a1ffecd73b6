package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"

	libp2p "github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type Libp2pConfig struct {
	ListenAddr string
	Bootstrap  []string
	Topic      string
	// InboundBuffer bounds messages received but not yet polled.
	InboundBuffer int
	// PublishRate is offers per second; zero means unlimited.
	PublishRate  float64
	PublishBurst int
	Logger       *zap.SugaredLogger
}

// Libp2p carries trade messages over a gossipsub topic. Messages published
// locally are delivered to the local subscription as well, so publisher and
// consumer can share one node.
type Libp2p struct {
	h     host.Host
	ps    *pubsub.PubSub
	topic *pubsub.Topic
	sub   *pubsub.Subscription
	log   *zap.SugaredLogger

	limiter *rate.Limiter
	inbound chan []byte

	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.RWMutex
	closed bool
}

func NewLibp2p(ctx context.Context, cfg Libp2pConfig) (*Libp2p, error) {
	if cfg.Topic == "" {
		return nil, errors.New("libp2p transport: empty topic")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	if cfg.InboundBuffer <= 0 {
		cfg.InboundBuffer = 1024
	}

	var opts []libp2p.Option
	if cfg.ListenAddr != "" {
		maddr, err := ma.NewMultiaddr(cfg.ListenAddr)
		if err != nil {
			return nil, fmt.Errorf("listen addr: %w", err)
		}
		opts = append(opts, libp2p.ListenAddrs(maddr))
	}
	h, err := libp2p.New(opts...)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	ps, err := pubsub.NewGossipSub(runCtx, h)
	if err != nil {
		cancel()
		h.Close()
		return nil, err
	}

	for _, bs := range cfg.Bootstrap {
		if err := connectMultiaddr(ctx, h, bs); err != nil {
			cfg.Logger.Warnw("bootstrap_connect_failed", "addr", bs, "err", err)
		}
	}

	topic, err := ps.Join(cfg.Topic)
	if err != nil {
		cancel()
		h.Close()
		return nil, err
	}
	sub, err := topic.Subscribe()
	if err != nil {
		cancel()
		topic.Close()
		h.Close()
		return nil, err
	}

	limit := rate.Inf
	if cfg.PublishRate > 0 {
		limit = rate.Limit(cfg.PublishRate)
	}
	burst := cfg.PublishBurst
	if burst <= 0 {
		burst = 1
	}

	t := &Libp2p{
		h: h, ps: ps, topic: topic, sub: sub, log: cfg.Logger,
		limiter: rate.NewLimiter(limit, burst),
		inbound: make(chan []byte, cfg.InboundBuffer),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go t.readLoop(runCtx)

	cfg.Logger.Infow("libp2p_ready", "peer", h.ID().String(), "listen", cfg.ListenAddr, "topic", cfg.Topic)
	return t, nil
}

func connectMultiaddr(ctx context.Context, h host.Host, addr string) error {
	m, err := ma.NewMultiaddr(addr)
	if err != nil {
		return err
	}
	info, err := peer.AddrInfoFromP2pAddr(m)
	if err != nil {
		return err
	}
	return h.Connect(ctx, *info)
}

func (t *Libp2p) Host() host.Host { return t.h }

// readLoop moves subscription messages into the inbound buffer. When the
// buffer is full it blocks, leaving flow control to gossipsub's own queue.
func (t *Libp2p) readLoop(ctx context.Context) {
	defer close(t.done)
	for {
		msg, err := t.sub.Next(ctx)
		if err != nil {
			return
		}
		select {
		case t.inbound <- msg.Data:
		case <-ctx.Done():
			return
		}
	}
}

func (t *Libp2p) Offer(ctx context.Context, msg []byte) (OfferResult, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return Fatal, ErrClosed
	}
	if !t.limiter.Allow() {
		return Backpressured, nil
	}
	if err := t.topic.Publish(ctx, msg); err != nil {
		return Fatal, fmt.Errorf("publish %s: %w", t.topic.String(), err)
	}
	return Accepted, nil
}

func (t *Libp2p) Poll(ctx context.Context, max int, handler func(msg []byte)) (int, error) {
	t.mu.RLock()
	closed := t.closed
	t.mu.RUnlock()
	if closed {
		return 0, ErrClosed
	}

	n := 0
	for n < max {
		select {
		case <-ctx.Done():
			return n, ctx.Err()
		case msg := <-t.inbound:
			handler(msg)
			n++
		default:
			return n, nil
		}
	}
	return n, nil
}

func (t *Libp2p) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	t.sub.Cancel()
	t.cancel()
	<-t.done

	// Cancel is processed asynchronously, so the topic may still count the
	// subscription; the host close below tears it down either way.
	if err := t.topic.Close(); err != nil {
		t.log.Debugw("topic_close_failed", "err", err)
	}
	return t.h.Close()
}

var _ Transport = (*Libp2p)(nil)
