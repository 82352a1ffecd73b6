package transport

import (
	"context"
	"errors"
)

// OfferResult is the outcome of a single non-blocking publish attempt.
type OfferResult int

const (
	Accepted OfferResult = iota
	// Backpressured means the transport cannot take data right now; the
	// caller may retry.
	Backpressured
	// Fatal means retrying will not help; an error accompanies it.
	Fatal
)

func (r OfferResult) String() string {
	switch r {
	case Accepted:
		return "accepted"
	case Backpressured:
		return "backpressured"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

var ErrClosed = errors.New("transport closed")

// Transport publishes and polls flat messages on one channel. Offer and Poll
// may be called concurrently from different goroutines.
type Transport interface {
	Offer(ctx context.Context, msg []byte) (OfferResult, error)
	// Poll hands at most max available messages to handler and returns how
	// many it delivered. It never waits for messages to arrive.
	Poll(ctx context.Context, max int, handler func(msg []byte)) (int, error)
	Close() error
}
