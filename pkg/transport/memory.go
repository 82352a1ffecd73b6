package transport

import (
	"context"
	"sync"
)

// Memory is an in-process transport backed by a bounded queue. A full queue
// reports backpressure.
type Memory struct {
	mu     sync.Mutex
	queue  chan []byte
	closed bool
}

func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = 1
	}
	return &Memory{queue: make(chan []byte, capacity)}
}

func (m *Memory) Offer(ctx context.Context, msg []byte) (OfferResult, error) {
	if err := ctx.Err(); err != nil {
		return Fatal, err
	}
	cp := append([]byte(nil), msg...)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return Fatal, ErrClosed
	}
	select {
	case m.queue <- cp:
		return Accepted, nil
	default:
		return Backpressured, nil
	}
}

func (m *Memory) Poll(ctx context.Context, max int, handler func(msg []byte)) (int, error) {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return 0, ErrClosed
	}

	n := 0
	for n < max {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		select {
		case msg := <-m.queue:
			handler(msg)
			n++
		default:
			return n, nil
		}
	}
	return n, nil
}

// Len returns queued messages (for tests/metrics if needed).
func (m *Memory) Len() int { return len(m.queue) }

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

var _ Transport = (*Memory)(nil)
