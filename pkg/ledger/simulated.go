package ledger

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/crypto/sha3"

	"github.com/uhyunpark/tradewire/pkg/order"
)

// Simulated is a dry-run gateway: it never touches a chain and returns a
// keccak digest of the submission as the transaction id.
type Simulated struct {
	latency time.Duration
	nonce   atomic.Uint64
	closed  atomic.Bool
}

func NewSimulated(latency time.Duration) *Simulated {
	return &Simulated{latency: latency}
}

func (s *Simulated) SubmitTrade(ctx context.Context, sub order.LedgerSubmission) (Confirmation, error) {
	if s.closed.Load() {
		return Confirmation{}, fmt.Errorf("%w: gateway closed", ErrLedger)
	}
	if s.latency > 0 {
		select {
		case <-ctx.Done():
			return Confirmation{}, fmt.Errorf("%w: %w", ErrLedger, ctx.Err())
		case <-time.After(s.latency):
		}
	}

	var n [8]byte
	binary.BigEndian.PutUint64(n[:], s.nonce.Add(1))

	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(sub.Asset))
	h.Write([]byte(sub.Side))
	h.Write(sub.Quantity.Bytes())
	h.Write(sub.Price.Bytes())
	h.Write(n[:])
	return Confirmation{TxID: "0x" + hex.EncodeToString(h.Sum(nil))}, nil
}

func (s *Simulated) Close() error {
	s.closed.Store(true)
	return nil
}

var _ Gateway = (*Simulated)(nil)
