package ledger

import (
	"context"
	"errors"

	"github.com/uhyunpark/tradewire/pkg/order"
)

// ErrLedger wraps every submission failure reported by a gateway.
var ErrLedger = errors.New("ledger error")

// Confirmation identifies an accepted transaction.
type Confirmation struct {
	TxID string
}

// Gateway submits trades to the settlement ledger. Implementations must
// accept concurrent SubmitTrade calls.
type Gateway interface {
	SubmitTrade(ctx context.Context, sub order.LedgerSubmission) (Confirmation, error)
	Close() error
}
