package pipeline

import (
	"errors"

	"github.com/uhyunpark/tradewire/pkg/ledger"
	"github.com/uhyunpark/tradewire/pkg/order"
)

// Error kinds. Decode failures surface as *order.DecodeError.
var (
	ErrInvalidCommand     = order.ErrInvalidCommand
	ErrTransportSaturated = errors.New("transport saturated")
	ErrTransport          = errors.New("transport error")
	ErrLedger             = ledger.ErrLedger
)
