package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"github.com/uhyunpark/tradewire/pkg/order"
)

// TradingABI describes the one contract method the gateway calls.
const TradingABI = `[{"type":"function","name":"executeTrade","stateMutability":"nonpayable","inputs":[{"name":"asset","type":"string"},{"name":"side","type":"string"},{"name":"quantity","type":"uint256"},{"name":"price","type":"uint256"}],"outputs":[]}]`

const executeTrade = "executeTrade"

type EthConfig struct {
	RPCURL          string
	PrivateKeyHex   string
	ContractAddress string
	ChainID         int64 // 0 = use the node's chain id
	ReceiptPoll     time.Duration
	ReceiptTimeout  time.Duration
	Logger          *zap.SugaredLogger
}

// Eth submits trades to the trading contract through a JSON-RPC node.
type Eth struct {
	client   *ethclient.Client
	contract *bind.BoundContract
	signer   *Signer
	chainID  *big.Int
	cfg      EthConfig

	// txMu serializes transaction construction: the transactor reads the
	// pending nonce, so two concurrent Transact calls could reuse it.
	txMu sync.Mutex
}

func DialEth(ctx context.Context, cfg EthConfig) (*Eth, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	if cfg.ReceiptPoll <= 0 {
		cfg.ReceiptPoll = time.Second
	}
	if !common.IsHexAddress(cfg.ContractAddress) {
		return nil, fmt.Errorf("contract address %q is not a hex address", cfg.ContractAddress)
	}
	signer, err := FromPrivateKeyHex(cfg.PrivateKeyHex)
	if err != nil {
		return nil, err
	}
	parsed, err := abi.JSON(strings.NewReader(TradingABI))
	if err != nil {
		return nil, fmt.Errorf("parse trading abi: %w", err)
	}

	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.RPCURL, err)
	}
	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("query chain id: %w", err)
	}
	if cfg.ChainID != 0 && chainID.Int64() != cfg.ChainID {
		client.Close()
		return nil, fmt.Errorf("chain id mismatch: node %s, configured %d", chainID, cfg.ChainID)
	}

	addr := common.HexToAddress(cfg.ContractAddress)
	g := &Eth{
		client:   client,
		contract: bind.NewBoundContract(addr, parsed, client, client, client),
		signer:   signer,
		chainID:  chainID,
		cfg:      cfg,
	}
	cfg.Logger.Infow("ledger_ready", "contract", addr.Hex(), "chain_id", chainID.String(), "from", signer.Address().Hex())
	return g, nil
}

func (g *Eth) SubmitTrade(ctx context.Context, sub order.LedgerSubmission) (Confirmation, error) {
	tx, err := g.transact(ctx, sub)
	if err != nil {
		return Confirmation{}, fmt.Errorf("%w: %s: %w", ErrLedger, executeTrade, err)
	}

	receipt, err := g.waitReceipt(ctx, tx.Hash())
	if err != nil {
		return Confirmation{}, fmt.Errorf("%w: receipt %s: %w", ErrLedger, tx.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return Confirmation{}, fmt.Errorf("%w: transaction %s reverted", ErrLedger, tx.Hash().Hex())
	}
	return Confirmation{TxID: tx.Hash().Hex()}, nil
}

func (g *Eth) transact(ctx context.Context, sub order.LedgerSubmission) (*types.Transaction, error) {
	g.txMu.Lock()
	defer g.txMu.Unlock()

	opts, err := bind.NewKeyedTransactorWithChainID(g.signer.privateKey, g.chainID)
	if err != nil {
		return nil, err
	}
	opts.Context = ctx
	return g.contract.Transact(opts, executeTrade, sub.Asset, sub.Side, sub.Quantity, sub.Price)
}

// waitReceipt polls until the transaction is mined or ReceiptTimeout passes.
func (g *Eth) waitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	if g.cfg.ReceiptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.cfg.ReceiptTimeout)
		defer cancel()
	}
	ticker := time.NewTicker(g.cfg.ReceiptPoll)
	defer ticker.Stop()

	for {
		receipt, err := g.client.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (g *Eth) Close() error {
	g.client.Close()
	return nil
}

var _ Gateway = (*Eth)(nil)
