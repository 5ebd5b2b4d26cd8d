package payments

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"FanatiquePay/internal/chain"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

const (
	defaultConfirmTimeout = 60 * time.Second
	defaultPollInterval   = 500 * time.Millisecond
	maxPollInterval       = 5 * time.Second
)

type Contract interface {
	OrderPaymentWithPermit(opts *bind.TransactOpts, payment chain.PaymentData, signature []byte, permit chain.PermitData) (*types.Transaction, error)
}

type Backend interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

type Request struct {
	OrderID   int64
	Buyer     common.Address
	Amount    *big.Int
	Deadline  *big.Int
	TokenID   *big.Int
	Signature []byte
	Permit    chain.PermitData
}

type Settlement struct {
	TxHash      string
	BlockNumber uint64
	GasUsed     uint64
}

// Gateway relays orderPaymentWithPermit from a single service wallet.
// Submissions are serialized so nonces are handed out in order.
type Gateway struct {
	Contract       Contract
	Backend        Backend
	Relay          *bind.TransactOpts
	GasLimit       uint64
	ConfirmTimeout time.Duration
	PollInterval   time.Duration
	Logger         *zap.Logger

	mu         sync.Mutex
	nonce      uint64
	nonceKnown bool
}

func NewGateway(contract Contract, backend Backend, key *ecdsa.PrivateKey, chainID *big.Int) (*Gateway, error) {
	relay, err := bind.NewKeyedTransactorWithChainID(key, chainID)
	if err != nil {
		return nil, err
	}
	return &Gateway{
		Contract:       contract,
		Backend:        backend,
		Relay:          relay,
		ConfirmTimeout: defaultConfirmTimeout,
		PollInterval:   defaultPollInterval,
		Logger:         zap.NewNop(),
	}, nil
}

func (g *Gateway) RelayAddress() common.Address {
	return g.Relay.From
}

// Submit signs and broadcasts the settlement and returns its hash.
// An empty hash means nothing left the process and the order can be retried.
// A hash with a non-nil error means the broadcast outcome is unknown.
func (g *Gateway) Submit(ctx context.Context, req Request) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.nonceKnown {
		n, err := g.Backend.PendingNonceAt(ctx, g.Relay.From)
		if err != nil {
			return "", fmt.Errorf("relay nonce: %w: %w", ErrChainUnavailable, err)
		}
		g.nonce = n
		g.nonceKnown = true
	}

	opts := &bind.TransactOpts{
		From:     g.Relay.From,
		Signer:   g.Relay.Signer,
		Nonce:    new(big.Int).SetUint64(g.nonce),
		GasLimit: g.GasLimit,
		Context:  ctx,
		NoSend:   true,
	}
	payment := chain.PaymentData{
		OrderId:  big.NewInt(req.OrderID),
		Buyer:    req.Buyer,
		Amount:   req.Amount,
		Deadline: req.Deadline,
		TokenId:  req.TokenID,
	}
	tx, err := g.Contract.OrderPaymentWithPermit(opts, payment, req.Signature, req.Permit)
	if err != nil {
		g.nonceKnown = false
		if isRevert(err) {
			return "", &RejectedError{Reason: err.Error(), Err: err}
		}
		return "", fmt.Errorf("submit settlement: %w: %w", ErrChainUnavailable, err)
	}

	hash := tx.Hash().Hex()
	if err := g.Backend.SendTransaction(ctx, tx); err != nil {
		g.nonceKnown = false
		g.logger().Warn("settlement broadcast failed",
			zap.Int64("order_id", req.OrderID),
			zap.String("tx_hash", hash),
			zap.Error(err),
		)
		return hash, &TimeoutError{TxHash: hash, Err: err}
	}
	g.nonce++

	g.logger().Info("settlement submitted",
		zap.Int64("order_id", req.OrderID),
		zap.String("tx_hash", hash),
		zap.Uint64("nonce", tx.Nonce()),
	)
	return hash, nil
}

// AwaitConfirmation polls for the receipt until it arrives or ConfirmTimeout passes.
func (g *Gateway) AwaitConfirmation(ctx context.Context, txHash string) (Settlement, error) {
	timeout := g.ConfirmTimeout
	if timeout <= 0 {
		timeout = defaultConfirmTimeout
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = g.PollInterval
	if b.InitialInterval <= 0 {
		b.InitialInterval = defaultPollInterval
	}
	b.MaxInterval = maxPollInterval
	b.MaxElapsedTime = 0

	hash := common.HexToHash(txHash)
	start := time.Now()
	receipt, err := backoff.RetryWithData(func() (*types.Receipt, error) {
		return g.Backend.TransactionReceipt(waitCtx, hash)
	}, backoff.WithContext(b, waitCtx))
	if err != nil {
		if waitCtx.Err() != nil {
			return Settlement{}, &TimeoutError{TxHash: txHash, Waited: time.Since(start).Round(time.Millisecond)}
		}
		return Settlement{}, err
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		return Settlement{}, &RejectedError{TxHash: txHash, Reason: "transaction reverted"}
	}
	s := Settlement{TxHash: txHash, GasUsed: receipt.GasUsed}
	if receipt.BlockNumber != nil {
		s.BlockNumber = receipt.BlockNumber.Uint64()
	}
	return s, nil
}

func (g *Gateway) logger() *zap.Logger {
	if g.Logger == nil {
		return zap.NewNop()
	}
	return g.Logger
}

// IsUnknownOutcome reports whether err leaves a broadcast settlement unresolved.
func IsUnknownOutcome(err error) bool {
	return errors.Is(err, ErrPaymentTimeout)
}
