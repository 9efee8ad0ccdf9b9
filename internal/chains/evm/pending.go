package evm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ErrDeploymentReverted is returned when the creation transaction was mined but failed.
var ErrDeploymentReverted = errors.New("contract deployment reverted")

// Waiter blocks until a transaction reaches a confirmation depth and returns
// the created contract address.
type Waiter interface {
	Wait(ctx context.Context, confirmations uint64) (common.Address, error)
}

// Submission is a broadcast contract-creation transaction.
type Submission struct {
	TxHash  common.Hash
	From    common.Address
	Nonce   uint64
	Address common.Address // derived from sender and nonce, final once mined

	waiter Waiter
}

// NewSubmission creates a Submission. A nil waiter means no pending handle
// is available; callers must check Pending.
func NewSubmission(txHash common.Hash, from common.Address, nonce uint64, address common.Address, waiter Waiter) *Submission {
	return &Submission{
		TxHash:  txHash,
		From:    from,
		Nonce:   nonce,
		Address: address,
		waiter:  waiter,
	}
}

// Pending returns the handle used to wait for confirmations and whether one exists.
func (s *Submission) Pending() (Waiter, bool) {
	if s == nil || s.waiter == nil {
		return nil, false
	}
	return s.waiter, true
}

// receiptReader is the subset of the RPC client a PendingTx polls
type receiptReader interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// PendingTx polls the node until a transaction is buried deep enough.
type PendingTx struct {
	rpc      receiptReader
	hash     common.Hash
	interval time.Duration
	logger   *slog.Logger
}

// NewPendingTx creates a PendingTx for hash
func NewPendingTx(rpc receiptReader, hash common.Hash, interval time.Duration, logger *slog.Logger) *PendingTx {
	if interval <= 0 {
		interval = 4 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PendingTx{rpc: rpc, hash: hash, interval: interval, logger: logger}
}

// Confirmations returns how many blocks include a transaction mined in
// block included when the chain head is head. The inclusion block counts as one.
func Confirmations(head, included uint64) uint64 {
	if head < included {
		return 0
	}
	return head - included + 1
}

// Wait blocks until the transaction has at least the given number of
// confirmations. There is no timeout of its own; cancel ctx to stop waiting.
// Transient RPC errors are logged and polling continues.
func (p *PendingTx) Wait(ctx context.Context, confirmations uint64) (common.Address, error) {
	if confirmations == 0 {
		confirmations = 1
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		receipt, err := p.rpc.TransactionReceipt(ctx, p.hash)
		switch {
		case err == nil && receipt != nil:
			if receipt.Status != types.ReceiptStatusSuccessful {
				return common.Address{}, fmt.Errorf("%w: tx %s in block %s", ErrDeploymentReverted, p.hash.Hex(), receipt.BlockNumber)
			}

			head, err := p.rpc.BlockNumber(ctx)
			if err != nil {
				p.logger.Debug("block number unavailable", "tx", p.hash.Hex(), "error", err)
				break
			}

			got := Confirmations(head, receipt.BlockNumber.Uint64())
			p.logger.Debug("confirmation poll", "tx", p.hash.Hex(), "confirmations", got, "want", confirmations)
			if got >= confirmations {
				return receipt.ContractAddress, nil
			}
		case err != nil && !errors.Is(err, ethereum.NotFound):
			p.logger.Debug("receipt unavailable", "tx", p.hash.Hex(), "error", err)
		}

		select {
		case <-ctx.Done():
			return common.Address{}, fmt.Errorf("waiting for %d confirmations of %s: %w", confirmations, p.hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}
