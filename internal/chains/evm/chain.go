// Package evm provides the EVM transport: signing, contract creation,
// confirmation waits and on-chain bytecode reads.
package evm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/pendergraft/posdeploy/internal/chains"
)

// ErrChainIDMismatch is returned when the RPC endpoint serves a different chain
// than the network profile expects.
var ErrChainIDMismatch = errors.New("chain ID mismatch")

// RPC is the subset of ethclient.Client the transport uses
type RPC interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BlockNumber(ctx context.Context) (uint64, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
}

// Client deploys contracts through a JSON-RPC endpoint
type Client struct {
	rpc          RPC
	signer       *Signer
	pollInterval time.Duration
	logger       *slog.Logger
	close        func()
}

// Option configures a Client
type Option func(*Client)

// WithPollInterval sets how often confirmation waits poll the node
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) {
		c.pollInterval = d
	}
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// NewClient creates a Client over an existing RPC connection
func NewClient(rpc RPC, signer *Signer, opts ...Option) *Client {
	c := &Client{
		rpc:          rpc,
		signer:       signer,
		pollInterval: 4 * time.Second,
		logger:       slog.Default(),
		close:        func() {},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dial connects to rpcURL, checks that it serves chainID and returns a
// Client signing with hexKey.
func Dial(ctx context.Context, rpcURL string, chainID int64, hexKey string, opts ...Option) (*Client, error) {
	signer, err := NewSigner(hexKey, chainID)
	if err != nil {
		return nil, err
	}

	ec, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to RPC: %w", err)
	}

	remote, err := ec.ChainID(ctx)
	if err != nil {
		ec.Close()
		return nil, fmt.Errorf("fetching chain ID: %w", err)
	}
	if remote.Int64() != chainID {
		ec.Close()
		return nil, fmt.Errorf("%w: endpoint reports %s, network expects %d", ErrChainIDMismatch, remote, chainID)
	}

	c := NewClient(ec, signer, opts...)
	c.close = ec.Close
	return c, nil
}

// Close closes the underlying RPC connection
func (c *Client) Close() {
	c.close()
}

// From returns the deployer address
func (c *Client) From() common.Address {
	return c.signer.Address()
}

// Deploy signs and broadcasts a contract-creation transaction for artifact.
// It returns as soon as the node accepts the transaction.
func (c *Client) Deploy(ctx context.Context, artifact *chains.Artifact, args []any) (*Submission, error) {
	data, err := CreationData(artifact, args)
	if err != nil {
		return nil, err
	}

	from := c.signer.Address()
	nonce, err := c.rpc.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("fetching nonce: %w", err)
	}

	gasLimit, err := c.rpc.EstimateGas(ctx, ethereum.CallMsg{
		From:  from,
		To:    nil, // Contract creation
		Value: big.NewInt(0),
		Data:  data,
	})
	if err != nil {
		return nil, fmt.Errorf("estimating gas: %w", err)
	}
	// Add 20% buffer to gas limit
	gasLimit = gasLimit * 120 / 100

	tx, err := c.buildTx(ctx, nonce, gasLimit, data)
	if err != nil {
		return nil, err
	}

	signedTx, err := c.signer.SignTransaction(tx)
	if err != nil {
		return nil, err
	}

	if err := c.rpc.SendTransaction(ctx, signedTx); err != nil {
		return nil, fmt.Errorf("send transaction: %w", err)
	}

	c.logger.Debug("contract creation broadcast",
		slog.String("tx", signedTx.Hash().Hex()),
		slog.Uint64("nonce", nonce),
		slog.Uint64("gas_limit", gasLimit),
	)

	pending := NewPendingTx(c.rpc, signedTx.Hash(), c.pollInterval, c.logger)
	return NewSubmission(signedTx.Hash(), from, nonce, crypto.CreateAddress(from, nonce), pending), nil
}

// buildTx creates an EIP-1559 transaction when the chain has a base fee and
// a legacy one otherwise
func (c *Client) buildTx(ctx context.Context, nonce, gasLimit uint64, data []byte) (*types.Transaction, error) {
	head, err := c.rpc.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("fetching head: %w", err)
	}

	if head.BaseFee == nil {
		gasPrice, err := c.rpc.SuggestGasPrice(ctx)
		if err != nil {
			return nil, fmt.Errorf("suggesting gas price: %w", err)
		}
		return types.NewContractCreation(nonce, big.NewInt(0), gasLimit, gasPrice, data), nil
	}

	tip, err := c.rpc.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("suggesting gas tip: %w", err)
	}
	feeCap := new(big.Int).Add(tip, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))

	return types.NewTx(&types.DynamicFeeTx{
		ChainID:   c.signer.ChainID(),
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gasLimit,
		To:        nil,
		Value:     big.NewInt(0),
		Data:      data,
	}), nil
}

// DeployedCode returns the runtime code at address
func (c *Client) DeployedCode(ctx context.Context, address common.Address) ([]byte, error) {
	code, err := c.rpc.CodeAt(ctx, address, nil)
	if err != nil {
		return nil, fmt.Errorf("eth_getCode: %w", err)
	}
	return code, nil
}

// CreationData returns the creation bytecode with ABI-encoded constructor
// arguments appended.
func CreationData(artifact *chains.Artifact, args []any) ([]byte, error) {
	if err := artifact.Validate(); err != nil {
		return nil, err
	}
	if HasLibraryPlaceholders(artifact.Bytecode) {
		return nil, fmt.Errorf("contract %s has unlinked library references", artifact.Name)
	}

	encoded, err := EncodeConstructorArgs(artifact.ABI, args)
	if err != nil {
		return nil, err
	}

	code := common.FromHex(artifact.Bytecode)
	data := make([]byte, 0, len(code)+len(encoded))
	data = append(data, code...)
	return append(data, encoded...), nil
}

// EncodeConstructorArgs ABI-encodes args against the constructor in abiJSON.
// It returns nil for a constructor without inputs.
func EncodeConstructorArgs(abiJSON []byte, args []any) ([]byte, error) {
	parsed, err := abi.JSON(bytes.NewReader(abiJSON))
	if err != nil {
		return nil, fmt.Errorf("parsing ABI: %w", err)
	}
	if len(parsed.Constructor.Inputs) != len(args) {
		return nil, fmt.Errorf("constructor expects %d arguments, got %d", len(parsed.Constructor.Inputs), len(args))
	}
	if len(args) == 0 {
		return nil, nil
	}
	encoded, err := parsed.Pack("", args...)
	if err != nil {
		return nil, fmt.Errorf("encoding constructor arguments: %w", err)
	}
	return encoded, nil
}
