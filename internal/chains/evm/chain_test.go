package evm

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/posdeploy/internal/chains"
)

// anvil's first dev account
const (
	testKey     = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	testAddress = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	testChainID = 31337
)

type stubRPC struct {
	mu sync.Mutex

	chainID     int64
	nonce       uint64
	baseFee     *big.Int
	estimate    uint64
	estimateErr error
	sendErr     error
	code        []byte

	receipt      *types.Receipt
	missReceipts int
	heads        []uint64
	headCalls    int

	sent []*types.Transaction
}

func (s *stubRPC) ChainID(context.Context) (*big.Int, error) {
	return big.NewInt(s.chainID), nil
}

func (s *stubRPC) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return s.nonce, nil
}

func (s *stubRPC) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	return &types.Header{Number: big.NewInt(1), BaseFee: s.baseFee}, nil
}

func (s *stubRPC) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(3_000_000_000), nil
}

func (s *stubRPC) SuggestGasTipCap(context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (s *stubRPC) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return s.estimate, s.estimateErr
}

func (s *stubRPC) SendTransaction(_ context.Context, tx *types.Transaction) error {
	if s.sendErr != nil {
		return s.sendErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, tx)
	return nil
}

func (s *stubRPC) TransactionReceipt(context.Context, common.Hash) (*types.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.missReceipts > 0 || s.receipt == nil {
		s.missReceipts--
		return nil, ethereum.NotFound
	}
	return s.receipt, nil
}

func (s *stubRPC) BlockNumber(context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.headCalls
	if i >= len(s.heads) {
		i = len(s.heads) - 1
	}
	s.headCalls++
	return s.heads[i], nil
}

func (s *stubRPC) CodeAt(context.Context, common.Address, *big.Int) ([]byte, error) {
	return s.code, nil
}

func testArtifact() *chains.Artifact {
	return &chains.Artifact{
		Name:       "Pos25",
		SourcePath: "contracts/Pos25.sol",
		ABI:        []byte(`[]`),
		Bytecode:   "0x6080604052348015600f57600080fd5b50",
	}
}

func newTestClient(t *testing.T, rpc *stubRPC) *Client {
	t.Helper()
	signer, err := NewSigner(testKey, testChainID)
	require.NoError(t, err)
	return NewClient(rpc, signer, WithPollInterval(time.Millisecond))
}

func TestNewSigner(t *testing.T) {
	signer, err := NewSigner("0x"+testKey, testChainID)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(testAddress), signer.Address())
	assert.Equal(t, int64(testChainID), signer.ChainID().Int64())

	_, err = NewSigner("not-a-key", testChainID)
	assert.ErrorIs(t, err, ErrInvalidSigningKey)
	assert.NotContains(t, err.Error(), "not-a-key")
}

func TestConfirmations(t *testing.T) {
	assert.Equal(t, uint64(0), Confirmations(99, 100))
	assert.Equal(t, uint64(1), Confirmations(100, 100))
	assert.Equal(t, uint64(10), Confirmations(109, 100))
}

func TestPendingTx_Wait(t *testing.T) {
	contract := common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	receipt := &types.Receipt{
		Status:          types.ReceiptStatusSuccessful,
		BlockNumber:     big.NewInt(100),
		ContractAddress: contract,
	}

	t.Run("waits until depth reached", func(t *testing.T) {
		rpc := &stubRPC{
			receipt:      receipt,
			missReceipts: 2,
			heads:        []uint64{100, 101, 102, 103, 104, 105, 106, 107, 108, 109},
		}
		p := NewPendingTx(rpc, common.Hash{1}, time.Millisecond, nil)

		addr, err := p.Wait(context.Background(), 10)
		require.NoError(t, err)
		assert.Equal(t, contract, addr)
		assert.Equal(t, 10, rpc.headCalls)
	})

	t.Run("single confirmation returns at inclusion", func(t *testing.T) {
		rpc := &stubRPC{receipt: receipt, heads: []uint64{100}}
		p := NewPendingTx(rpc, common.Hash{1}, time.Millisecond, nil)

		addr, err := p.Wait(context.Background(), 1)
		require.NoError(t, err)
		assert.Equal(t, contract, addr)
		assert.Equal(t, 1, rpc.headCalls)
	})

	t.Run("reverted receipt", func(t *testing.T) {
		rpc := &stubRPC{
			receipt: &types.Receipt{Status: types.ReceiptStatusFailed, BlockNumber: big.NewInt(7)},
			heads:   []uint64{7},
		}
		p := NewPendingTx(rpc, common.Hash{1}, time.Millisecond, nil)

		_, err := p.Wait(context.Background(), 1)
		assert.ErrorIs(t, err, ErrDeploymentReverted)
	})

	t.Run("context deadline", func(t *testing.T) {
		rpc := &stubRPC{heads: []uint64{1}}
		p := NewPendingTx(rpc, common.Hash{1}, time.Millisecond, nil)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		_, err := p.Wait(ctx, 1)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestSubmission_Pending(t *testing.T) {
	var nilSub *Submission
	_, ok := nilSub.Pending()
	assert.False(t, ok)

	_, ok = NewSubmission(common.Hash{}, common.Address{}, 0, common.Address{}, nil).Pending()
	assert.False(t, ok)

	w, ok := NewSubmission(common.Hash{}, common.Address{}, 0, common.Address{}, &PendingTx{}).Pending()
	assert.True(t, ok)
	assert.NotNil(t, w)
}

func TestClient_Deploy(t *testing.T) {
	t.Run("dynamic fee transaction", func(t *testing.T) {
		rpc := &stubRPC{nonce: 4, baseFee: big.NewInt(2_000_000_000), estimate: 100_000}
		c := newTestClient(t, rpc)

		sub, err := c.Deploy(context.Background(), testArtifact(), nil)
		require.NoError(t, err)
		require.Len(t, rpc.sent, 1)

		tx := rpc.sent[0]
		assert.Equal(t, uint8(types.DynamicFeeTxType), tx.Type())
		assert.Nil(t, tx.To())
		assert.Equal(t, uint64(4), tx.Nonce())
		assert.Equal(t, uint64(120_000), tx.Gas())
		assert.Zero(t, tx.GasFeeCap().Cmp(big.NewInt(5_000_000_000)))
		assert.Equal(t, common.FromHex(testArtifact().Bytecode), tx.Data())

		sender, err := types.Sender(types.LatestSignerForChainID(big.NewInt(testChainID)), tx)
		require.NoError(t, err)
		assert.Equal(t, common.HexToAddress(testAddress), sender)

		assert.Equal(t, tx.Hash(), sub.TxHash)
		assert.Equal(t, crypto.CreateAddress(sender, 4), sub.Address)
		_, ok := sub.Pending()
		assert.True(t, ok)
	})

	t.Run("legacy transaction without base fee", func(t *testing.T) {
		rpc := &stubRPC{estimate: 50_000}
		c := newTestClient(t, rpc)

		_, err := c.Deploy(context.Background(), testArtifact(), nil)
		require.NoError(t, err)
		require.Len(t, rpc.sent, 1)
		assert.Equal(t, uint8(types.LegacyTxType), rpc.sent[0].Type())
		assert.Zero(t, rpc.sent[0].GasPrice().Cmp(big.NewInt(3_000_000_000)))
	})

	t.Run("estimate failure is returned", func(t *testing.T) {
		rpc := &stubRPC{estimateErr: errors.New("insufficient funds for gas * price + value")}
		c := newTestClient(t, rpc)

		_, err := c.Deploy(context.Background(), testArtifact(), nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "insufficient funds")
		assert.Empty(t, rpc.sent)
	})

	t.Run("send failure is returned", func(t *testing.T) {
		sendErr := errors.New("nonce too low")
		rpc := &stubRPC{estimate: 50_000, sendErr: sendErr}
		c := newTestClient(t, rpc)

		_, err := c.Deploy(context.Background(), testArtifact(), nil)
		assert.ErrorIs(t, err, sendErr)
	})

	t.Run("unlinked libraries", func(t *testing.T) {
		rpc := &stubRPC{estimate: 50_000}
		c := newTestClient(t, rpc)

		artifact := testArtifact()
		artifact.Bytecode = "0x6080__$1234567890abcdef1234567890abcdef12$__6040"
		_, err := c.Deploy(context.Background(), artifact, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unlinked library")
		assert.Empty(t, rpc.sent)
	})
}

func TestClient_DeployedCode(t *testing.T) {
	rpc := &stubRPC{code: []byte{0x60, 0x80}}
	c := newTestClient(t, rpc)

	code, err := c.DeployedCode(context.Background(), common.Address{})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x60, 0x80}, code)
}

func TestEncodeConstructorArgs(t *testing.T) {
	withUint := []byte(`[{"type":"constructor","inputs":[{"name":"supply","type":"uint256"}],"stateMutability":"nonpayable"}]`)

	encoded, err := EncodeConstructorArgs([]byte(`[]`), nil)
	require.NoError(t, err)
	assert.Empty(t, encoded)

	encoded, err = EncodeConstructorArgs(withUint, []any{big.NewInt(25)})
	require.NoError(t, err)
	require.Len(t, encoded, 32)
	assert.Equal(t, byte(25), encoded[31])

	_, err = EncodeConstructorArgs(withUint, nil)
	assert.Error(t, err)

	_, err = EncodeConstructorArgs([]byte(`not json`), nil)
	assert.Error(t, err)
}
