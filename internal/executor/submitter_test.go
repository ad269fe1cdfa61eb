package executor

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"YieldKeeper/internal/contracts"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	vaultAddr    = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	strategyAddr = common.HexToAddress("0x00000000000000000000000000000000000000bb")
)

// rpcError mimics a JSON-RPC error carrying revert data.
type rpcError struct {
	msg  string
	data string
}

func (e *rpcError) Error() string          { return e.msg }
func (e *rpcError) ErrorData() interface{} { return e.data }

func revertError(t *testing.T, reason string) error {
	t.Helper()
	strType, err := abi.NewType("string", "", nil)
	require.NoError(t, err)
	packed, err := abi.Arguments{{Type: strType}}.Pack(reason)
	require.NoError(t, err)
	data := append(common.FromHex("0x08c379a0"), packed...)
	return &rpcError{msg: "execution reverted", data: hexutil.Encode(data)}
}

type fakeBackend struct {
	mu sync.Mutex

	chainID     *big.Int
	estimateErr error
	sendErr     error
	callErr     error
	status      uint64
	minedAt     uint64
	head        uint64
	// receiptAfter is the number of receipt polls that return NotFound
	receiptAfter int
	// neverMined makes every receipt poll return NotFound
	neverMined bool
	// blocklessReceipts is the number of receipts returned without a block number
	blocklessReceipts int

	sent         []*types.Transaction
	receiptPolls int
	headPolls    int
	estimates    []ethereum.CallMsg
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		chainID: big.NewInt(31337),
		status:  types.ReceiptStatusSuccessful,
		minedAt: 100,
		head:    100,
	}
}

func (f *fakeBackend) ChainID(context.Context) (*big.Int, error) { return f.chainID, nil }

func (f *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return 7, nil
}

func (f *fakeBackend) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (f *fakeBackend) EstimateGas(_ context.Context, msg ethereum.CallMsg) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.estimates = append(f.estimates, msg)
	if f.estimateErr != nil {
		return 0, f.estimateErr
	}
	return 90_000, nil
}

func (f *fakeBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, tx)
	return f.sendErr
}

func (f *fakeBackend) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.receiptPolls++
	if f.neverMined || f.receiptPolls <= f.receiptAfter {
		return nil, ethereum.NotFound
	}
	if f.blocklessReceipts > 0 {
		f.blocklessReceipts--
		return &types.Receipt{Status: f.status, TxHash: hash}, nil
	}
	return &types.Receipt{
		Status:      f.status,
		TxHash:      hash,
		BlockNumber: new(big.Int).SetUint64(f.minedAt),
		GasUsed:     50_000,
	}, nil
}

func (f *fakeBackend) BlockNumber(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.headPolls++
	f.head++
	return f.head, nil
}

func (f *fakeBackend) CallContract(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
	return nil, f.callErr
}

func (f *fakeBackend) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func newTestSubmitter(t *testing.T, b *fakeBackend, opts Options) *Submitter {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	if opts.PollInterval == 0 {
		opts.PollInterval = time.Millisecond
	}
	return NewSubmitter(b, key, vaultAddr, opts)
}

func TestExecute_Success(t *testing.T) {
	b := newFakeBackend()
	b.receiptAfter = 2
	s := newTestSubmitter(t, b, Options{Confirmations: 1, Timeout: time.Second})

	hash, err := s.Execute(context.Background(), strategyAddr)
	require.NoError(t, err)
	require.Len(t, b.sent, 1)

	tx := b.sent[0]
	assert.Equal(t, tx.Hash(), hash)
	assert.Equal(t, vaultAddr, *tx.To())
	assert.Equal(t, uint64(7), tx.Nonce())
	assert.Equal(t, uint64(90_000), tx.Gas())

	wantData, err := contracts.VaultABI.Pack(contracts.MethodHarvest, strategyAddr)
	require.NoError(t, err)
	assert.Equal(t, wantData, tx.Data())

	sender, err := types.Sender(types.LatestSignerForChainID(b.chainID), tx)
	require.NoError(t, err)
	assert.Equal(t, s.From(), sender)

	assert.Equal(t, 3, b.receiptPolls)
	assert.Zero(t, b.headPolls, "one confirmation needs no head polling")
}

func TestExecute_ConfiguredGasLimitSkipsEstimate(t *testing.T) {
	b := newFakeBackend()
	s := newTestSubmitter(t, b, Options{GasLimit: 300_000})

	_, err := s.Execute(context.Background(), strategyAddr)
	require.NoError(t, err)
	assert.Empty(t, b.estimates)
	assert.Equal(t, uint64(300_000), b.sent[0].Gas())
}

func TestExecute_WaitsForConfirmations(t *testing.T) {
	b := newFakeBackend()
	s := newTestSubmitter(t, b, Options{Confirmations: 3, Timeout: time.Second})

	_, err := s.Execute(context.Background(), strategyAddr)
	require.NoError(t, err)
	// head starts at the inclusion block and advances one per poll
	assert.Equal(t, 2, b.headPolls)
	assert.GreaterOrEqual(t, b.head, b.minedAt+2)
}

func TestExecute_ReceiptWithoutBlockNumberKeepsPolling(t *testing.T) {
	b := newFakeBackend()
	b.blocklessReceipts = 2
	s := newTestSubmitter(t, b, Options{Timeout: time.Second})

	hash, err := s.Execute(context.Background(), strategyAddr)
	require.NoError(t, err)
	assert.NotEqual(t, common.Hash{}, hash)
	assert.Equal(t, 3, b.receiptPolls)
	assert.Equal(t, 1, b.sentCount())
}

func TestExecute_RevertedReceipt(t *testing.T) {
	b := newFakeBackend()
	b.status = types.ReceiptStatusFailed
	b.callErr = revertError(t, "strategy paused")
	s := newTestSubmitter(t, b, Options{})

	hash, err := s.Execute(context.Background(), strategyAddr)
	require.Error(t, err)
	assert.NotEqual(t, common.Hash{}, hash)
	assert.ErrorIs(t, err, ErrReverted)

	var te *TransactionError
	require.True(t, errors.As(err, &te))
	assert.True(t, te.Submitted())
	assert.Equal(t, hash, te.TxHash)
	assert.Equal(t, "strategy paused", te.Reason)
	assert.Contains(t, err.Error(), "revert: strategy paused")
	assert.Equal(t, 1, b.sentCount())
}

func TestExecute_SendFailureIsNotRetried(t *testing.T) {
	b := newFakeBackend()
	b.sendErr = errors.New("insufficient funds for gas * price + value")
	s := newTestSubmitter(t, b, Options{})

	hash, err := s.Execute(context.Background(), strategyAddr)
	require.Error(t, err)
	assert.Equal(t, common.Hash{}, hash)
	assert.Equal(t, 1, b.sentCount())
	assert.Zero(t, b.receiptPolls)

	var te *TransactionError
	require.True(t, errors.As(err, &te))
	assert.False(t, te.Submitted())
	assert.Contains(t, err.Error(), "insufficient funds")
}

func TestExecute_EstimateRevert(t *testing.T) {
	b := newFakeBackend()
	b.estimateErr = revertError(t, "not a strategy")
	s := newTestSubmitter(t, b, Options{})

	_, err := s.Execute(context.Background(), strategyAddr)
	require.Error(t, err)
	assert.Zero(t, b.sentCount())

	var te *TransactionError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "not a strategy", te.Reason)
}

func TestExecute_Timeout(t *testing.T) {
	b := newFakeBackend()
	b.neverMined = true
	s := newTestSubmitter(t, b, Options{Timeout: 50 * time.Millisecond, PollInterval: 5 * time.Millisecond})

	start := time.Now()
	hash, err := s.Execute(context.Background(), strategyAddr)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.NotEqual(t, common.Hash{}, hash)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, b.sentCount())
}

func TestExecute_Serialized(t *testing.T) {
	b := newFakeBackend()
	s := newTestSubmitter(t, b, Options{Confirmations: 2})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Execute(context.Background(), strategyAddr)
		}()
	}
	wg.Wait()
	assert.Equal(t, 4, b.sentCount())
}

func TestParsePrivateKey(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	hexKey := hexutil.Encode(crypto.FromECDSA(key))

	for _, in := range []string{hexKey, hexKey[2:], "  " + hexKey + "\n"} {
		got, err := ParsePrivateKey(in)
		require.NoError(t, err)
		assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), crypto.PubkeyToAddress(got.PublicKey))
	}

	_, err = ParsePrivateKey("0xnothex")
	assert.Error(t, err)
}

func TestRevertReason_NoData(t *testing.T) {
	assert.Empty(t, revertReason(errors.New("plain")))
	assert.Empty(t, revertReason(&rpcError{msg: "x", data: "0xzz"}))
	assert.Equal(t, "boom", revertReason(revertError(t, "boom")))
}
