package executor

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"YieldKeeper/internal/contracts"
	"YieldKeeper/internal/logger"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"
)

const defaultPollInterval = 2 * time.Second

// Backend is the subset of an Ethereum client used to submit and confirm
// the harvest transaction. *ethclient.Client satisfies it.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BlockNumber(ctx context.Context) (uint64, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Options tunes submission and confirmation.
type Options struct {
	// Confirmations is the number of blocks, including the inclusion block,
	// to wait for. Values below 1 are treated as 1.
	Confirmations uint64
	// Timeout bounds submission plus confirmation. Zero means unbounded.
	Timeout time.Duration
	// GasLimit overrides gas estimation when non-zero.
	GasLimit uint64
	// PollInterval is how often the receipt and head are polled.
	PollInterval time.Duration
}

// Submitter signs and sends vault.harvest(strategy) with the keeper's key.
// It holds the key exclusively: calls to Execute never overlap.
type Submitter struct {
	backend Backend
	key     *ecdsa.PrivateKey
	from    common.Address
	vault   common.Address
	opts    Options
	log     zerolog.Logger

	mu      sync.Mutex
	chainID *big.Int
}

// ParsePrivateKey parses a hex private key with or without 0x prefix.
func ParsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return key, nil
}

// NewSubmitter creates a Submitter for the given vault.
func NewSubmitter(backend Backend, key *ecdsa.PrivateKey, vault common.Address, opts Options) *Submitter {
	if opts.Confirmations < 1 {
		opts.Confirmations = 1
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	return &Submitter{
		backend: backend,
		key:     key,
		from:    crypto.PubkeyToAddress(key.PublicKey),
		vault:   vault,
		opts:    opts,
		log:     logger.For("executor"),
	}
}

// From returns the keeper account address.
func (s *Submitter) From() common.Address { return s.from }

// Confirmations returns the configured confirmation depth.
func (s *Submitter) Confirmations() uint64 { return s.opts.Confirmations }

// Execute submits exactly one harvest transaction for strategy and blocks
// until it has the configured confirmations. It never resubmits. Failures
// are returned as *TransactionError.
func (s *Submitter) Execute(ctx context.Context, strategy common.Address) (common.Hash, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	data, err := contracts.VaultABI.Pack(contracts.MethodHarvest, strategy)
	if err != nil {
		return common.Hash{}, &TransactionError{Err: fmt.Errorf("pack harvest: %w", err)}
	}

	tx, msg, err := s.buildTx(ctx, data)
	if err != nil {
		return common.Hash{}, err
	}
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(s.chainID), s.key)
	if err != nil {
		return common.Hash{}, &TransactionError{Err: fmt.Errorf("sign: %w", err)}
	}

	if err := s.backend.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, &TransactionError{Reason: revertReason(err), Err: fmt.Errorf("send: %w", err)}
	}
	hash := signed.Hash()
	s.log.Info().
		Str("tx", hash.Hex()).
		Str("strategy", strategy.Hex()).
		Uint64("nonce", signed.Nonce()).
		Uint64("gas", signed.Gas()).
		Msg("harvest submitted")

	receipt, err := s.waitMined(ctx, hash)
	if err != nil {
		return hash, &TransactionError{TxHash: hash, Err: err}
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		reason := s.replayRevert(ctx, msg, receipt.BlockNumber)
		return hash, &TransactionError{TxHash: hash, Reason: reason, Err: ErrReverted}
	}
	if err := s.waitConfirmations(ctx, receipt.BlockNumber.Uint64()); err != nil {
		return hash, &TransactionError{TxHash: hash, Err: err}
	}

	s.log.Info().
		Str("tx", hash.Hex()).
		Uint64("block", receipt.BlockNumber.Uint64()).
		Uint64("gas_used", receipt.GasUsed).
		Msg("harvest confirmed")
	return hash, nil
}

func (s *Submitter) buildTx(ctx context.Context, data []byte) (*types.Transaction, ethereum.CallMsg, error) {
	msg := ethereum.CallMsg{From: s.from, To: &s.vault, Data: data}

	if s.chainID == nil {
		id, err := s.backend.ChainID(ctx)
		if err != nil {
			return nil, msg, &TransactionError{Err: fmt.Errorf("chain id: %w", err)}
		}
		s.chainID = id
	}
	nonce, err := s.backend.PendingNonceAt(ctx, s.from)
	if err != nil {
		return nil, msg, &TransactionError{Err: fmt.Errorf("nonce: %w", err)}
	}
	gasPrice, err := s.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, msg, &TransactionError{Err: fmt.Errorf("gas price: %w", err)}
	}
	msg.GasPrice = gasPrice

	gas := s.opts.GasLimit
	if gas == 0 {
		// estimation executes the call, so a harvest that would revert fails here
		gas, err = s.backend.EstimateGas(ctx, msg)
		if err != nil {
			return nil, msg, &TransactionError{Reason: revertReason(err), Err: fmt.Errorf("estimate gas: %w", err)}
		}
	}
	msg.Gas = gas

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gas,
		To:       &s.vault,
		Data:     data,
	})
	return tx, msg, nil
}

func (s *Submitter) waitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	var lastErr error
	for {
		receipt, err := s.backend.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			if receipt.BlockNumber != nil {
				return receipt, nil
			}
			s.log.Warn().Str("tx", hash.Hex()).Msg("receipt without block number, polling again")
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			lastErr = err
			s.log.Warn().Err(err).Str("tx", hash.Hex()).Msg("receipt poll failed")
		}

		select {
		case <-ctx.Done():
			if lastErr != nil {
				return nil, fmt.Errorf("wait for receipt: %w (last poll error: %v)", ctx.Err(), lastErr)
			}
			return nil, fmt.Errorf("wait for receipt: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

func (s *Submitter) waitConfirmations(ctx context.Context, minedAt uint64) error {
	target := minedAt + s.opts.Confirmations - 1
	if target == minedAt {
		return nil
	}

	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	for {
		head, err := s.backend.BlockNumber(ctx)
		if err == nil && head >= target {
			return nil
		}
		if err != nil {
			s.log.Warn().Err(err).Msg("block number poll failed")
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("wait for %d confirmations: %w", s.opts.Confirmations, ctx.Err())
		case <-ticker.C:
		}
	}
}

// replayRevert re-executes the call at the inclusion block to recover the
// revert reason.
func (s *Submitter) replayRevert(ctx context.Context, msg ethereum.CallMsg, block *big.Int) string {
	_, err := s.backend.CallContract(ctx, msg, block)
	if err == nil {
		return ""
	}
	return revertReason(err)
}
