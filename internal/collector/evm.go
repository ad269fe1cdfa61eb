package collector

import (
	"context"
	"fmt"
	"math/big"

	"YieldKeeper/internal/contracts"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/time/rate"
)

// ContractCaller is the subset of an Ethereum client needed for eth_call.
type ContractCaller interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// EVMFetcher implements Fetcher with eth_call against an EVM JSON-RPC node.
type EVMFetcher struct {
	Caller  ContractCaller
	Vault   common.Address
	limiter *rate.Limiter
}

// NewEVMFetcher creates a fetcher. rps <= 0 disables throttling.
func NewEVMFetcher(caller ContractCaller, vault common.Address, rps float64) *EVMFetcher {
	f := &EVMFetcher{Caller: caller, Vault: vault}
	if rps > 0 {
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		f.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
	return f
}

func (f *EVMFetcher) Name() string { return "evm" }

func (f *EVMFetcher) FetchAPY(ctx context.Context, strategy common.Address) (*big.Int, error) {
	return f.callUint(ctx, strategy, contracts.StrategyABI, contracts.MethodAPY)
}

func (f *EVMFetcher) FetchVaultTotals(ctx context.Context) (*big.Int, *big.Int, error) {
	assets, err := f.callUint(ctx, f.Vault, contracts.VaultABI, contracts.MethodTotalAssets)
	if err != nil {
		return nil, nil, err
	}
	supply, err := f.callUint(ctx, f.Vault, contracts.VaultABI, contracts.MethodTotalSupply)
	if err != nil {
		return nil, nil, err
	}
	return assets, supply, nil
}

func (f *EVMFetcher) callUint(ctx context.Context, to common.Address, parsed abi.ABI, method string) (*big.Int, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%s: rate limit wait: %w", method, err)
		}
	}

	data, err := parsed.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("%s: pack: %w", method, err)
	}
	out, err := f.Caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: call %s: %w", method, to.Hex(), err)
	}
	values, err := parsed.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("%s: unpack: %w", method, err)
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("%s: expected 1 return value, got %d", method, len(values))
	}
	v, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected return type %T", method, values[0])
	}
	return v, nil
}
