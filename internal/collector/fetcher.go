package collector

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Fetcher defines the interface for read-only contract queries.
type Fetcher interface {
	// FetchAPY returns a strategy's raw apy(), scaled by 100.
	FetchAPY(ctx context.Context, strategy common.Address) (*big.Int, error)
	// FetchVaultTotals returns the vault's raw totalAssets() and totalSupply().
	FetchVaultTotals(ctx context.Context) (assets, supply *big.Int, err error)
	Name() string
}
