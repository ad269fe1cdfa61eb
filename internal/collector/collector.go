package collector

import (
	"context"
	"fmt"
	"time"

	"YieldKeeper/internal/logger"
	"YieldKeeper/internal/model"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// vault share token and USDC.e both use 6 decimals.
const vaultDecimals = 6

// ChainReadError identifies the strategy whose read failed.
type ChainReadError struct {
	Strategy string
	Address  common.Address
	Err      error
}

func (e *ChainReadError) Error() string {
	return fmt.Sprintf("read apy of %s (%s): %v", e.Strategy, e.Address.Hex(), e.Err)
}

func (e *ChainReadError) Unwrap() error { return e.Err }

// Collector reads strategy APYs and vault totals.
type Collector struct {
	Fetcher     Fetcher
	ReadTimeout time.Duration
	log         zerolog.Logger
}

// NewCollector creates a new Collector. readTimeout bounds each contract call;
// zero means no per-call bound beyond the caller's context.
func NewCollector(fetcher Fetcher, readTimeout time.Duration) *Collector {
	return &Collector{
		Fetcher:     fetcher,
		ReadTimeout: readTimeout,
		log:         logger.For("collector"),
	}
}

// Collect queries every strategy concurrently and returns a complete
// snapshot in configuration order. The first failing query cancels the
// others and is returned as a *ChainReadError.
func (c *Collector) Collect(ctx context.Context, strategies []model.Strategy) (*model.Snapshot, error) {
	snap := &model.Snapshot{
		Strategies: make([]model.Strategy, len(strategies)),
		TakenAt:    time.Now(),
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, st := range strategies {
		g.Go(func() error {
			callCtx, cancel := c.withTimeout(gctx)
			defer cancel()

			raw, err := c.Fetcher.FetchAPY(callCtx, st.Address)
			if err != nil {
				return &ChainReadError{Strategy: st.Name, Address: st.Address, Err: err}
			}
			st.APY = decimal.NewFromBigInt(raw, -2)
			snap.Strategies[i] = st
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	c.log.Debug().Int("strategies", len(snap.Strategies)).Str("source", c.Fetcher.Name()).Msg("snapshot collected")
	return snap, nil
}

// Overview reads vault totals for reporting.
func (c *Collector) Overview(ctx context.Context) (*model.VaultOverview, error) {
	callCtx, cancel := c.withTimeout(ctx)
	defer cancel()

	assets, supply, err := c.Fetcher.FetchVaultTotals(callCtx)
	if err != nil {
		return nil, fmt.Errorf("fetch vault totals: %w", err)
	}
	return &model.VaultOverview{
		TotalAssets: decimal.NewFromBigInt(assets, -vaultDecimals),
		TotalSupply: decimal.NewFromBigInt(supply, -vaultDecimals),
	}, nil
}

func (c *Collector) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.ReadTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.ReadTimeout)
}
