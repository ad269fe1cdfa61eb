package model

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Strategy is an on-chain yield destination the vault can allocate to.
// Name is the case-sensitive key used by the advisory service.
type Strategy struct {
	Name    string
	Address common.Address
	APY     decimal.Decimal // percent, e.g. 5.20
}

// Snapshot holds every configured strategy with APYs read in one cycle,
// in configuration order.
type Snapshot struct {
	Strategies []Strategy
	TakenAt    time.Time
}

// Len returns the number of strategies in the snapshot.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Strategies)
}

// Find looks up a strategy by exact name.
func (s *Snapshot) Find(name string) (Strategy, bool) {
	if s == nil {
		return Strategy{}, false
	}
	for _, st := range s.Strategies {
		if st.Name == name {
			return st, true
		}
	}
	return Strategy{}, false
}

// Recommendation is the advisory service's answer. It is untrusted until
// its Strategy matches a name in the current snapshot.
type Recommendation struct {
	Strategy string
	Reason   string
}

// VaultOverview holds vault-level totals read for reporting.
type VaultOverview struct {
	TotalAssets decimal.Decimal // USDC.e, 6 decimals applied
	TotalSupply decimal.Decimal // vault shares, 6 decimals applied
}
