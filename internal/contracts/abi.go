// Package contracts holds the ABI fragments the keeper calls.
package contracts

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Strategy contracts expose apy() in hundredths of a percent (520 = 5.20%).
const strategyABIJSON = `[
	{"inputs":[],"name":"apy","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

const vaultABIJSON = `[
	{"inputs":[],"name":"totalAssets","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"totalSupply","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"internalType":"address","name":"strategy","type":"address"}],"name":"harvest","outputs":[],"stateMutability":"nonpayable","type":"function"}
]`

const (
	MethodAPY         = "apy"
	MethodTotalAssets = "totalAssets"
	MethodTotalSupply = "totalSupply"
	MethodHarvest     = "harvest"
)

var (
	StrategyABI = mustParse(strategyABIJSON)
	VaultABI    = mustParse(vaultABIJSON)
)

func mustParse(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}
