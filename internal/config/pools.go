package config

import "github.com/mevforge/searcher/internal/types"

// PoolConfig describes one tracked AMM pool deployment.
type PoolConfig struct {
	PairID   types.PairID
	Address  string
	TokenIn  string
	TokenOut string
	FeeBps   uint16
	// InIsToken0 orients the pair contract's reserve0 onto TokenIn.
	InIsToken0 bool
}

// DefaultPools returns the tracked pools for a chain. Ethereum mainnet is the
// only chain with a built-in set; other chains configure pools explicitly.
func DefaultPools(chainID uint64) []PoolConfig {
	if chainID != 1 {
		return nil
	}
	return []PoolConfig{
		{
			PairID:     "WETH/DAI@univ2",
			Address:    "0xA478c2975Ab1Ea89e8196811F51A7B7Ade33eB11",
			TokenIn:    "WETH",
			TokenOut:   "DAI",
			FeeBps:     30,
			InIsToken0: false, // DAI is token0
		},
		{
			PairID:     "WETH/DAI@sushi",
			Address:    "0xC3D03e4F041Fd4cD388c549Ee2A29a9E5075882f",
			TokenIn:    "WETH",
			TokenOut:   "DAI",
			FeeBps:     30,
			InIsToken0: false,
		},
		{
			PairID:     "WETH/USDC@univ2",
			Address:    "0xB4e16d0168e52d35CaCD2c6185b44281Ec28C9Dc",
			TokenIn:    "WETH",
			TokenOut:   "USDC",
			FeeBps:     30,
			InIsToken0: false,
		},
		{
			PairID:     "WETH/USDC@sushi",
			Address:    "0x397FF1542f962076d0BFE58eA045FfA2d347ACa0",
			TokenIn:    "WETH",
			TokenOut:   "USDC",
			FeeBps:     30,
			InIsToken0: false,
		},
	}
}

// TokenAddresses maps tracked token symbols onto their mainnet deployments,
// used for allowance checks and approvals.
func TokenAddresses(chainID uint64) map[string]string {
	if chainID != 1 {
		return nil
	}
	return map[string]string{
		"WETH": "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2",
		"DAI":  "0x6B175474E89094C44Da98b954EedeAC495271d0F",
		"USDC": "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
	}
}
