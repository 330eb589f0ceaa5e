package model

// Pool is the read-only on-chain view of a rentable liquidity pool.
type Pool struct {
	ChainID            uint64 `json:"chain_id"`
	PoolID             uint64 `json:"pool_id"`
	Owner              string `json:"owner"`
	Token0             string `json:"token0"`
	Token1             string `json:"token1"`
	Amount0            string `json:"amount0"`
	Amount1            string `json:"amount1"`
	Exists             bool   `json:"exists"`
	TotalSwaps         uint64 `json:"total_swaps"`
	TotalFeesCollected string `json:"total_fees_collected"`
}
