package model

// SwapDetail records a single swap executed against a rented pool.
// Immutable once appended to the ledger.
type SwapDetail struct {
	RentalID     uint64 `json:"rental_id"`
	Sequence     uint64 `json:"sequence"`
	Timestamp    int64  `json:"timestamp"`
	Swapper      string `json:"swapper"`
	TokenIn      string `json:"token_in"`
	TokenOut     string `json:"token_out"`
	AmountIn     string `json:"amount_in"`
	AmountOut    string `json:"amount_out"`
	GasPrice     string `json:"gas_price"`
	FeeCharged   string `json:"fee_charged"`
	SourceChain  uint64 `json:"source_chain"`
	DestChain    uint64 `json:"dest_chain"`
	IsCrossChain bool   `json:"is_cross_chain"`
}
