package model

// ProfitBreakdown is derived from ledger totals and rental terms on demand.
// It is never persisted as a source of truth.
type ProfitBreakdown struct {
	RentalID        uint64 `json:"rental_id"`
	TotalFeesEarned string `json:"total_fees_earned"`
	RentalCostPaid  string `json:"rental_cost_paid"`
	GasCostEstimate string `json:"gas_cost_estimate"`
	GrossProfit     string `json:"gross_profit"`
	NetProfit       string `json:"net_profit"`
	ROIBasisPoints  int64  `json:"roi_basis_points"`
}
