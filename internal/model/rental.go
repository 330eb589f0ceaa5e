package model

// RentalStatus is the lifecycle state of a rental.
type RentalStatus string

const (
	RentalStatusActive RentalStatus = "active"
	RentalStatusEnded  RentalStatus = "ended"
)

// Rental is a time-bounded lease of a pool to a renter.
// Monetary fields are base-unit integers carried as decimal strings.
type Rental struct {
	RentalID        uint64       `json:"rental_id"`
	ChainID         uint64       `json:"chain_id"`
	PoolID          uint64       `json:"pool_id"`
	Renter          string       `json:"renter"`
	PoolOwner       string       `json:"pool_owner"`
	StartTime       int64        `json:"start_time"`
	EndTime         int64        `json:"end_time"`
	PricePerSecond  string       `json:"price_per_second"`
	Collateral      string       `json:"collateral"`
	Status          RentalStatus `json:"status"`
	SwapCount       uint64       `json:"swap_count"`
	TotalVolume     string       `json:"total_volume"`
	TotalFeesEarned string       `json:"total_fees_earned"`
	TotalGasCost    string       `json:"total_gas_cost"`
}

// IsActive reports whether the rental is still in its active state.
func (r Rental) IsActive() bool {
	return r.Status == RentalStatusActive
}
