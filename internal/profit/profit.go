package profit

import (
	"math"
	"math/big"

	"poolRental/internal/errs"
	"poolRental/internal/ledger"
	"poolRental/internal/model"
)

var basisPoints = big.NewInt(10_000)

// Compute derives a profit breakdown from rental terms and ledger totals.
// Pure: no clock and no I/O. The rental's EndTime is taken as the actual
// end of the paid period, so callers pass a snapshot clamped to now for
// still-active rentals.
//
// All division truncates toward zero. ROI is defined as 0 when the rental
// cost paid is zero; that is a policy choice, not an error.
func Compute(rental model.Rental, totals ledger.Totals, gasCostEstimate *big.Int) (model.ProfitBreakdown, error) {
	price, err := model.ParseAmount(rental.PricePerSecond)
	if err != nil {
		return model.ProfitBreakdown{}, errs.Validationf("price_per_second: %v", err)
	}
	duration := rental.EndTime - rental.StartTime
	if duration < 0 {
		return model.ProfitBreakdown{}, errs.Validationf("rental end before start")
	}
	if gasCostEstimate == nil {
		gasCostEstimate = big.NewInt(0)
	}

	fees := totals.TotalFeesEarned
	if fees == nil {
		fees = big.NewInt(0)
	}

	costPaid := new(big.Int).Mul(price, big.NewInt(duration))
	gross := new(big.Int).Sub(fees, costPaid)
	net := new(big.Int).Sub(gross, gasCostEstimate)

	return model.ProfitBreakdown{
		RentalID:        rental.RentalID,
		TotalFeesEarned: model.FormatAmount(fees),
		RentalCostPaid:  model.FormatAmount(costPaid),
		GasCostEstimate: model.FormatAmount(gasCostEstimate),
		GrossProfit:     model.FormatAmount(gross),
		NetProfit:       model.FormatAmount(net),
		ROIBasisPoints:  roi(net, costPaid),
	}, nil
}

func roi(net, costPaid *big.Int) int64 {
	if costPaid.Sign() == 0 {
		return 0
	}
	value := new(big.Int).Mul(net, basisPoints)
	value.Quo(value, costPaid)
	if !value.IsInt64() {
		if value.Sign() > 0 {
			return math.MaxInt64
		}
		return math.MinInt64
	}
	return value.Int64()
}
