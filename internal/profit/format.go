package profit

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// FormatUnits renders a base-unit amount in whole-token units at the
// given token decimals, for reports and logs.
func FormatUnits(amount *big.Int, decimals int32) string {
	if amount == nil {
		return "0"
	}
	return decimal.NewFromBigInt(amount, -decimals).String()
}

// FormatROI renders basis points as a percentage string, e.g. 150 -> "1.5%".
func FormatROI(bps int64) string {
	return decimal.NewFromInt(bps).Div(decimal.NewFromInt(100)).String() + "%"
}
