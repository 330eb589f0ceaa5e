package profit

import (
	"math/big"
	"testing"

	"poolRental/internal/ledger"
	"poolRental/internal/model"
)

func totalsWithFees(fees int64) ledger.Totals {
	return ledger.Totals{
		SwapCount:       3,
		TotalVolume:     big.NewInt(0),
		TotalFeesEarned: big.NewInt(fees),
		TotalGasCost:    big.NewInt(0),
	}
}

func TestComputeLossScenario(t *testing.T) {
	// Hourly rental at 58 per second in milli-units, fees 1000+2000+3000,
	// gas estimate 500. Cost paid is 58*3600 = 208800.
	rental := model.Rental{
		RentalID:       1,
		StartTime:      1_700_000_000,
		EndTime:        1_700_003_600,
		PricePerSecond: "58",
	}

	breakdown, err := Compute(rental, totalsWithFees(6000), big.NewInt(500))
	if err != nil {
		t.Fatalf("compute: %v", err)
	}

	if breakdown.RentalCostPaid != "208800" {
		t.Fatalf("cost paid: got %s want 208800", breakdown.RentalCostPaid)
	}
	if breakdown.GrossProfit != "-202800" {
		t.Fatalf("gross: got %s want -202800", breakdown.GrossProfit)
	}
	if breakdown.NetProfit != "-203300" {
		t.Fatalf("net: got %s want -203300", breakdown.NetProfit)
	}
	// -203300 * 10000 / 208800 truncated toward zero.
	if breakdown.ROIBasisPoints != -9736 {
		t.Fatalf("roi: got %d want -9736", breakdown.ROIBasisPoints)
	}
}

func TestComputeZeroCostROIIsZero(t *testing.T) {
	rental := model.Rental{StartTime: 100, EndTime: 100, PricePerSecond: "58"}

	breakdown, err := Compute(rental, totalsWithFees(5000), nil)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if breakdown.ROIBasisPoints != 0 {
		t.Fatalf("roi for zero cost: got %d want 0", breakdown.ROIBasisPoints)
	}
	if breakdown.NetProfit != "5000" {
		t.Fatalf("net: got %s want 5000", breakdown.NetProfit)
	}
}

func TestComputePositiveROITruncates(t *testing.T) {
	rental := model.Rental{StartTime: 0, EndTime: 100, PricePerSecond: "10"}

	// cost = 1000, fees = 1333, net = 333, roi = 3330000/1000 = 3330.
	breakdown, err := Compute(rental, totalsWithFees(1333), big.NewInt(0))
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if breakdown.ROIBasisPoints != 3330 {
		t.Fatalf("roi: got %d want 3330", breakdown.ROIBasisPoints)
	}
}

func TestComputeRejectsNegativeDuration(t *testing.T) {
	rental := model.Rental{StartTime: 200, EndTime: 100, PricePerSecond: "1"}
	if _, err := Compute(rental, totalsWithFees(0), nil); err == nil {
		t.Fatal("expected error for end before start")
	}
}

func TestFormatUnits(t *testing.T) {
	cases := []struct {
		amount   int64
		decimals int32
		want     string
	}{
		{1500000, 6, "1.5"},
		{-203300, 3, "-203.3"},
		{42, 0, "42"},
	}
	for _, tc := range cases {
		if got := FormatUnits(big.NewInt(tc.amount), tc.decimals); got != tc.want {
			t.Fatalf("FormatUnits(%d, %d): got %s want %s", tc.amount, tc.decimals, got, tc.want)
		}
	}
	if got := FormatUnits(nil, 18); got != "0" {
		t.Fatalf("nil amount: got %s", got)
	}
}

func TestFormatROI(t *testing.T) {
	if got := FormatROI(150); got != "1.5%" {
		t.Fatalf("FormatROI(150): got %s", got)
	}
	if got := FormatROI(-9736); got != "-97.36%" {
		t.Fatalf("FormatROI(-9736): got %s", got)
	}
}
