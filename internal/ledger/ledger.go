package ledger

import (
	"math/big"
	"sync"

	"poolRental/internal/errs"
	"poolRental/internal/model"
)

// Totals holds the running aggregates for one rental, maintained at
// append time so reads are O(1).
type Totals struct {
	SwapCount       uint64
	TotalVolume     *big.Int
	TotalFeesEarned *big.Int
	TotalGasCost    *big.Int
}

func newTotals() *Totals {
	return &Totals{
		TotalVolume:     big.NewInt(0),
		TotalFeesEarned: big.NewInt(0),
		TotalGasCost:    big.NewInt(0),
	}
}

func (t *Totals) clone() Totals {
	return Totals{
		SwapCount:       t.SwapCount,
		TotalVolume:     new(big.Int).Set(t.TotalVolume),
		TotalFeesEarned: new(big.Int).Set(t.TotalFeesEarned),
		TotalGasCost:    new(big.Int).Set(t.TotalGasCost),
	}
}

// Ledger is an append-only record of swaps attributed to rentals.
// Entries are immutable once appended; sequence numbers are strictly
// increasing per rental, starting at 1.
type Ledger struct {
	mu      sync.RWMutex
	entries map[uint64][]model.SwapDetail
	totals  map[uint64]*Totals
}

func New() *Ledger {
	return &Ledger{
		entries: make(map[uint64][]model.SwapDetail),
		totals:  make(map[uint64]*Totals),
	}
}

// Append validates amounts, assigns the next sequence number, and folds
// the swap into the rental's running totals.
func (l *Ledger) Append(rentalID uint64, detail model.SwapDetail) (uint64, error) {
	amountIn, err := model.ParseAmount(detail.AmountIn)
	if err != nil {
		return 0, errs.Validationf("amount_in: %v", err)
	}
	fee, err := model.ParseAmount(detail.FeeCharged)
	if err != nil {
		return 0, errs.Validationf("fee_charged: %v", err)
	}
	gas, err := model.ParseAmount(detail.GasPrice)
	if err != nil {
		return 0, errs.Validationf("gas_price: %v", err)
	}
	if amountIn.Sign() < 0 || fee.Sign() < 0 || gas.Sign() < 0 {
		return 0, errs.Validationf("swap amounts must be non-negative")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	totals, ok := l.totals[rentalID]
	if !ok {
		totals = newTotals()
		l.totals[rentalID] = totals
	}

	detail.RentalID = rentalID
	detail.Sequence = uint64(len(l.entries[rentalID])) + 1
	l.entries[rentalID] = append(l.entries[rentalID], detail)

	totals.SwapCount++
	totals.TotalVolume.Add(totals.TotalVolume, amountIn)
	totals.TotalFeesEarned.Add(totals.TotalFeesEarned, fee)
	totals.TotalGasCost.Add(totals.TotalGasCost, gas)

	return detail.Sequence, nil
}

// Totals returns a copy of the running aggregates for a rental. A rental
// with no swaps yields zero totals.
func (l *Ledger) Totals(rentalID uint64) Totals {
	l.mu.RLock()
	defer l.mu.RUnlock()

	totals, ok := l.totals[rentalID]
	if !ok {
		return Totals{
			TotalVolume:     big.NewInt(0),
			TotalFeesEarned: big.NewInt(0),
			TotalGasCost:    big.NewInt(0),
		}
	}
	return totals.clone()
}

// History returns the rental's swaps in append order.
func (l *Ledger) History(rentalID uint64) []model.SwapDetail {
	l.mu.RLock()
	defer l.mu.RUnlock()

	src := l.entries[rentalID]
	out := make([]model.SwapDetail, len(src))
	copy(out, src)
	return out
}
