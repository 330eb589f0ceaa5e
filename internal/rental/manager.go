package rental

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"poolRental/internal/errs"
	"poolRental/internal/keylock"
	"poolRental/internal/ledger"
	"poolRental/internal/model"
	"poolRental/internal/profit"
)

var (
	ErrInvalidTerms      = &errs.Error{Kind: errs.KindValidation, Msg: "invalid rental terms"}
	ErrPoolAlreadyRented = &errs.Error{Kind: errs.KindConflict, Msg: "pool already rented"}
	ErrRentalNotFound    = &errs.Error{Kind: errs.KindNotFound, Msg: "rental not found"}
	ErrRentalNotActive   = &errs.Error{Kind: errs.KindConflict, Msg: "rental not active"}
	ErrAlreadyEnded      = &errs.Error{Kind: errs.KindConflict, Msg: "rental already ended"}
	ErrUnauthorizedActor = &errs.Error{Kind: errs.KindValidation, Msg: "actor may not end this rental"}
)

// Collateral is 120% of the computed rental cost.
var (
	collateralNum = big.NewInt(120)
	collateralDen = big.NewInt(100)
)

// PoolGetter confirms pool existence and ownership before a rental is
// created.
type PoolGetter interface {
	GetPool(ctx context.Context, chainID, poolID uint64) (model.Pool, error)
}

// Archiver persists ended rentals together with their swap history.
type Archiver interface {
	PutRental(ctx context.Context, rental model.Rental, swaps []model.SwapDetail) error
}

// SwapSubmitter submits rental contract transactions.
type SwapSubmitter interface {
	Submit(ctx context.Context, chainID uint64, method string, args ...interface{}) (common.Hash, error)
}

type rentalState struct {
	id             uint64
	chainID        uint64
	poolID         uint64
	renter         common.Address
	poolOwner      common.Address
	startTime      int64
	endTime        int64
	pricePerSecond *big.Int
	collateral     *big.Int
	active         bool
	swapCount      uint64
	totalVolume    *big.Int
	totalFees      *big.Int
	totalGas       *big.Int
}

// Manager owns the rental state machine: create, swap accounting, end.
// Mutation is serialized per pool and per rental through keyed locks so
// unrelated rentals proceed concurrently; chain reads never happen while
// a lock is held.
type Manager struct {
	pools     PoolGetter
	ledger    *ledger.Ledger
	archive   Archiver
	submitter SwapSubmitter
	logger    *zap.Logger
	now       func() int64

	poolLocks   *keylock.KeyLock
	rentalLocks *keylock.KeyLock

	mu           sync.RWMutex
	rentals      map[uint64]*rentalState
	activeByPool map[string]uint64
	nextID       uint64
}

func NewManager(pools PoolGetter, swapLedger *ledger.Ledger, archive Archiver, submitter SwapSubmitter, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		pools:        pools,
		ledger:       swapLedger,
		archive:      archive,
		submitter:    submitter,
		logger:       logger,
		now:          func() int64 { return time.Now().Unix() },
		poolLocks:    keylock.New(64),
		rentalLocks:  keylock.New(64),
		rentals:      make(map[uint64]*rentalState),
		activeByPool: make(map[string]uint64),
	}
}

func poolKey(chainID, poolID uint64) string {
	return fmt.Sprintf("pool:%d:%d", chainID, poolID)
}

func rentalKey(rentalID uint64) string {
	return fmt.Sprintf("rental:%d", rentalID)
}

// CreateRental validates terms, confirms the pool on-chain, locks
// collateral, and activates the rental. At most one active rental may
// hold a pool.
func (m *Manager) CreateRental(ctx context.Context, chainID, poolID uint64, renter common.Address, durationSeconds int64, pricePerSecond *big.Int) (uint64, error) {
	if durationSeconds <= 0 {
		return 0, ErrInvalidTerms
	}
	if pricePerSecond == nil || pricePerSecond.Sign() < 0 {
		return 0, ErrInvalidTerms
	}

	// Chain round trip happens before any lock is taken.
	pool, err := m.pools.GetPool(ctx, chainID, poolID)
	if err != nil {
		return 0, err
	}

	cost := new(big.Int).Mul(pricePerSecond, big.NewInt(durationSeconds))
	collateral := new(big.Int).Mul(cost, collateralNum)
	collateral.Quo(collateral, collateralDen)

	key := poolKey(chainID, poolID)
	m.poolLocks.Lock(key)
	defer m.poolLocks.Unlock(key)

	m.mu.Lock()
	if _, rented := m.activeByPool[key]; rented {
		m.mu.Unlock()
		return 0, ErrPoolAlreadyRented
	}

	m.nextID++
	now := m.now()
	state := &rentalState{
		id:             m.nextID,
		chainID:        chainID,
		poolID:         poolID,
		renter:         renter,
		poolOwner:      common.HexToAddress(pool.Owner),
		startTime:      now,
		endTime:        now + durationSeconds,
		pricePerSecond: new(big.Int).Set(pricePerSecond),
		collateral:     collateral,
		active:         true,
		totalVolume:    big.NewInt(0),
		totalFees:      big.NewInt(0),
		totalGas:       big.NewInt(0),
	}
	m.rentals[state.id] = state
	m.activeByPool[key] = state.id
	m.mu.Unlock()

	m.logger.Info("rental created",
		zap.Uint64("rental_id", state.id),
		zap.Uint64("chain_id", chainID),
		zap.Uint64("pool_id", poolID),
		zap.String("renter", renter.Hex()),
		zap.Int64("duration_s", durationSeconds),
		zap.String("collateral", collateral.String()),
	)
	return state.id, nil
}

// RecordSwap appends a swap to the rental's ledger and refreshes the
// running counters. A rental past its end time is finalized here before
// the check, so the end transition always wins the race.
func (m *Manager) RecordSwap(ctx context.Context, rentalID uint64, detail model.SwapDetail) (uint64, error) {
	state, err := m.state(rentalID)
	if err != nil {
		return 0, err
	}

	key := rentalKey(rentalID)
	m.rentalLocks.Lock(key)
	defer m.rentalLocks.Unlock(key)

	if !state.active {
		return 0, ErrRentalNotActive
	}
	now := m.now()
	if now > state.endTime {
		m.finalize(ctx, state, state.endTime)
		return 0, ErrRentalNotActive
	}

	if detail.Timestamp == 0 {
		detail.Timestamp = now
	}
	// A swap stamped past the scheduled end falls outside the paid
	// window and must never be credited to the rental.
	if detail.Timestamp > state.endTime {
		return 0, ErrRentalNotActive
	}
	seq, err := m.ledger.Append(rentalID, detail)
	if err != nil {
		return 0, err
	}

	totals := m.ledger.Totals(rentalID)
	state.swapCount = totals.SwapCount
	state.totalVolume = totals.TotalVolume
	state.totalFees = totals.TotalFeesEarned
	state.totalGas = totals.TotalGasCost

	return seq, nil
}

// ExecuteSwap submits an executeSwap transaction against the rental's
// chain. The swap's accounting lands later through RecordSwap once the
// result is known; submission only checks that the rental is live and
// the terms are well formed. No lock is held across the round trip.
func (m *Manager) ExecuteSwap(ctx context.Context, rentalID uint64, tokenIn common.Address, amountIn, minAmountOut *big.Int) (common.Hash, error) {
	if m.submitter == nil {
		return common.Hash{}, errs.Validationf("swap execution is not configured")
	}
	if amountIn == nil || amountIn.Sign() <= 0 {
		return common.Hash{}, errs.Validationf("amountIn must be positive")
	}
	if minAmountOut == nil || minAmountOut.Sign() < 0 {
		return common.Hash{}, errs.Validationf("minAmountOut must be non-negative")
	}

	state, err := m.state(rentalID)
	if err != nil {
		return common.Hash{}, err
	}

	key := rentalKey(rentalID)
	m.rentalLocks.Lock(key)
	live := state.active && m.now() <= state.endTime
	chainID := state.chainID
	m.rentalLocks.Unlock(key)
	if !live {
		return common.Hash{}, ErrRentalNotActive
	}

	txHash, err := m.submitter.Submit(ctx, chainID, "executeSwap",
		new(big.Int).SetUint64(rentalID), tokenIn, amountIn, minAmountOut)
	if err != nil {
		return common.Hash{}, err
	}

	m.logger.Info("swap submitted",
		zap.Uint64("rental_id", rentalID),
		zap.Uint64("chain_id", chainID),
		zap.String("tx", txHash.Hex()),
	)
	return txHash, nil
}

// EndRental ends an active rental. Only the renter or the pool owner may
// end it explicitly; expiry is handled by ExpireDue and by RecordSwap.
// Terminal: a second call reports ErrAlreadyEnded.
func (m *Manager) EndRental(ctx context.Context, rentalID uint64, actor common.Address) error {
	state, err := m.state(rentalID)
	if err != nil {
		return err
	}

	key := rentalKey(rentalID)
	m.rentalLocks.Lock(key)
	defer m.rentalLocks.Unlock(key)

	if !state.active {
		return ErrAlreadyEnded
	}
	if actor != state.renter && actor != state.poolOwner {
		return ErrUnauthorizedActor
	}

	endAt := m.now()
	if endAt > state.endTime {
		endAt = state.endTime
	}
	m.finalize(ctx, state, endAt)
	return nil
}

// ExpireDue finalizes every active rental whose end time has passed.
// Intended to run on a fixed interval.
func (m *Manager) ExpireDue(ctx context.Context) int {
	m.mu.RLock()
	ids := make([]uint64, 0, len(m.rentals))
	states := make([]*rentalState, 0, len(m.rentals))
	for id, state := range m.rentals {
		ids = append(ids, id)
		states = append(states, state)
	}
	m.mu.RUnlock()

	expired := 0
	for i, id := range ids {
		state := states[i]
		key := rentalKey(id)
		m.rentalLocks.Lock(key)
		if state.active && m.now() > state.endTime {
			m.finalize(ctx, state, state.endTime)
			expired++
		}
		m.rentalLocks.Unlock(key)
	}
	return expired
}

// finalize flips the rental to ended and releases the pool. Caller holds
// the rental lock.
func (m *Manager) finalize(ctx context.Context, state *rentalState, endAt int64) {
	state.active = false
	if endAt < state.endTime {
		state.endTime = endAt
	}

	key := poolKey(state.chainID, state.poolID)
	m.mu.Lock()
	if m.activeByPool[key] == state.id {
		delete(m.activeByPool, key)
	}
	m.mu.Unlock()

	fields := []zap.Field{
		zap.Uint64("rental_id", state.id),
		zap.Uint64("pool_id", state.poolID),
		zap.Int64("end_time", state.endTime),
		zap.Uint64("swap_count", state.swapCount),
	}
	totals := m.ledger.Totals(state.id)
	if breakdown, err := profit.Compute(state.snapshot(), totals, totals.TotalGasCost); err == nil {
		fields = append(fields,
			zap.String("net_profit", breakdown.NetProfit),
			zap.String("roi", profit.FormatROI(breakdown.ROIBasisPoints)),
		)
	}
	m.logger.Info("rental ended", fields...)

	if m.archive != nil {
		snapshot := state.snapshot()
		swaps := m.ledger.History(state.id)
		go func() {
			// Archive failures are logged, never block the end transition.
			if err := m.archive.PutRental(context.Background(), snapshot, swaps); err != nil {
				m.logger.Error("archive rental failed", zap.Uint64("rental_id", snapshot.RentalID), zap.Error(err))
			}
		}()
	}
}

func (m *Manager) state(rentalID uint64) (*rentalState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.rentals[rentalID]
	if !ok {
		return nil, ErrRentalNotFound
	}
	return state, nil
}

func (s *rentalState) snapshot() model.Rental {
	status := model.RentalStatusEnded
	if s.active {
		status = model.RentalStatusActive
	}
	return model.Rental{
		RentalID:        s.id,
		ChainID:         s.chainID,
		PoolID:          s.poolID,
		Renter:          s.renter.Hex(),
		PoolOwner:       s.poolOwner.Hex(),
		StartTime:       s.startTime,
		EndTime:         s.endTime,
		PricePerSecond:  model.FormatAmount(s.pricePerSecond),
		Collateral:      model.FormatAmount(s.collateral),
		Status:          status,
		SwapCount:       s.swapCount,
		TotalVolume:     model.FormatAmount(s.totalVolume),
		TotalFeesEarned: model.FormatAmount(s.totalFees),
		TotalGasCost:    model.FormatAmount(s.totalGas),
	}
}

// GetRental returns a snapshot of the rental.
func (m *Manager) GetRental(rentalID uint64) (model.Rental, error) {
	state, err := m.state(rentalID)
	if err != nil {
		return model.Rental{}, err
	}

	key := rentalKey(rentalID)
	m.rentalLocks.Lock(key)
	defer m.rentalLocks.Unlock(key)
	return state.snapshot(), nil
}

// RenterRentals lists rental IDs held by a renter on a chain, ascending.
func (m *Manager) RenterRentals(renter common.Address, chainID uint64) []uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]uint64, 0)
	for id, state := range m.rentals {
		if state.renter == renter && state.chainID == chainID {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// SwapHistory returns the rental's ledgered swaps in append order.
func (m *Manager) SwapHistory(rentalID uint64) ([]model.SwapDetail, error) {
	if _, err := m.state(rentalID); err != nil {
		return nil, err
	}
	return m.ledger.History(rentalID), nil
}

// Profit computes the rental's profit breakdown on demand. For a rental
// still running, the cost accrued so far is charged, clamped to the
// scheduled end.
func (m *Manager) Profit(rentalID uint64, gasCostEstimate *big.Int) (model.ProfitBreakdown, error) {
	state, err := m.state(rentalID)
	if err != nil {
		return model.ProfitBreakdown{}, err
	}

	key := rentalKey(rentalID)
	m.rentalLocks.Lock(key)
	snapshot := state.snapshot()
	m.rentalLocks.Unlock(key)

	if snapshot.Status == model.RentalStatusActive {
		now := m.now()
		if now < snapshot.EndTime {
			snapshot.EndTime = now
		}
	}

	if gasCostEstimate == nil {
		totals := m.ledger.Totals(rentalID)
		gasCostEstimate = totals.TotalGasCost
	}
	return profit.Compute(snapshot, m.ledger.Totals(rentalID), gasCostEstimate)
}
