package channel

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"poolRental/internal/chain"
	"poolRental/internal/errs"
	"poolRental/internal/keylock"
	"poolRental/internal/model"
)

var (
	ErrChannelNotFound       = &errs.Error{Kind: errs.KindNotFound, Msg: "channel not found"}
	ErrChannelNotOpen        = &errs.Error{Kind: errs.KindConflict, Msg: "channel not open"}
	ErrChannelAlreadySettled = &errs.Error{Kind: errs.KindConflict, Msg: "channel already settled"}
	ErrInvalidChannelID      = &errs.Error{Kind: errs.KindValidation, Msg: "invalid channel id"}
	ErrInvalidAmount         = &errs.Error{Kind: errs.KindValidation, Msg: "invalid amount"}
)

// Archiver persists settled channels.
type Archiver interface {
	PutChannel(ctx context.Context, channel model.Channel) error
}

type channelState struct {
	id          [32]byte
	participant common.Address
	token       common.Address
	deposited   *big.Int
	accrued     *big.Int
	status      model.ChannelStatus
	mock        bool
	txHash      common.Hash
}

// Manager owns the off-chain payment channel lifecycle:
// Opening -> Open -> Closing -> Settled, no transition skipping a state.
// The settlement strategy (keyed or mock) is fixed at construction.
type Manager struct {
	settler chain.Settler
	chainID uint64
	archive Archiver
	logger  *zap.Logger

	bootstrapOnce sync.Once
	bootstrapErr  error

	locks *keylock.KeyLock

	mu       sync.RWMutex
	channels map[[32]byte]*channelState
}

func NewManager(settler chain.Settler, chainID uint64, archive Archiver, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		settler:  settler,
		chainID:  chainID,
		archive:  archive,
		logger:   logger,
		locks:    keylock.New(32),
		channels: make(map[[32]byte]*channelState),
	}
}

// Bootstrap prepares the settlement connection. Idempotent: concurrent
// first calls share one connect sequence, later calls are no-ops.
func (m *Manager) Bootstrap(ctx context.Context) error {
	m.bootstrapOnce.Do(func() {
		m.bootstrapErr = m.settler.Connect(ctx)
	})
	return m.bootstrapErr
}

// OpenChannel deposits amount of token behind a fresh unpredictable
// 32-byte channel ID and transitions Opening -> Open. With the mock
// settler no funds move; the returned channel is flagged Mock so callers
// do not mistake it for a funded channel.
func (m *Manager) OpenChannel(ctx context.Context, participant, token common.Address, amount *big.Int) (model.Channel, error) {
	if amount == nil || amount.Sign() < 0 {
		return model.Channel{}, ErrInvalidAmount
	}
	if err := m.Bootstrap(ctx); err != nil {
		return model.Channel{}, errs.Upstreamf(err, "settlement bootstrap")
	}

	var id [32]byte
	if _, err := rand.Read(id[:]); err != nil {
		return model.Channel{}, fmt.Errorf("generate channel id: %w", err)
	}

	state := &channelState{
		id:          id,
		participant: participant,
		token:       token,
		deposited:   new(big.Int).Set(amount),
		accrued:     big.NewInt(0),
		status:      model.ChannelStatusOpening,
		mock:        m.settler.Mock(),
	}

	// Deposit happens outside any lock; the channel is not yet published.
	if _, err := m.settler.Submit(ctx, m.chainID, "openChannel", id, token, amount); err != nil {
		return model.Channel{}, errs.Upstreamf(err, "open channel deposit")
	}
	state.status = model.ChannelStatusOpen

	m.mu.Lock()
	m.channels[id] = state
	m.mu.Unlock()

	m.logger.Info("channel opened",
		zap.String("channel_id", formatID(id)),
		zap.String("token", token.Hex()),
		zap.String("amount", amount.String()),
		zap.Bool("mock", state.mock),
	)
	return state.snapshot(), nil
}

// Accrue adds delta to the channel's off-chain balance. No chain call.
func (m *Manager) Accrue(channelID [32]byte, delta *big.Int) error {
	if delta == nil || delta.Sign() < 0 {
		return ErrInvalidAmount
	}

	state, err := m.state(channelID)
	if err != nil {
		return err
	}

	key := formatID(channelID)
	m.locks.Lock(key)
	defer m.locks.Unlock(key)

	if state.status != model.ChannelStatusOpen {
		return ErrChannelNotOpen
	}
	state.accrued.Add(state.accrued, delta)
	return nil
}

// CloseChannel submits the final-balance settlement and transitions
// Open -> Closing -> Settled. A channel settles at most once: a stale or
// already-settled ID fails, never silently succeeds. If the keyed
// submission fails the close falls back to the mock sentinel so the
// caller can distinguish real settlement by inspecting Mock/tx hash.
func (m *Manager) CloseChannel(ctx context.Context, channelID [32]byte, finalBalance *big.Int) (model.Channel, error) {
	if finalBalance == nil || finalBalance.Sign() < 0 {
		return model.Channel{}, ErrInvalidAmount
	}

	state, err := m.state(channelID)
	if err != nil {
		return model.Channel{}, err
	}

	key := formatID(channelID)
	m.locks.Lock(key)
	if state.status == model.ChannelStatusSettled || state.status == model.ChannelStatusClosing {
		m.locks.Unlock(key)
		return model.Channel{}, ErrChannelAlreadySettled
	}
	if state.status != model.ChannelStatusOpen {
		m.locks.Unlock(key)
		return model.Channel{}, ErrChannelNotOpen
	}
	state.status = model.ChannelStatusClosing
	m.locks.Unlock(key)

	// Settlement round trip runs without holding the channel lock.
	txHash, err := m.settler.Submit(ctx, m.chainID, "settleChannel", channelID, finalBalance)
	mock := state.mock
	if err != nil {
		m.logger.Warn("settlement submission failed, falling back to mock",
			zap.String("channel_id", key),
			zap.Error(err),
		)
		txHash = chain.MockTxHash
		mock = true
	}

	m.locks.Lock(key)
	state.status = model.ChannelStatusSettled
	state.accrued = new(big.Int).Set(finalBalance)
	state.txHash = txHash
	state.mock = mock
	snapshot := state.snapshot()
	m.locks.Unlock(key)

	m.logger.Info("channel settled",
		zap.String("channel_id", key),
		zap.String("tx", txHash.Hex()),
		zap.Bool("mock", mock),
	)

	if m.archive != nil {
		go func() {
			if err := m.archive.PutChannel(context.Background(), snapshot); err != nil {
				m.logger.Error("archive channel failed", zap.String("channel_id", key), zap.Error(err))
			}
		}()
	}
	return snapshot, nil
}

// Get returns a snapshot of the channel.
func (m *Manager) Get(channelID [32]byte) (model.Channel, error) {
	state, err := m.state(channelID)
	if err != nil {
		return model.Channel{}, err
	}

	key := formatID(channelID)
	m.locks.Lock(key)
	defer m.locks.Unlock(key)
	return state.snapshot(), nil
}

func (m *Manager) state(channelID [32]byte) (*channelState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.channels[channelID]
	if !ok {
		return nil, ErrChannelNotFound
	}
	return state, nil
}

func (s *channelState) snapshot() model.Channel {
	out := model.Channel{
		ChannelID:       formatID(s.id),
		Participant:     s.participant.Hex(),
		Token:           s.token.Hex(),
		DepositedAmount: model.FormatAmount(s.deposited),
		AccruedBalance:  model.FormatAmount(s.accrued),
		Status:          s.status,
		Mock:            s.mock,
	}
	if s.txHash != (common.Hash{}) {
		out.SettlementTx = s.txHash.Hex()
	}
	return out
}

func formatID(id [32]byte) string {
	return "0x" + hex.EncodeToString(id[:])
}

// ParseID parses a 0x-prefixed 32-byte hex channel ID.
func ParseID(value string) ([32]byte, error) {
	var id [32]byte
	trimmed := strings.TrimPrefix(value, "0x")
	raw, err := hex.DecodeString(trimmed)
	if err != nil || len(raw) != 32 {
		return id, ErrInvalidChannelID
	}
	copy(id[:], raw)
	return id, nil
}
