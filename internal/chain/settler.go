package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"poolRental/internal/errs"
)

// MockTxHash is the sentinel identifier returned by simulated
// settlement. Callers must check for it before treating a settlement as
// confirmed on-chain.
var MockTxHash = common.HexToHash("0x6d6f636b5f736574746c656d656e74")

const settlementGasLimit = 400_000

// Settler submits settlement transactions. The variant is chosen once at
// startup from configuration, never re-inferred per call.
type Settler interface {
	// Connect prepares the settler for submissions. Idempotent.
	Connect(ctx context.Context) error
	// Mock reports whether submissions are simulated.
	Mock() bool
	// Submit packs and sends a contract transaction on the given chain.
	Submit(ctx context.Context, chainID uint64, method string, args ...interface{}) (common.Hash, error)
}

// NewSettler picks the settlement strategy: a keyed settler when a
// signing key is configured, otherwise the mock settler.
func NewSettler(signingKeyHex string, client *Client, logger *zap.Logger) (Settler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if signingKeyHex == "" {
		logger.Warn("no signing key configured, settlement runs in mock mode")
		return &MockSettler{logger: logger}, nil
	}

	key, err := crypto.HexToECDSA(signingKeyHex)
	if err != nil {
		return nil, fmt.Errorf("parse signing key: %w", err)
	}
	return &KeyedSettler{
		client: client,
		key:    key,
		from:   crypto.PubkeyToAddress(key.PublicKey),
		logger: logger,
	}, nil
}

// KeyedSettler signs and broadcasts real settlement transactions.
type KeyedSettler struct {
	client *Client
	key    *ecdsa.PrivateKey
	from   common.Address
	logger *zap.Logger
}

func (s *KeyedSettler) Connect(ctx context.Context) error {
	// Endpoints dial lazily; nothing else to prepare.
	return nil
}

func (s *KeyedSettler) Mock() bool { return false }

func (s *KeyedSettler) Submit(ctx context.Context, chainID uint64, method string, args ...interface{}) (common.Hash, error) {
	parsed, err := RentalABI()
	if err != nil {
		return common.Hash{}, fmt.Errorf("parse abi: %w", err)
	}
	client, contract, err := s.client.endpoint(ctx, chainID)
	if err != nil {
		return common.Hash{}, err
	}

	data, err := parsed.Pack(method, args...)
	if err != nil {
		return common.Hash{}, fmt.Errorf("pack %s: %w", method, err)
	}

	nonce, err := client.PendingNonceAt(ctx, s.from)
	if err != nil {
		return common.Hash{}, errs.Upstreamf(err, "nonce for %s", s.from.Hex())
	}
	gasPrice, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, errs.Upstreamf(err, "suggest gas price")
	}

	tx := types.NewTransaction(nonce, contract, big.NewInt(0), settlementGasLimit, gasPrice, data)
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(new(big.Int).SetUint64(chainID)), s.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign %s: %w", method, err)
	}

	if err := client.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, errs.Upstreamf(err, "send %s on chain %d", method, chainID)
	}

	s.logger.Info("settlement tx submitted",
		zap.String("method", method),
		zap.Uint64("chain_id", chainID),
		zap.String("tx", signed.Hash().Hex()),
	)
	return signed.Hash(), nil
}

// MockSettler simulates settlement without any on-chain effect.
type MockSettler struct {
	logger *zap.Logger
}

func NewMockSettler(logger *zap.Logger) *MockSettler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MockSettler{logger: logger}
}

func (s *MockSettler) Connect(ctx context.Context) error { return nil }

func (s *MockSettler) Mock() bool { return true }

func (s *MockSettler) Submit(ctx context.Context, chainID uint64, method string, args ...interface{}) (common.Hash, error) {
	s.logger.Debug("mock settlement", zap.String("method", method), zap.Uint64("chain_id", chainID))
	return MockTxHash, nil
}
