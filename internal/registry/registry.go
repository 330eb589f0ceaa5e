package registry

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"poolRental/internal/chain"
	"poolRental/internal/errs"
	"poolRental/internal/model"
)

const (
	poolReadRetries = 2
	poolReadBackoff = 200 * time.Millisecond
)

// ErrPoolNotFound is returned for pools whose on-chain exists flag is
// false or that the contract does not know.
var ErrPoolNotFound = &errs.Error{Kind: errs.KindNotFound, Msg: "pool not found"}

// PoolReader reads pool records from the chain.
type PoolReader interface {
	GetPool(ctx context.Context, chainID, poolID uint64) (model.Pool, error)
}

// PoolWriter submits pool contract transactions.
type PoolWriter interface {
	Submit(ctx context.Context, chainID uint64, method string, args ...interface{}) (common.Hash, error)
}

type cachedPool struct {
	pool      model.Pool
	fetchedAt time.Time
}

// Registry is a read-only view over on-chain pool existence and
// ownership. Existing pools are cached briefly; missing pools are
// re-read every time so a freshly created pool becomes rentable without
// waiting out a TTL.
type Registry struct {
	reader PoolReader
	writer PoolWriter
	ttl    time.Duration
	now    func() time.Time
	logger *zap.Logger

	mu    sync.RWMutex
	cache map[string]cachedPool
}

func New(reader PoolReader, writer PoolWriter, ttl time.Duration, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Registry{
		reader: reader,
		writer: writer,
		ttl:    ttl,
		now:    time.Now,
		logger: logger,
		cache:  make(map[string]cachedPool),
	}
}

func poolKey(chainID, poolID uint64) string {
	return fmt.Sprintf("%d:%d", chainID, poolID)
}

// GetPool returns the pool record, or ErrPoolNotFound when it does not
// exist. A pool with exists=false may never be rented.
func (r *Registry) GetPool(ctx context.Context, chainID, poolID uint64) (model.Pool, error) {
	key := poolKey(chainID, poolID)

	r.mu.RLock()
	entry, ok := r.cache[key]
	r.mu.RUnlock()
	if ok && r.now().Sub(entry.fetchedAt) < r.ttl {
		return entry.pool, nil
	}

	var pool model.Pool
	err := chain.WithRetry(ctx, poolReadRetries, poolReadBackoff, func(ctx context.Context) error {
		read, err := r.reader.GetPool(ctx, chainID, poolID)
		if err != nil {
			return err
		}
		pool = read
		return nil
	})
	if err != nil {
		return model.Pool{}, err
	}
	if !pool.Exists {
		return model.Pool{}, ErrPoolNotFound
	}

	r.mu.Lock()
	r.cache[key] = cachedPool{pool: pool, fetchedAt: r.now()}
	r.mu.Unlock()

	return pool, nil
}

// CreatePool submits a createPool transaction. The new pool is not
// cached; the next GetPool reads it from the chain once it lands.
func (r *Registry) CreatePool(ctx context.Context, chainID uint64, token0, token1 common.Address, amount0, amount1 *big.Int) (common.Hash, error) {
	if r.writer == nil {
		return common.Hash{}, errs.Validationf("pool creation is not configured")
	}
	if amount0 == nil || amount0.Sign() < 0 || amount1 == nil || amount1.Sign() < 0 {
		return common.Hash{}, errs.Validationf("pool amounts must be non-negative")
	}

	txHash, err := r.writer.Submit(ctx, chainID, "createPool", token0, token1, amount0, amount1)
	if err != nil {
		return common.Hash{}, err
	}

	r.logger.Info("pool creation submitted",
		zap.Uint64("chain_id", chainID),
		zap.String("tx", txHash.Hex()),
	)
	return txHash, nil
}
