package registry

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"poolRental/internal/errs"
	"poolRental/internal/model"
)

type fakeReader struct {
	pools map[uint64]model.Pool
	calls int
}

func (f *fakeReader) GetPool(_ context.Context, chainID, poolID uint64) (model.Pool, error) {
	f.calls++
	pool, ok := f.pools[poolID]
	if !ok {
		return model.Pool{ChainID: chainID, PoolID: poolID}, nil
	}
	return pool, nil
}

func TestGetPoolCachesExisting(t *testing.T) {
	reader := &fakeReader{pools: map[uint64]model.Pool{
		1: {ChainID: 56, PoolID: 1, Owner: "0xaa", Exists: true},
	}}
	reg := New(reader, nil, time.Minute, nil)

	for i := 0; i < 3; i++ {
		pool, err := reg.GetPool(context.Background(), 56, 1)
		if err != nil {
			t.Fatalf("get pool: %v", err)
		}
		if pool.Owner != "0xaa" {
			t.Fatalf("owner: got %s", pool.Owner)
		}
	}

	if reader.calls != 1 {
		t.Fatalf("expected single chain read, got %d", reader.calls)
	}
}

func TestGetPoolMissingIsNotFoundAndNotCached(t *testing.T) {
	reader := &fakeReader{pools: map[uint64]model.Pool{}}
	reg := New(reader, nil, time.Minute, nil)

	if _, err := reg.GetPool(context.Background(), 56, 9); !errors.Is(err, ErrPoolNotFound) {
		t.Fatalf("expected ErrPoolNotFound, got %v", err)
	}

	// Pool appears on-chain; the registry must see it immediately.
	reader.pools[9] = model.Pool{ChainID: 56, PoolID: 9, Exists: true}
	if _, err := reg.GetPool(context.Background(), 56, 9); err != nil {
		t.Fatalf("expected pool after creation, got %v", err)
	}
	if reader.calls != 2 {
		t.Fatalf("expected 2 chain reads, got %d", reader.calls)
	}
}

func TestGetPoolTTLExpiry(t *testing.T) {
	reader := &fakeReader{pools: map[uint64]model.Pool{
		1: {ChainID: 56, PoolID: 1, Exists: true},
	}}
	reg := New(reader, nil, time.Minute, nil)

	current := time.Unix(1_700_000_000, 0)
	reg.now = func() time.Time { return current }

	if _, err := reg.GetPool(context.Background(), 56, 1); err != nil {
		t.Fatalf("get pool: %v", err)
	}

	current = current.Add(2 * time.Minute)
	if _, err := reg.GetPool(context.Background(), 56, 1); err != nil {
		t.Fatalf("get pool: %v", err)
	}

	if reader.calls != 2 {
		t.Fatalf("expected cache refresh after ttl, got %d reads", reader.calls)
	}
}

type fakeWriter struct {
	method string
	hash   common.Hash
}

func (f *fakeWriter) Submit(_ context.Context, _ uint64, method string, _ ...interface{}) (common.Hash, error) {
	f.method = method
	return f.hash, nil
}

func TestCreatePoolSubmits(t *testing.T) {
	writer := &fakeWriter{hash: common.HexToHash("0x01")}
	reg := New(&fakeReader{}, writer, time.Minute, nil)

	token0 := common.HexToAddress("0x1111111111111111111111111111111111111111")
	token1 := common.HexToAddress("0x2222222222222222222222222222222222222222")

	txHash, err := reg.CreatePool(context.Background(), 56, token0, token1, big.NewInt(100), big.NewInt(200))
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	if txHash != writer.hash {
		t.Fatalf("tx hash: got %s", txHash.Hex())
	}
	if writer.method != "createPool" {
		t.Fatalf("method: got %s", writer.method)
	}
}

func TestCreatePoolValidation(t *testing.T) {
	reg := New(&fakeReader{}, &fakeWriter{}, time.Minute, nil)

	_, err := reg.CreatePool(context.Background(), 56, common.Address{}, common.Address{}, big.NewInt(-1), big.NewInt(1))
	if errs.KindOf(err) != errs.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}

	noWriter := New(&fakeReader{}, nil, time.Minute, nil)
	if _, err := noWriter.CreatePool(context.Background(), 56, common.Address{}, common.Address{}, big.NewInt(1), big.NewInt(1)); err == nil {
		t.Fatal("expected error without writer")
	}
}
