package chain

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"poolRental/internal/errs"
	"poolRental/internal/model"
)

// ErrUnsupportedChain rejects calls routed to a chain ID with no
// configured contract. An unmapped chain is an input error, never a
// silent default.
var ErrUnsupportedChain = &errs.Error{Kind: errs.KindValidation, Msg: "unsupported chain"}

// Route maps a chain ID to its RPC endpoint and rental contract address.
type Route struct {
	RPCURL   string
	Contract common.Address
}

// Client routes contract reads and writes across chains. Endpoints are
// dialed lazily on first use and reused. Dialing is guarded per chain,
// so a burst of first requests produces one connection per chain and a
// slow dial to one chain never blocks calls routed to another.
type Client struct {
	routes map[uint64]Route
	logger *zap.Logger

	mu      sync.Mutex
	clients map[uint64]*ethclient.Client
	dialing map[uint64]*sync.Mutex
}

func NewClient(routes map[uint64]Route, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		routes:  routes,
		logger:  logger,
		clients: make(map[uint64]*ethclient.Client),
		dialing: make(map[uint64]*sync.Mutex),
	}
}

// Supported reports whether a chain ID has a configured route.
func (c *Client) Supported(chainID uint64) bool {
	_, ok := c.routes[chainID]
	return ok
}

// Close closes all dialed endpoints.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, client := range c.clients {
		client.Close()
		delete(c.clients, id)
	}
}

func (c *Client) dialGuard(chainID uint64) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	guard, ok := c.dialing[chainID]
	if !ok {
		guard = &sync.Mutex{}
		c.dialing[chainID] = guard
	}
	return guard
}

func (c *Client) endpoint(ctx context.Context, chainID uint64) (*ethclient.Client, common.Address, error) {
	route, ok := c.routes[chainID]
	if !ok {
		return nil, common.Address{}, ErrUnsupportedChain
	}

	// The shared lock only guards the maps; the network round trip runs
	// under a per-chain guard so chains dial independently.
	guard := c.dialGuard(chainID)
	guard.Lock()
	defer guard.Unlock()

	c.mu.Lock()
	client, ok := c.clients[chainID]
	c.mu.Unlock()
	if ok {
		return client, route.Contract, nil
	}

	client, err := ethclient.DialContext(ctx, route.RPCURL)
	if err != nil {
		return nil, common.Address{}, errs.Upstreamf(err, "dial chain %d", chainID)
	}

	c.mu.Lock()
	c.clients[chainID] = client
	c.mu.Unlock()

	c.logger.Info("chain endpoint connected", zap.Uint64("chain_id", chainID), zap.String("rpc", route.RPCURL))
	return client, route.Contract, nil
}

func (c *Client) call(ctx context.Context, chainID uint64, method string, out interface{}, args ...interface{}) error {
	parsed, err := RentalABI()
	if err != nil {
		return fmt.Errorf("parse abi: %w", err)
	}
	client, contract, err := c.endpoint(ctx, chainID)
	if err != nil {
		return err
	}

	data, err := parsed.Pack(method, args...)
	if err != nil {
		return fmt.Errorf("pack %s: %w", method, err)
	}

	msg := ethereum.CallMsg{To: &contract, Data: data}
	raw, err := client.CallContract(ctx, msg, nil)
	if err != nil {
		return errs.Upstreamf(err, "call %s on chain %d", method, chainID)
	}

	if err := parsed.UnpackIntoInterface(out, method, raw); err != nil {
		return errs.Upstreamf(err, "unpack %s", method)
	}
	return nil
}

// GetPool reads the on-chain pool record. The exists flag is returned
// as-is; interpreting it is the registry's job.
func (c *Client) GetPool(ctx context.Context, chainID, poolID uint64) (model.Pool, error) {
	var out struct {
		Owner              common.Address
		Token0             common.Address
		Token1             common.Address
		Amount0            *big.Int
		Amount1            *big.Int
		Exists             bool
		TotalSwaps         *big.Int
		TotalFeesCollected *big.Int
	}
	if err := c.call(ctx, chainID, "getPool", &out, new(big.Int).SetUint64(poolID)); err != nil {
		return model.Pool{}, err
	}

	return model.Pool{
		ChainID:            chainID,
		PoolID:             poolID,
		Owner:              out.Owner.Hex(),
		Token0:             out.Token0.Hex(),
		Token1:             out.Token1.Hex(),
		Amount0:            model.FormatAmount(out.Amount0),
		Amount1:            model.FormatAmount(out.Amount1),
		Exists:             out.Exists,
		TotalSwaps:         out.TotalSwaps.Uint64(),
		TotalFeesCollected: model.FormatAmount(out.TotalFeesCollected),
	}, nil
}

// RenterRentals reads the renter's rental IDs from the chain contract.
func (c *Client) RenterRentals(ctx context.Context, chainID uint64, renter common.Address) ([]uint64, error) {
	var raw []*big.Int
	if err := c.call(ctx, chainID, "getRenterRentals", &raw, renter); err != nil {
		return nil, err
	}

	ids := make([]uint64, 0, len(raw))
	for _, id := range raw {
		ids = append(ids, id.Uint64())
	}
	return ids, nil
}

// GetRental reads an on-chain rental record.
func (c *Client) GetRental(ctx context.Context, chainID, rentalID uint64) (model.Rental, error) {
	var out struct {
		PoolId          *big.Int
		Renter          common.Address
		PoolOwner       common.Address
		StartTime       *big.Int
		EndTime         *big.Int
		PricePerSecond  *big.Int
		Collateral      *big.Int
		IsActive        bool
		SwapCount       *big.Int
		TotalVolume     *big.Int
		TotalFeesEarned *big.Int
		TotalGasCost    *big.Int
	}
	if err := c.call(ctx, chainID, "getRental", &out, new(big.Int).SetUint64(rentalID)); err != nil {
		return model.Rental{}, err
	}

	status := model.RentalStatusEnded
	if out.IsActive {
		status = model.RentalStatusActive
	}
	return model.Rental{
		RentalID:        rentalID,
		ChainID:         chainID,
		PoolID:          out.PoolId.Uint64(),
		Renter:          out.Renter.Hex(),
		PoolOwner:       out.PoolOwner.Hex(),
		StartTime:       out.StartTime.Int64(),
		EndTime:         out.EndTime.Int64(),
		PricePerSecond:  model.FormatAmount(out.PricePerSecond),
		Collateral:      model.FormatAmount(out.Collateral),
		Status:          status,
		SwapCount:       out.SwapCount.Uint64(),
		TotalVolume:     model.FormatAmount(out.TotalVolume),
		TotalFeesEarned: model.FormatAmount(out.TotalFeesEarned),
		TotalGasCost:    model.FormatAmount(out.TotalGasCost),
	}, nil
}

// GetRentalProfits reads the contract's own profit view for a rental.
func (c *Client) GetRentalProfits(ctx context.Context, chainID, rentalID uint64) (model.ProfitBreakdown, error) {
	var out struct {
		TotalFeesEarned *big.Int
		RentalCostPaid  *big.Int
		GasCostEstimate *big.Int
		GrossProfit     *big.Int
		NetProfit       *big.Int
		RoiBasisPoints  *big.Int
	}
	if err := c.call(ctx, chainID, "getRentalProfits", &out, new(big.Int).SetUint64(rentalID)); err != nil {
		return model.ProfitBreakdown{}, err
	}

	return model.ProfitBreakdown{
		RentalID:        rentalID,
		TotalFeesEarned: model.FormatAmount(out.TotalFeesEarned),
		RentalCostPaid:  model.FormatAmount(out.RentalCostPaid),
		GasCostEstimate: model.FormatAmount(out.GasCostEstimate),
		GrossProfit:     model.FormatAmount(out.GrossProfit),
		NetProfit:       model.FormatAmount(out.NetProfit),
		ROIBasisPoints:  out.RoiBasisPoints.Int64(),
	}, nil
}

// GetSwapHistory reads the contract's swap log for a rental.
func (c *Client) GetSwapHistory(ctx context.Context, chainID, rentalID uint64) ([]model.SwapDetail, error) {
	var raw []struct {
		Timestamp    *big.Int
		Swapper      common.Address
		TokenIn      common.Address
		TokenOut     common.Address
		AmountIn     *big.Int
		AmountOut    *big.Int
		GasPrice     *big.Int
		FeeCharged   *big.Int
		SourceChain  *big.Int
		DestChain    *big.Int
		IsCrossChain bool
	}
	if err := c.call(ctx, chainID, "getSwapHistory", &raw, new(big.Int).SetUint64(rentalID)); err != nil {
		return nil, err
	}

	swaps := make([]model.SwapDetail, 0, len(raw))
	for i, entry := range raw {
		swaps = append(swaps, model.SwapDetail{
			RentalID:     rentalID,
			Sequence:     uint64(i) + 1,
			Timestamp:    entry.Timestamp.Int64(),
			Swapper:      entry.Swapper.Hex(),
			TokenIn:      entry.TokenIn.Hex(),
			TokenOut:     entry.TokenOut.Hex(),
			AmountIn:     model.FormatAmount(entry.AmountIn),
			AmountOut:    model.FormatAmount(entry.AmountOut),
			GasPrice:     model.FormatAmount(entry.GasPrice),
			FeeCharged:   model.FormatAmount(entry.FeeCharged),
			SourceChain:  entry.SourceChain.Uint64(),
			DestChain:    entry.DestChain.Uint64(),
			IsCrossChain: entry.IsCrossChain,
		})
	}
	return swaps, nil
}
