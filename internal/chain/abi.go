package chain

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const rentalABIJSON = `[
  {
    "inputs": [{"internalType": "uint256", "name": "poolId", "type": "uint256"}],
    "name": "getPool",
    "outputs": [
      {"internalType": "address", "name": "owner", "type": "address"},
      {"internalType": "address", "name": "token0", "type": "address"},
      {"internalType": "address", "name": "token1", "type": "address"},
      {"internalType": "uint256", "name": "amount0", "type": "uint256"},
      {"internalType": "uint256", "name": "amount1", "type": "uint256"},
      {"internalType": "bool", "name": "exists", "type": "bool"},
      {"internalType": "uint256", "name": "totalSwaps", "type": "uint256"},
      {"internalType": "uint256", "name": "totalFeesCollected", "type": "uint256"}
    ],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [
      {"internalType": "address", "name": "token0", "type": "address"},
      {"internalType": "address", "name": "token1", "type": "address"},
      {"internalType": "uint256", "name": "amount0", "type": "uint256"},
      {"internalType": "uint256", "name": "amount1", "type": "uint256"}
    ],
    "name": "createPool",
    "outputs": [],
    "stateMutability": "nonpayable",
    "type": "function"
  },
  {
    "inputs": [{"internalType": "address", "name": "renter", "type": "address"}],
    "name": "getRenterRentals",
    "outputs": [{"internalType": "uint256[]", "name": "rentalIds", "type": "uint256[]"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [{"internalType": "uint256", "name": "rentalId", "type": "uint256"}],
    "name": "getRental",
    "outputs": [
      {"internalType": "uint256", "name": "poolId", "type": "uint256"},
      {"internalType": "address", "name": "renter", "type": "address"},
      {"internalType": "address", "name": "poolOwner", "type": "address"},
      {"internalType": "uint256", "name": "startTime", "type": "uint256"},
      {"internalType": "uint256", "name": "endTime", "type": "uint256"},
      {"internalType": "uint256", "name": "pricePerSecond", "type": "uint256"},
      {"internalType": "uint256", "name": "collateral", "type": "uint256"},
      {"internalType": "bool", "name": "isActive", "type": "bool"},
      {"internalType": "uint256", "name": "swapCount", "type": "uint256"},
      {"internalType": "uint256", "name": "totalVolume", "type": "uint256"},
      {"internalType": "uint256", "name": "totalFeesEarned", "type": "uint256"},
      {"internalType": "uint256", "name": "totalGasCost", "type": "uint256"}
    ],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [{"internalType": "uint256", "name": "rentalId", "type": "uint256"}],
    "name": "getRentalProfits",
    "outputs": [
      {"internalType": "uint256", "name": "totalFeesEarned", "type": "uint256"},
      {"internalType": "uint256", "name": "rentalCostPaid", "type": "uint256"},
      {"internalType": "uint256", "name": "gasCostEstimate", "type": "uint256"},
      {"internalType": "int256", "name": "grossProfit", "type": "int256"},
      {"internalType": "int256", "name": "netProfit", "type": "int256"},
      {"internalType": "int256", "name": "roiBasisPoints", "type": "int256"}
    ],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [{"internalType": "uint256", "name": "rentalId", "type": "uint256"}],
    "name": "getSwapHistory",
    "outputs": [
      {
        "components": [
          {"internalType": "uint256", "name": "timestamp", "type": "uint256"},
          {"internalType": "address", "name": "swapper", "type": "address"},
          {"internalType": "address", "name": "tokenIn", "type": "address"},
          {"internalType": "address", "name": "tokenOut", "type": "address"},
          {"internalType": "uint256", "name": "amountIn", "type": "uint256"},
          {"internalType": "uint256", "name": "amountOut", "type": "uint256"},
          {"internalType": "uint256", "name": "gasPrice", "type": "uint256"},
          {"internalType": "uint256", "name": "feeCharged", "type": "uint256"},
          {"internalType": "uint256", "name": "sourceChain", "type": "uint256"},
          {"internalType": "uint256", "name": "destChain", "type": "uint256"},
          {"internalType": "bool", "name": "isCrossChain", "type": "bool"}
        ],
        "internalType": "struct SwapDetail[]",
        "name": "swaps",
        "type": "tuple[]"
      }
    ],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [
      {"internalType": "uint256", "name": "rentalId", "type": "uint256"},
      {"internalType": "address", "name": "tokenIn", "type": "address"},
      {"internalType": "uint256", "name": "amountIn", "type": "uint256"},
      {"internalType": "uint256", "name": "minAmountOut", "type": "uint256"}
    ],
    "name": "executeSwap",
    "outputs": [],
    "stateMutability": "nonpayable",
    "type": "function"
  },
  {
    "inputs": [
      {"internalType": "bytes32", "name": "channelId", "type": "bytes32"},
      {"internalType": "address", "name": "token", "type": "address"},
      {"internalType": "uint256", "name": "amount", "type": "uint256"}
    ],
    "name": "openChannel",
    "outputs": [],
    "stateMutability": "nonpayable",
    "type": "function"
  },
  {
    "inputs": [
      {"internalType": "bytes32", "name": "channelId", "type": "bytes32"},
      {"internalType": "uint256", "name": "finalBalance", "type": "uint256"}
    ],
    "name": "settleChannel",
    "outputs": [],
    "stateMutability": "nonpayable",
    "type": "function"
  }
]`

var (
	rentalABI     abi.ABI
	rentalABIOnce sync.Once
	rentalABIErr  error
)

// RentalABI returns the parsed pool rental contract ABI.
func RentalABI() (abi.ABI, error) {
	rentalABIOnce.Do(func() {
		rentalABI, rentalABIErr = abi.JSON(strings.NewReader(rentalABIJSON))
	})
	return rentalABI, rentalABIErr
}
