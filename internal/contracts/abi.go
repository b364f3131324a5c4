package contracts

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const fundRepositoryABIJSON = `[
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "from", "type": "address"},
      {"indexed": false, "internalType": "bytes32", "name": "platform", "type": "bytes32"},
      {"indexed": false, "internalType": "string", "name": "platformId", "type": "string"},
      {"indexed": false, "internalType": "address", "name": "token", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "amount", "type": "uint256"}
    ],
    "name": "Funded",
    "type": "event"
  },
  {
    "inputs": [
      {"internalType": "bytes32", "name": "_platform", "type": "bytes32"},
      {"internalType": "string", "name": "_platformId", "type": "string"}
    ],
    "name": "getFundedTokenCount",
    "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [
      {"internalType": "bytes32", "name": "_platform", "type": "bytes32"},
      {"internalType": "string", "name": "_platformId", "type": "string"},
      {"internalType": "uint256", "name": "_index", "type": "uint256"}
    ],
    "name": "getFundedTokensByIndex",
    "outputs": [{"internalType": "address", "name": "", "type": "address"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [
      {"internalType": "bytes32", "name": "_platform", "type": "bytes32"},
      {"internalType": "string", "name": "_platformId", "type": "string"},
      {"internalType": "address", "name": "_token", "type": "address"}
    ],
    "name": "balance",
    "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
    "stateMutability": "view",
    "type": "function"
  }
]`

const claimRepositoryABIJSON = `[
  {
    "inputs": [
      {"internalType": "bytes32", "name": "_platform", "type": "bytes32"},
      {"internalType": "string", "name": "_platformId", "type": "string"}
    ],
    "name": "getTokenCount",
    "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [
      {"internalType": "bytes32", "name": "_platform", "type": "bytes32"},
      {"internalType": "string", "name": "_platformId", "type": "string"},
      {"internalType": "uint256", "name": "_index", "type": "uint256"}
    ],
    "name": "getTokenByIndex",
    "outputs": [{"internalType": "address", "name": "", "type": "address"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [
      {"internalType": "bytes32", "name": "_platform", "type": "bytes32"},
      {"internalType": "string", "name": "_platformId", "type": "string"},
      {"internalType": "address", "name": "_token", "type": "address"}
    ],
    "name": "getAmountByToken",
    "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
    "stateMutability": "view",
    "type": "function"
  }
]`

var (
	fundRepositoryABI      abi.ABI
	fundRepositoryABIOnce  sync.Once
	fundRepositoryABIErr   error
	claimRepositoryABI     abi.ABI
	claimRepositoryABIOnce sync.Once
	claimRepositoryABIErr  error
)

// FundRepositoryABI returns the parsed FundRepository ABI.
func FundRepositoryABI() (abi.ABI, error) {
	fundRepositoryABIOnce.Do(func() {
		fundRepositoryABI, fundRepositoryABIErr = abi.JSON(strings.NewReader(fundRepositoryABIJSON))
	})
	return fundRepositoryABI, fundRepositoryABIErr
}

// ClaimRepositoryABI returns the parsed ClaimRepository ABI.
func ClaimRepositoryABI() (abi.ABI, error) {
	claimRepositoryABIOnce.Do(func() {
		claimRepositoryABI, claimRepositoryABIErr = abi.JSON(strings.NewReader(claimRepositoryABIJSON))
	})
	return claimRepositoryABI, claimRepositoryABIErr
}
