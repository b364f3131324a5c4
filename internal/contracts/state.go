package contracts

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// StateReader enumerates the tokens and amounts held for an issue by one of
// the on-chain repositories.
type StateReader interface {
	TokenCount(ctx context.Context, platform, platformID string) (uint64, error)
	// TokenAtIndex returns false when no token is stored at index.
	TokenAtIndex(ctx context.Context, platform, platformID string, index uint64) (string, bool, error)
	Amount(ctx context.Context, platform, platformID, token string) (*big.Int, error)
}

// Snapshotter returns a StateReader whose reads all observe the same block.
type Snapshotter interface {
	Snapshot(ctx context.Context) (StateReader, error)
}

type repositoryMethods struct {
	count   string
	tokenAt string
	amount  string
}

var (
	fundMethods  = repositoryMethods{count: "getFundedTokenCount", tokenAt: "getFundedTokensByIndex", amount: "balance"}
	claimMethods = repositoryMethods{count: "getTokenCount", tokenAt: "getTokenByIndex", amount: "getAmountByToken"}
)

// Repository reads the FundRepository (fund-state) or ClaimRepository
// (claim-state) contract.
type Repository struct {
	name    string
	caller  Caller
	address common.Address
	parsed  abi.ABI
	methods repositoryMethods
	block   *big.Int
}

// NewFundRepository binds the pre-claim escrow contract.
func NewFundRepository(caller Caller, address common.Address) (*Repository, error) {
	parsed, err := FundRepositoryABI()
	if err != nil {
		return nil, fmt.Errorf("parse fund repository abi: %w", err)
	}
	return &Repository{name: "fund_repository", caller: caller, address: address, parsed: parsed, methods: fundMethods}, nil
}

// NewClaimRepository binds the post-claim payout contract.
func NewClaimRepository(caller Caller, address common.Address) (*Repository, error) {
	parsed, err := ClaimRepositoryABI()
	if err != nil {
		return nil, fmt.Errorf("parse claim repository abi: %w", err)
	}
	return &Repository{name: "claim_repository", caller: caller, address: address, parsed: parsed, methods: claimMethods}, nil
}

// Name identifies the repository in logs and metrics.
func (r *Repository) Name() string {
	return r.name
}

// Snapshot pins a copy of the repository to the current chain head.
func (r *Repository) Snapshot(ctx context.Context) (StateReader, error) {
	if r.caller == nil {
		return nil, fmt.Errorf("chain caller is nil")
	}
	latest, err := r.caller.LatestBlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("latest block: %w", err)
	}
	pinned := *r
	pinned.block = new(big.Int).SetUint64(latest)
	return &pinned, nil
}

// TokenCount returns the number of distinct tokens recorded for the issue.
func (r *Repository) TokenCount(ctx context.Context, platform, platformID string) (uint64, error) {
	key, err := EncodePlatform(platform)
	if err != nil {
		return 0, err
	}
	values, err := r.call(ctx, r.methods.count, key, platformID)
	if err != nil {
		return 0, err
	}
	count, err := asBigInt(values[0])
	if err != nil {
		return 0, fmt.Errorf("%s: %w", r.methods.count, err)
	}
	if !count.IsUint64() {
		return 0, fmt.Errorf("%s: count overflows uint64: %s", r.methods.count, count)
	}
	return count.Uint64(), nil
}

// TokenAtIndex returns the token stored at index. A reverted call or the zero
// address is reported as absent, which covers the list shrinking between the
// count and the indexed read.
func (r *Repository) TokenAtIndex(ctx context.Context, platform, platformID string, index uint64) (string, bool, error) {
	key, err := EncodePlatform(platform)
	if err != nil {
		return "", false, err
	}
	values, err := r.call(ctx, r.methods.tokenAt, key, platformID, new(big.Int).SetUint64(index))
	if err != nil {
		if IsRevert(err) {
			return "", false, nil
		}
		return "", false, err
	}
	token, err := asAddress(values[0])
	if err != nil {
		return "", false, fmt.Errorf("%s: %w", r.methods.tokenAt, err)
	}
	if token == (common.Address{}) {
		return "", false, nil
	}
	return token.Hex(), true, nil
}

// Amount returns the smallest-unit amount of token held or paid for the issue.
func (r *Repository) Amount(ctx context.Context, platform, platformID, token string) (*big.Int, error) {
	if !common.IsHexAddress(token) {
		return nil, fmt.Errorf("invalid token address: %s", token)
	}
	key, err := EncodePlatform(platform)
	if err != nil {
		return nil, err
	}
	values, err := r.call(ctx, r.methods.amount, key, platformID, common.HexToAddress(token))
	if err != nil {
		return nil, err
	}
	amount, err := asBigInt(values[0])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", r.methods.amount, err)
	}
	return amount, nil
}

func (r *Repository) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	if r.caller == nil {
		return nil, fmt.Errorf("chain caller is nil")
	}
	return callMethod(ctx, r.caller, r.address, r.parsed, method, r.block, args...)
}

var (
	_ StateReader = (*Repository)(nil)
	_ Snapshotter = (*Repository)(nil)
)
