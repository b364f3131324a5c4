package token

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"

	"fundscope/internal/contracts"
	"fundscope/internal/model"
)

// Registry resolves token contracts to their metadata. Unknown tokens are
// reported as absent. An error means the lookup itself could not be made and
// the token may still exist.
type Registry interface {
	Resolve(ctx context.Context, address string) (model.TokenInfo, bool, error)
}

func normalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// StaticRegistry serves a fixed token list.
type StaticRegistry struct {
	mu     sync.RWMutex
	tokens map[string]model.TokenInfo
}

func NewStaticRegistry(tokens ...model.TokenInfo) *StaticRegistry {
	r := &StaticRegistry{tokens: make(map[string]model.TokenInfo, len(tokens))}
	for _, info := range tokens {
		r.Add(info)
	}
	return r
}

func (r *StaticRegistry) Add(info model.TokenInfo) {
	r.mu.Lock()
	r.tokens[normalizeAddress(info.Address)] = info
	r.mu.Unlock()
}

func (r *StaticRegistry) Resolve(_ context.Context, address string) (model.TokenInfo, bool, error) {
	r.mu.RLock()
	info, ok := r.tokens[normalizeAddress(address)]
	r.mu.RUnlock()
	return info, ok, nil
}

// ParseTokenSpec parses "address:symbol:decimals".
func ParseTokenSpec(spec string) (model.TokenInfo, error) {
	parts := strings.Split(strings.TrimSpace(spec), ":")
	if len(parts) != 3 {
		return model.TokenInfo{}, fmt.Errorf("invalid token spec %q: want address:symbol:decimals", spec)
	}
	address := strings.TrimSpace(parts[0])
	if !common.IsHexAddress(address) {
		return model.TokenInfo{}, fmt.Errorf("invalid token address: %s", address)
	}
	symbol := strings.TrimSpace(parts[1])
	if symbol == "" {
		return model.TokenInfo{}, fmt.Errorf("token %s: empty symbol", address)
	}
	decimals, err := strconv.ParseUint(strings.TrimSpace(parts[2]), 10, 8)
	if err != nil {
		return model.TokenInfo{}, fmt.Errorf("token %s: invalid decimals: %w", address, err)
	}
	return model.TokenInfo{
		Address:  common.HexToAddress(address).Hex(),
		Symbol:   symbol,
		Decimals: uint8(decimals),
	}, nil
}

// ChainRegistry resolves ERC20 metadata over RPC and keeps the results in a
// bounded LRU. Addresses without an ERC20 contract are absent; RPC failures
// are returned. Neither is cached.
type ChainRegistry struct {
	caller contracts.ContractCaller
	cache  *lru.Cache
	logger *zap.Logger
}

func NewChainRegistry(caller contracts.ContractCaller, size int, logger *zap.Logger) (*ChainRegistry, error) {
	if size <= 0 {
		size = 256
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cache, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("token cache: %w", err)
	}
	return &ChainRegistry{caller: caller, cache: cache, logger: logger}, nil
}

func (r *ChainRegistry) Resolve(ctx context.Context, address string) (model.TokenInfo, bool, error) {
	key := normalizeAddress(address)
	if cached, ok := r.cache.Get(key); ok {
		return cached.(model.TokenInfo), true, nil
	}
	if !common.IsHexAddress(key) {
		return model.TokenInfo{}, false, nil
	}

	info, err := contracts.FetchTokenInfo(ctx, r.caller, common.HexToAddress(key), r.logger)
	if err != nil {
		if contracts.IsNotContract(err) {
			r.logger.Debug("address is not an erc20 token", zap.String("token", address), zap.Error(err))
			return model.TokenInfo{}, false, nil
		}
		return model.TokenInfo{}, false, fmt.Errorf("fetch token %s: %w", address, err)
	}
	if info.Symbol == "" {
		return model.TokenInfo{}, false, nil
	}
	r.cache.Add(key, info)
	return info, true, nil
}

// ChainedRegistry consults each registry in order. A failing registry does
// not stop the chain; its error is returned only when no later one resolves
// the token.
type ChainedRegistry []Registry

func (c ChainedRegistry) Resolve(ctx context.Context, address string) (model.TokenInfo, bool, error) {
	var firstErr error
	for _, r := range c {
		if r == nil {
			continue
		}
		info, ok, err := r.Resolve(ctx, address)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if ok {
			return info, true, nil
		}
	}
	return model.TokenInfo{}, false, firstErr
}

var (
	_ Registry = (*StaticRegistry)(nil)
	_ Registry = (*ChainRegistry)(nil)
	_ Registry = ChainedRegistry(nil)
)
