package token

import (
	"context"
	"errors"
	"math/big"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fundscope/internal/contracts"
	"fundscope/internal/model"
)

const fndAddress = "0x00000000000000000000000000000000000000Aa"

func TestStaticRegistryCaseInsensitive(t *testing.T) {
	r := NewStaticRegistry(model.TokenInfo{Address: fndAddress, Symbol: "FND", Decimals: 18})

	info, ok, err := r.Resolve(context.Background(), "0x00000000000000000000000000000000000000AA")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "FND", info.Symbol)

	_, ok, err = r.Resolve(context.Background(), "0x00000000000000000000000000000000000000cc")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestParseTokenSpec(t *testing.T) {
	info, err := ParseTokenSpec(" 0x00000000000000000000000000000000000000aa:FND:18 ")
	require.NoError(t, err)
	assert.Equal(t, "FND", info.Symbol)
	assert.Equal(t, uint8(18), info.Decimals)

	for _, spec := range []string{"0xaa:FND:18", "0x00000000000000000000000000000000000000aa:FND", "0x00000000000000000000000000000000000000aa::18", "0x00000000000000000000000000000000000000aa:FND:300"} {
		_, err := ParseTokenSpec(spec)
		assert.Error(t, err, spec)
	}
}

// erc20Caller serves decimals/symbol/name for every token. failures makes
// that many calls fail at the transport level first; noCode answers every call
// with empty data, as an address without a contract does.
type erc20Caller struct {
	calls    atomic.Int32
	failures atomic.Int32
	noCode   bool
}

func (c *erc20Caller) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	c.calls.Add(1)
	if c.failures.Load() > 0 {
		c.failures.Add(-1)
		return nil, errors.New("rpc unavailable")
	}
	if c.noCode {
		return nil, nil
	}
	parsed, err := contracts.ERC20ABI()
	if err != nil {
		return nil, err
	}
	method, err := parsed.MethodById(msg.Data[:4])
	if err != nil {
		return nil, err
	}
	switch method.Name {
	case "decimals":
		return method.Outputs.Pack(uint8(6))
	case "symbol":
		return method.Outputs.Pack("USDC")
	default:
		return method.Outputs.Pack("USD Coin")
	}
}

func TestChainRegistryCachesSuccess(t *testing.T) {
	caller := &erc20Caller{}
	r, err := NewChainRegistry(caller, 8, nil)
	require.NoError(t, err)

	info, ok, err := r.Resolve(context.Background(), fndAddress)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "USDC", info.Symbol)
	assert.Equal(t, uint8(6), info.Decimals)
	first := caller.calls.Load()

	_, ok, err = r.Resolve(context.Background(), fndAddress)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, first, caller.calls.Load(), "second resolve should be served from cache")
}

func TestChainRegistryNonTokenIsAbsent(t *testing.T) {
	r, err := NewChainRegistry(&erc20Caller{noCode: true}, 8, nil)
	require.NoError(t, err)

	_, ok, err := r.Resolve(context.Background(), fndAddress)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = r.Resolve(context.Background(), "not-an-address")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestChainRegistryTransportFailureIsAnError(t *testing.T) {
	caller := &erc20Caller{}
	caller.failures.Store(1)
	r, err := NewChainRegistry(caller, 8, nil)
	require.NoError(t, err)

	_, ok, err := r.Resolve(context.Background(), fndAddress)
	assert.ErrorContains(t, err, "rpc unavailable")
	assert.False(t, ok)

	info, ok, err := r.Resolve(context.Background(), fndAddress)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "USDC", info.Symbol)
}

func TestChainedRegistryOrder(t *testing.T) {
	static := NewStaticRegistry(model.TokenInfo{Address: fndAddress, Symbol: "FND", Decimals: 18})
	caller := &erc20Caller{}
	chainReg, err := NewChainRegistry(caller, 8, nil)
	require.NoError(t, err)

	r := ChainedRegistry{static, chainReg}

	info, ok, err := r.Resolve(context.Background(), fndAddress)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "FND", info.Symbol)
	assert.Equal(t, int32(0), caller.calls.Load())

	info, ok, err = r.Resolve(context.Background(), "0x00000000000000000000000000000000000000cc")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "USDC", info.Symbol)
}

func TestChainedRegistryReportsErrorOnlyWhenUnresolved(t *testing.T) {
	static := NewStaticRegistry(model.TokenInfo{Address: fndAddress, Symbol: "FND", Decimals: 18})
	caller := &erc20Caller{}
	caller.failures.Store(10)
	chainReg, err := NewChainRegistry(caller, 8, nil)
	require.NoError(t, err)

	r := ChainedRegistry{chainReg, static}
	info, ok, err := r.Resolve(context.Background(), fndAddress)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "FND", info.Symbol)

	_, ok, err = r.Resolve(context.Background(), "0x00000000000000000000000000000000000000cc")
	assert.Error(t, err)
	assert.False(t, ok)
}
