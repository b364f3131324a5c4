package contracts

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchTokenInfoString(t *testing.T) {
	parsed, err := ERC20ABI()
	require.NoError(t, err)

	caller := newFakeCaller(parsed)
	caller.returns("decimals", uint8(18))
	caller.returns("symbol", "FND")
	caller.returns("name", "FundRequest")

	info, err := FetchTokenInfo(context.Background(), caller, tokenAddress, nil)
	require.NoError(t, err)
	assert.Equal(t, tokenAddress.Hex(), info.Address)
	assert.Equal(t, uint8(18), info.Decimals)
	assert.Equal(t, "FND", info.Symbol)
	assert.Equal(t, "FundRequest", info.Name)
}

func TestFetchTokenInfoBytes32Fallback(t *testing.T) {
	parsed, err := ERC20ABI()
	require.NoError(t, err)
	bytes32ABI, err := ERC20Bytes32ABI()
	require.NoError(t, err)

	var symbol [32]byte
	copy(symbol[:], "MKR")

	caller := newFakeCaller(parsed)
	caller.returns("decimals", uint8(18))
	caller.on("symbol", func([]interface{}) ([]byte, error) {
		return bytes32ABI.Methods["symbol"].Outputs.Pack(symbol)
	})
	caller.on("name", func([]interface{}) ([]byte, error) {
		return bytes32ABI.Methods["name"].Outputs.Pack(symbol)
	})

	info, err := FetchTokenInfo(context.Background(), caller, tokenAddress, nil)
	require.NoError(t, err)
	assert.Equal(t, "MKR", info.Symbol)
}

func TestFetchTokenInfoRequiresDecimals(t *testing.T) {
	parsed, err := ERC20ABI()
	require.NoError(t, err)

	caller := newFakeCaller(parsed)

	_, err = FetchTokenInfo(context.Background(), caller, tokenAddress, nil)
	assert.Error(t, err)
}

func TestFetchTokenInfoClassifiesFailures(t *testing.T) {
	parsed, err := ERC20ABI()
	require.NoError(t, err)

	empty := newFakeCaller(parsed)
	empty.on("decimals", func([]interface{}) ([]byte, error) { return nil, nil })
	_, err = FetchTokenInfo(context.Background(), empty, tokenAddress, nil)
	require.Error(t, err)
	assert.True(t, IsNotContract(err), "empty return data means no token contract")

	down := newFakeCaller(parsed)
	down.on("decimals", func([]interface{}) ([]byte, error) { return nil, errors.New("connection refused") })
	_, err = FetchTokenInfo(context.Background(), down, tokenAddress, nil)
	require.Error(t, err)
	assert.False(t, IsNotContract(err))
}
