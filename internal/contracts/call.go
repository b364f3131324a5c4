package contracts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
)

// ContractCaller executes read-only contract calls. chain.Client implements it.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Caller is a ContractCaller that can also report the chain head.
type Caller interface {
	ContractCaller
	LatestBlockNumber(ctx context.Context) (uint64, error)
}

// ErrMalformedReturn marks return data that does not decode as the method's
// outputs, as returned by an address without the called contract.
var ErrMalformedReturn = errors.New("malformed return data")

func callMethod(ctx context.Context, caller ContractCaller, to common.Address, parsed abi.ABI, method string, block *big.Int, args ...interface{}) ([]interface{}, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{To: &to, Data: data}
	resp, err := caller.CallContract(ctx, msg, block)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := parsed.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w: %w", method, ErrMalformedReturn, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("unpack %s: %w: empty result", method, ErrMalformedReturn)
	}
	return values, nil
}

// IsRevert reports whether err is an eth_call revert, as returned for an
// out-of-range index.
func IsRevert(err error) bool {
	if err == nil {
		return false
	}
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "execution reverted")
}

// IsNotContract reports whether err shows the target does not implement the
// called method, either by reverting or by returning undecodable data.
func IsNotContract(err error) bool {
	return IsRevert(err) || errors.Is(err, ErrMalformedReturn)
}

// EncodePlatform encodes a platform name as a right zero-padded bytes32.
func EncodePlatform(platform string) ([32]byte, error) {
	var out [32]byte
	if len(platform) > len(out) {
		return out, fmt.Errorf("platform %q longer than 32 bytes", platform)
	}
	copy(out[:], platform)
	return out, nil
}

// DecodePlatform reverses EncodePlatform.
func DecodePlatform(value [32]byte) string {
	return string(bytes.TrimRight(value[:], "\x00"))
}

func bytes32ToString(value interface{}) (string, bool) {
	switch v := value.(type) {
	case [32]byte:
		return string(bytes.TrimRight(v[:], "\x00")), true
	case []byte:
		return string(bytes.TrimRight(v, "\x00")), true
	default:
		return "", false
	}
}

func asAddress(value interface{}) (common.Address, error) {
	switch v := value.(type) {
	case common.Address:
		return v, nil
	case *common.Address:
		return *v, nil
	default:
		return common.Address{}, fmt.Errorf("unsupported address type %T", value)
	}
}

func asBigInt(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		return new(big.Int).Set(v), nil
	case big.Int:
		return new(big.Int).Set(&v), nil
	case uint8:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	case int64:
		return big.NewInt(v), nil
	default:
		return nil, fmt.Errorf("unsupported int type %T", value)
	}
}

func asUint8(value interface{}) (uint8, error) {
	switch v := value.(type) {
	case uint8:
		return v, nil
	case uint16:
		return uint8(v), nil
	case uint32:
		return uint8(v), nil
	case uint64:
		return uint8(v), nil
	case *big.Int:
		return uint8(v.Uint64()), nil
	default:
		return 0, fmt.Errorf("unsupported uint8 type %T", value)
	}
}
