package contracts

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
)

type callHandler func(args []interface{}) ([]byte, error)

// fakeCaller answers eth_calls by dispatching on the method selector.
type fakeCaller struct {
	parsed   abi.ABI
	latest   uint64
	handlers map[string]callHandler

	mu     sync.Mutex
	blocks []*big.Int
	calls  []string
}

func newFakeCaller(parsed abi.ABI) *fakeCaller {
	return &fakeCaller{parsed: parsed, handlers: make(map[string]callHandler)}
}

func (f *fakeCaller) on(method string, h callHandler) {
	f.handlers[method] = h
}

func (f *fakeCaller) returns(method string, values ...interface{}) {
	f.on(method, func([]interface{}) ([]byte, error) {
		return f.parsed.Methods[method].Outputs.Pack(values...)
	})
}

func (f *fakeCaller) CallContract(_ context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
	if len(msg.Data) < 4 {
		return nil, errors.New("short call data")
	}
	method, err := f.parsed.MethodById(msg.Data[:4])
	if err != nil {
		return nil, err
	}
	args, err := method.Inputs.Unpack(msg.Data[4:])
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.blocks = append(f.blocks, block)
	f.calls = append(f.calls, method.Name)
	f.mu.Unlock()

	h, ok := f.handlers[method.Name]
	if !ok {
		return nil, fmt.Errorf("no handler for %s", method.Name)
	}
	return h(args)
}

func (f *fakeCaller) LatestBlockNumber(context.Context) (uint64, error) {
	return f.latest, nil
}
